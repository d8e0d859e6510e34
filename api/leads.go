package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

const leadsListKey = "leads:list"

// LeadsService covers lead CRUD plus the derived documents a salesman
// generates from a lead (costing sheet, proforma invoice).
type LeadsService struct {
	transport *transport.Client
	cache     *cache.Store
}

type Lead struct {
	ID        int64  `json:"id"`
	BuyerName string `json:"buyer_name"`
	Contact   string `json:"contact,omitempty"`
	Email     string `json:"email,omitempty"`
	Product   string `json:"product,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type LeadInput struct {
	BuyerName string `json:"buyer_name"`
	Contact   string `json:"contact,omitempty"`
	Email     string `json:"email,omitempty"`
	Product   string `json:"product,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (s *LeadsService) List(ctx context.Context) ([]Lead, error) {
	return cache.QueryAs(ctx, s.cache, leadsListKey, func(ctx context.Context) ([]Lead, []cache.Tag, error) {
		list, err := doJSON[[]Lead](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   "/leads/",
		})
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int64, 0, len(list))
		for _, lead := range list {
			ids = append(ids, lead.ID)
		}
		return list, collectionTags(resourceLead, ids), nil
	})
}

func (s *LeadsService) Get(ctx context.Context, id int64) (*Lead, error) {
	return cache.QueryAs(ctx, s.cache, itemKey("leads", id), func(ctx context.Context) (*Lead, []cache.Tag, error) {
		lead, err := doJSON[Lead](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/leads/%d/", id),
		})
		if err != nil {
			return nil, nil, err
		}
		return &lead, []cache.Tag{cache.IDTag(resourceLead, id)}, nil
	})
}

func (s *LeadsService) Create(ctx context.Context, input LeadInput) (*Lead, error) {
	var lead Lead
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		lead, err = doJSON[Lead](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   "/leads/",
			Body:   input,
		})
		return err
	}, []cache.Tag{cache.ListTag(resourceLead)})
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *LeadsService) Update(ctx context.Context, id int64, input LeadInput) (*Lead, error) {
	var lead Lead
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		lead, err = doJSON[Lead](ctx, s.transport, transport.Request{
			Method: http.MethodPatch,
			Path:   fmt.Sprintf("/leads/%d/", id),
			Body:   input,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceLead, id), cache.ListTag(resourceLead)})
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *LeadsService) Delete(ctx context.Context, id int64) error {
	return s.cache.Mutate(ctx, func(ctx context.Context) error {
		_, err := s.transport.Do(ctx, transport.Request{
			Method: http.MethodDelete,
			Path:   fmt.Sprintf("/leads/%d/", id),
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceLead, id), cache.ListTag(resourceLead)})
}

// CostingInput is the raw costing sheet; the backend does the arithmetic
// and stores the resulting document.
type CostingInput struct {
	FabricCost      float64 `json:"fabric_cost"`
	TrimCost        float64 `json:"trim_cost"`
	LabourCost      float64 `json:"labour_cost"`
	OverheadPercent float64 `json:"overhead_percent"`
	MarginPercent   float64 `json:"margin_percent"`
}

// Costing generates a costing document for the lead.
func (s *LeadsService) Costing(ctx context.Context, id int64, input CostingInput) (*Document, error) {
	var doc Document
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		doc, err = doJSON[Document](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/leads/%d/costing/", id),
			Body:   input,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceLead, id), cache.ListTag(resourceDocument)})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GeneratePI produces a proforma invoice from the lead's costing.
func (s *LeadsService) GeneratePI(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		doc, err = doJSON[Document](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/leads/%d/generate-pi/", id),
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceLead, id), cache.ListTag(resourceDocument)})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
