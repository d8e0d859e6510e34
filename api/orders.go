package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

const (
	ordersListKey    = "orders:list"
	designerQueueKey = "orders:designer"
)

// OrdersService covers order retrieval and the production workflow:
// design upload, production stages, QC, shipment.
type OrdersService struct {
	transport *transport.Client
	cache     *cache.Store
}

type Order struct {
	ID         int64  `json:"id"`
	LeadID     int64  `json:"lead_id,omitempty"`
	BuyerName  string `json:"buyer_name"`
	Product    string `json:"product,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
	Status     string `json:"status,omitempty"`
	DesignFile string `json:"design_file,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func (s *OrdersService) List(ctx context.Context) ([]Order, error) {
	return s.queryOrders(ctx, ordersListKey, "/orders/")
}

// DesignerQueue lists the orders awaiting design work.
func (s *OrdersService) DesignerQueue(ctx context.Context) ([]Order, error) {
	return s.queryOrders(ctx, designerQueueKey, "/orders/designer/")
}

func (s *OrdersService) queryOrders(ctx context.Context, key, path string) ([]Order, error) {
	return cache.QueryAs(ctx, s.cache, key, func(ctx context.Context) ([]Order, []cache.Tag, error) {
		list, err := doJSON[[]Order](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   path,
		})
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int64, 0, len(list))
		for _, order := range list {
			ids = append(ids, order.ID)
		}
		return list, collectionTags(resourceOrder, ids), nil
	})
}

func (s *OrdersService) Get(ctx context.Context, id int64) (*Order, error) {
	return cache.QueryAs(ctx, s.cache, itemKey("orders", id), func(ctx context.Context) (*Order, []cache.Tag, error) {
		order, err := doJSON[Order](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/orders/%d/", id),
		})
		if err != nil {
			return nil, nil, err
		}
		return &order, []cache.Tag{cache.IDTag(resourceOrder, id)}, nil
	})
}

// UploadDesign attaches a design file to the order.
func (s *OrdersService) UploadDesign(ctx context.Context, id int64, filename string, content io.Reader) (*Order, error) {
	var order Order
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		order, err = doJSON[Order](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/orders/%d/upload-design/", id),
			Multipart: &transport.Multipart{
				Files: []transport.File{{Field: "design", Name: filename, Content: content}},
			},
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceOrder, id), cache.ListTag(resourceOrder), cache.ListTag(resourceDocument)})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type ProductionUpdate struct {
	Stage            string `json:"stage"`
	CompletedPercent int    `json:"completed_percent,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func (s *OrdersService) UpdateProduction(ctx context.Context, id int64, update ProductionUpdate) (*Order, error) {
	return s.updateOrder(ctx, id, fmt.Sprintf("/orders/%d/production/", id), update)
}

type QCReport struct {
	Checked int    `json:"checked"`
	Passed  int    `json:"passed"`
	Notes   string `json:"notes,omitempty"`
}

func (s *OrdersService) SubmitQC(ctx context.Context, id int64, report QCReport) (*Order, error) {
	var order Order
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		order, err = doJSON[Order](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/orders/%d/qc/", id),
			Body:   report,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceOrder, id), cache.ListTag(resourceOrder)})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type ShipmentUpdate struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	ShippedAt      string `json:"shipped_at,omitempty"`
}

func (s *OrdersService) UpdateShipment(ctx context.Context, id int64, update ShipmentUpdate) (*Order, error) {
	var order Order
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		order, err = doJSON[Order](ctx, s.transport, transport.Request{
			Method: http.MethodPatch,
			Path:   fmt.Sprintf("/orders/%d/shipment/", id),
			Body:   update,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceOrder, id), cache.ListTag(resourceOrder), cache.ListTag(resourceDocument)})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrdersService) updateOrder(ctx context.Context, id int64, path string, body any) (*Order, error) {
	var order Order
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		order, err = doJSON[Order](ctx, s.transport, transport.Request{
			Method: http.MethodPatch,
			Path:   path,
			Body:   body,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceOrder, id), cache.ListTag(resourceOrder)})
	if err != nil {
		return nil, err
	}
	return &order, nil
}
