package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

const documentsListKey = "documents:list"

// DocumentsService lists generated documents (costing sheets, proforma
// invoices, shipment papers) and downloads their binary form.
type DocumentsService struct {
	transport *transport.Client
	cache     *cache.Store
}

type Document struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"` // e.g. "costing", "pi", "shipment"
	OrderID   int64  `json:"order_id,omitempty"`
	LeadID    int64  `json:"lead_id,omitempty"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (s *DocumentsService) List(ctx context.Context) ([]Document, error) {
	return cache.QueryAs(ctx, s.cache, documentsListKey, func(ctx context.Context) ([]Document, []cache.Tag, error) {
		list, err := doJSON[[]Document](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   "/documents/",
		})
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int64, 0, len(list))
		for _, doc := range list {
			ids = append(ids, doc.ID)
		}
		return list, collectionTags(resourceDocument, ids), nil
	})
}

// ForOrder lists the documents attached to one order. The entry carries
// the document LIST tag too, so newly generated documents refresh it.
func (s *DocumentsService) ForOrder(ctx context.Context, orderID int64) ([]Document, error) {
	key := fmt.Sprintf("documents:order:%d", orderID)
	return cache.QueryAs(ctx, s.cache, key, func(ctx context.Context) ([]Document, []cache.Tag, error) {
		list, err := doJSON[[]Document](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/documents/order/%d/", orderID),
		})
		if err != nil {
			return nil, nil, err
		}
		tags := []cache.Tag{cache.ListTag(resourceDocument), cache.IDTag(resourceOrder, orderID)}
		for _, doc := range list {
			tags = append(tags, cache.IDTag(resourceDocument, doc.ID))
		}
		return list, tags, nil
	})
}

// Download streams the document's binary content to w. Downloads bypass
// the cache; they are never stored client-side.
func (s *DocumentsService) Download(ctx context.Context, kind string, id int64, w io.Writer) error {
	return s.transport.Download(ctx, fmt.Sprintf("/documents/%s/%d/download/", kind, id), w)
}
