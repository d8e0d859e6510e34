package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

// WhatsAppService dispatches outbound notifications and reads the
// per-order message history.
type WhatsAppService struct {
	transport *transport.Client
	cache     *cache.Store
}

type Message struct {
	ID      int64  `json:"id"`
	OrderID int64  `json:"order_id,omitempty"`
	To      string `json:"to"`
	Body    string `json:"body,omitempty"`
	Status  string `json:"status,omitempty"`
	SentAt  string `json:"sent_at,omitempty"`
}

type SendMessageRequest struct {
	OrderID int64  `json:"order_id,omitempty"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

type SendDocumentRequest struct {
	OrderID    int64  `json:"order_id,omitempty"`
	To         string `json:"to"`
	DocumentID int64  `json:"document_id"`
	Caption    string `json:"caption,omitempty"`
}

func (s *WhatsAppService) Send(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return s.send(ctx, "/whatsapp/send/", req, req.OrderID)
}

func (s *WhatsAppService) SendDocument(ctx context.Context, req SendDocumentRequest) (*Message, error) {
	return s.send(ctx, "/whatsapp/send-document/", req, req.OrderID)
}

func (s *WhatsAppService) send(ctx context.Context, path string, body any, orderID int64) (*Message, error) {
	var msg Message
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		msg, err = doJSON[Message](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   path,
			Body:   body,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceWhatsApp, orderID)})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns the messages sent for one order, cached per order and
// invalidated by sends for that order.
func (s *WhatsAppService) History(ctx context.Context, orderID int64) ([]Message, error) {
	key := fmt.Sprintf("whatsapp:history:%d", orderID)
	return cache.QueryAs(ctx, s.cache, key, func(ctx context.Context) ([]Message, []cache.Tag, error) {
		list, err := doJSON[[]Message](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/whatsapp/history/%d/", orderID),
		})
		if err != nil {
			return nil, nil, err
		}
		return list, []cache.Tag{cache.IDTag(resourceWhatsApp, orderID)}, nil
	})
}
