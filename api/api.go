// Package api provides typed clients for every portal backend resource.
// Reads go through the entity cache with the resource's tag set; writes
// declare the tags they invalidate.
package api

import (
	"context"
	"fmt"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

// Resource types used for cache tagging.
const (
	resourceUser     = "User"
	resourceProduct  = "Product"
	resourceWishlist = "Wishlist"
	resourceLead     = "Lead"
	resourceOrder    = "Order"
	resourceDocument = "Document"
	resourceWhatsApp = "WhatsApp"
)

// Client aggregates all resource services over one transport and cache.
type Client struct {
	Auth      *AuthService
	Users     *UsersService
	Products  *ProductsService
	Wishlist  *WishlistService
	Leads     *LeadsService
	Orders    *OrdersService
	Documents *DocumentsService
	WhatsApp  *WhatsAppService
}

func New(t *transport.Client, c *cache.Store) *Client {
	return &Client{
		Auth:      &AuthService{transport: t, cache: c},
		Users:     &UsersService{transport: t, cache: c},
		Products:  &ProductsService{transport: t, cache: c},
		Wishlist:  &WishlistService{transport: t, cache: c},
		Leads:     &LeadsService{transport: t, cache: c},
		Orders:    &OrdersService{transport: t, cache: c},
		Documents: &DocumentsService{transport: t, cache: c},
		WhatsApp:  &WhatsAppService{transport: t, cache: c},
	}
}

// doJSON sends a request and decodes the JSON response into T.
func doJSON[T any](ctx context.Context, t *transport.Client, req transport.Request) (T, error) {
	var out T
	resp, err := t.Do(ctx, req)
	if err != nil {
		return out, err
	}
	if len(resp.Body) == 0 {
		return out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// collectionTags tags a collection fetch with every contained item plus
// the collection's LIST tag, so both item and list mutations reach it.
func collectionTags(resource string, ids []int64) []cache.Tag {
	tags := make([]cache.Tag, 0, len(ids)+1)
	for _, id := range ids {
		tags = append(tags, cache.IDTag(resource, id))
	}
	return append(tags, cache.ListTag(resource))
}

func itemKey(prefix string, id int64) string {
	return fmt.Sprintf("%s:%d", prefix, id)
}
