package api

import (
	"context"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

const wishlistKey = "wishlist:list"

type WishlistService struct {
	transport *transport.Client
	cache     *cache.Store
}

type WishlistItem struct {
	ID      int64   `json:"id"`
	Product Product `json:"product"`
}

type wishlistChange struct {
	ProductID int64 `json:"product_id"`
}

func (s *WishlistService) List(ctx context.Context) ([]WishlistItem, error) {
	return cache.QueryAs(ctx, s.cache, wishlistKey, func(ctx context.Context) ([]WishlistItem, []cache.Tag, error) {
		list, err := doJSON[[]WishlistItem](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   "/wishlist/",
		})
		if err != nil {
			return nil, nil, err
		}
		tags := []cache.Tag{cache.ListTag(resourceWishlist)}
		for _, item := range list {
			tags = append(tags, cache.IDTag(resourceProduct, item.Product.ID))
		}
		return list, tags, nil
	})
}

func (s *WishlistService) Add(ctx context.Context, productID int64) error {
	return s.cache.Mutate(ctx, func(ctx context.Context) error {
		_, err := s.transport.Do(ctx, transport.Request{
			Method: http.MethodPost,
			Path:   "/wishlist/",
			Body:   wishlistChange{ProductID: productID},
		})
		return err
	}, []cache.Tag{cache.ListTag(resourceWishlist)})
}

func (s *WishlistService) Remove(ctx context.Context, productID int64) error {
	return s.cache.Mutate(ctx, func(ctx context.Context) error {
		_, err := s.transport.Do(ctx, transport.Request{
			Method: http.MethodPost,
			Path:   "/wishlist/remove/",
			Body:   wishlistChange{ProductID: productID},
		})
		return err
	}, []cache.Tag{cache.ListTag(resourceWishlist)})
}
