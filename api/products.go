package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
)

const productsListKey = "products:list"

type ProductsService struct {
	transport *transport.Client
	cache     *cache.Store
}

type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
}

type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
}

func (s *ProductsService) List(ctx context.Context) ([]Product, error) {
	return cache.QueryAs(ctx, s.cache, productsListKey, func(ctx context.Context) ([]Product, []cache.Tag, error) {
		list, err := doJSON[[]Product](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   "/products/",
		})
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int64, 0, len(list))
		for _, p := range list {
			ids = append(ids, p.ID)
		}
		return list, collectionTags(resourceProduct, ids), nil
	})
}

func (s *ProductsService) Get(ctx context.Context, id int64) (*Product, error) {
	return cache.QueryAs(ctx, s.cache, itemKey("products", id), func(ctx context.Context) (*Product, []cache.Tag, error) {
		product, err := doJSON[Product](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/products/%d/", id),
		})
		if err != nil {
			return nil, nil, err
		}
		return &product, []cache.Tag{cache.IDTag(resourceProduct, id)}, nil
	})
}

func (s *ProductsService) Create(ctx context.Context, input ProductInput) (*Product, error) {
	var product Product
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		product, err = doJSON[Product](ctx, s.transport, transport.Request{
			Method: http.MethodPost,
			Path:   "/products/",
			Body:   input,
		})
		return err
	}, []cache.Tag{cache.ListTag(resourceProduct)})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ProductsService) Update(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	var product Product
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		product, err = doJSON[Product](ctx, s.transport, transport.Request{
			Method: http.MethodPatch,
			Path:   fmt.Sprintf("/products/%d/", id),
			Body:   input,
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceProduct, id), cache.ListTag(resourceProduct)})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ProductsService) Delete(ctx context.Context, id int64) error {
	return s.cache.Mutate(ctx, func(ctx context.Context) error {
		_, err := s.transport.Do(ctx, transport.Request{
			Method: http.MethodDelete,
			Path:   fmt.Sprintf("/products/%d/", id),
		})
		return err
	}, []cache.Tag{cache.IDTag(resourceProduct, id), cache.ListTag(resourceProduct)})
}
