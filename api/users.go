package api

import (
	"context"
	"net/http"

	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
	"github.com/stitchline/portal-client/users"
)

const usersListKey = "users:list"

// UsersService covers the admin-only user directory.
type UsersService struct {
	transport *transport.Client
	cache     *cache.Store
}

func (s *UsersService) List(ctx context.Context) ([]users.Profile, error) {
	return cache.QueryAs(ctx, s.cache, usersListKey, func(ctx context.Context) ([]users.Profile, []cache.Tag, error) {
		list, err := doJSON[[]users.Profile](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   "/users/",
		})
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int64, 0, len(list))
		for _, u := range list {
			ids = append(ids, u.ID)
		}
		return list, collectionTags(resourceUser, ids), nil
	})
}
