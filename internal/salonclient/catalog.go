package salonclient

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"salonfront/pkg/domain"
)

// Services fetches the service catalog.
func (c *Client) Services(ctx context.Context) ([]domain.Service, error) {
	var items []domain.Service
	if err := c.doJSON(ctx, http.MethodGet, "/api/services", "", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Combos fetches the combo catalog.
func (c *Client) Combos(ctx context.Context) ([]domain.Combo, error) {
	var items []domain.Combo
	if err := c.doJSON(ctx, http.MethodGet, "/api/combos", "", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Catalog fetches services and combos concurrently and drops inactive
// entries; the storefront never offers what cannot be booked.
func (c *Client) Catalog(ctx context.Context) ([]domain.Service, []domain.Combo, error) {
	var (
		services []domain.Service
		combos   []domain.Combo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.Services(gctx)
		if err != nil {
			return err
		}
		services = activeServices(items)
		return nil
	})
	g.Go(func() error {
		items, err := c.Combos(gctx)
		if err != nil {
			return err
		}
		combos = activeCombos(items)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return services, combos, nil
}

func activeServices(items []domain.Service) []domain.Service {
	out := make([]domain.Service, 0, len(items))
	for _, s := range items {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

func activeCombos(items []domain.Combo) []domain.Combo {
	out := make([]domain.Combo, 0, len(items))
	for _, cb := range items {
		if cb.IsActive {
			out = append(out, cb)
		}
	}
	return out
}
