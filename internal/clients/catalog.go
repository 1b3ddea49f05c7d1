package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

type Product struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Price  int64     `json:"price"`
	Images []string  `json:"images"`
}

type CatalogClient struct {
	base
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{base: newBase(baseURL)}
}

// GetProducts fetches the listed products in one call. Unknown ids are simply
// absent from the result.
func (c *CatalogClient) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}

	var products []Product
	if err := c.getJSON(ctx, "/products?ids="+url.QueryEscape(strings.Join(parts, ",")), &products); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
