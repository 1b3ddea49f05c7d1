package clients

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Skotchmaster/shop_checkout/internal/models"
)

type Address struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	models.AddressSnapshot
}

type AddressClient struct {
	base
}

func NewAddressClient(baseURL string) *AddressClient {
	return &AddressClient{base: newBase(baseURL)}
}

func (c *AddressClient) GetAddress(ctx context.Context, id string) (*Address, error) {
	var a Address
	if err := c.getJSON(ctx, "/addresses/"+url.PathEscape(id), &a); err != nil {
		return nil, fmt.Errorf("address %s: %w", id, err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return &a, nil
}
