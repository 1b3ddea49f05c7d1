package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/clients"
	"github.com/Skotchmaster/shop_checkout/internal/events"
	"github.com/Skotchmaster/shop_checkout/internal/idempotency"
	"github.com/Skotchmaster/shop_checkout/pkg/authclient"
)

type Catalog interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]clients.Product, error)
}

type Addresses interface {
	GetAddress(ctx context.Context, id string) (*clients.Address, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*authclient.User, error)
}

type Ledger interface {
	Claim(ctx context.Context, eventID string) (idempotency.State, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev events.OrderEvent) error
}
