package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/clients"
	"github.com/Skotchmaster/shop_checkout/internal/events"
	"github.com/Skotchmaster/shop_checkout/internal/idempotency"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/repo/repotest"
	"github.com/Skotchmaster/shop_checkout/pkg/authclient"
)

const validSig = "t=1,v1=valid"

type fakeGateway struct {
	mu sync.Mutex
	n  int

	sessions []payment.SessionRequest
	coupons  map[string]payment.CouponSpec
	deleted  []string
	invoices map[string][]payment.Invoice
	receipts map[string]string

	sessionErr error
	couponErr  error
	deleteErr  error
	listErr    error
	receiptErr error

	// onCreateCoupon runs after an id is assigned, before it is returned
	onCreateCoupon func(id string, spec payment.CouponSpec)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		coupons:  map[string]payment.CouponSpec{},
		invoices: map[string][]payment.Invoice{},
		receipts: map[string]string{},
	}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	g.n++
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_test_%d", g.n)
	return &payment.Session{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) CreateCoupon(_ context.Context, spec payment.CouponSpec) (*payment.Coupon, error) {
	g.mu.Lock()
	if g.couponErr != nil {
		g.mu.Unlock()
		return nil, g.couponErr
	}
	g.n++
	id := fmt.Sprintf("co_%d", g.n)
	g.coupons[id] = spec
	hook := g.onCreateCoupon
	g.mu.Unlock()

	if hook != nil {
		hook(id, spec)
	}
	return &payment.Coupon{ID: id}, nil
}

func (g *fakeGateway) DeleteCoupon(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	delete(g.coupons, id)
	g.deleted = append(g.deleted, id)
	return nil
}

func (g *fakeGateway) ListInvoices(_ context.Context, customerID string, limit int) ([]payment.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	inv := g.invoices[customerID]
	if len(inv) > limit {
		inv = inv[:limit]
	}
	return inv, nil
}

func (g *fakeGateway) ReceiptURL(_ context.Context, sessionID string) (string, error) {
	if g.receiptErr != nil {
		return "", g.receiptErr
	}
	return g.receipts[sessionID], nil
}

// ParseWebhook accepts the processor event envelope and trusts validSig only.
func (g *fakeGateway) ParseWebhook(payload []byte, sig string) (payment.Event, error) {
	if sig != validSig {
		return payment.Event{}, payment.ErrInvalidSignature
	}
	var env struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return payment.Event{}, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
	}
	return payment.DecodeEvent(env.ID, env.Type, env.Data.Object)
}

func (g *fakeGateway) couponCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.coupons)
}

type memLedger struct {
	mu    sync.Mutex
	state map[string]idempotency.State
	err   error
}

func newMemLedger() *memLedger {
	return &memLedger{state: map[string]idempotency.State{}}
}

func (l *memLedger) Claim(_ context.Context, id string) (idempotency.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	if st, ok := l.state[id]; ok {
		return st, nil
	}
	l.state[id] = idempotency.InFlight
	return idempotency.Claimed, nil
}

func (l *memLedger) Complete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state[id] = idempotency.Done
	return nil
}

func (l *memLedger) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.state, id)
	return nil
}

func (l *memLedger) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.state, id)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakeCatalog struct {
	products map[uuid.UUID]clients.Product
	err      error
}

func (c *fakeCatalog) GetProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]clients.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := map[uuid.UUID]clients.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeAddresses struct {
	byID map[string]*clients.Address
}

func (a *fakeAddresses) GetAddress(_ context.Context, id string) (*clients.Address, error) {
	if addr, ok := a.byID[id]; ok {
		return addr, nil
	}
	return nil, clients.ErrNotFound
}

type fakeUsers struct {
	byID map[string]*authclient.User
	err  error
}

func (u *fakeUsers) GetUser(_ context.Context, id string) (*authclient.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	if usr, ok := u.byID[id]; ok {
		return usr, nil
	}
	return nil, authclient.ErrUserNotFound
}

var errBoom = errors.New("boom")

func utcNow() time.Time { return time.Now().UTC() }

// testEnv wires every service against one in-memory database.
type testEnv struct {
	repo     *repo.GormRepo
	gw       *fakeGateway
	ledger   *memLedger
	pub      *fakePublisher
	catalog  *fakeCatalog
	addrs    *fakeAddresses
	users    *fakeUsers
	checkout *CheckoutService
	webhook  *WebhookProcessor
	syncer   *CouponSyncer
	promos   *PromoCodeService
	orders   *OrderService
	carts    *CartService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	r := repotest.NewRepo(t)
	gw := newFakeGateway()
	env := &testEnv{
		repo:    r,
		gw:      gw,
		ledger:  newMemLedger(),
		pub:     &fakePublisher{},
		catalog: &fakeCatalog{products: map[uuid.UUID]clients.Product{}},
		addrs:   &fakeAddresses{byID: map[string]*clients.Address{}},
		users:   &fakeUsers{byID: map[string]*authclient.User{}},
	}
	env.checkout = &CheckoutService{
		Repo: r, Gateway: gw, Catalog: env.catalog, Addresses: env.addrs,
		Currency: "inr", ClientURL: "http://shop.test", Now: utcNow,
	}
	env.webhook = &WebhookProcessor{Repo: r, Gateway: gw, Ledger: env.ledger, Events: env.pub}
	env.syncer = &CouponSyncer{Repo: r, Gateway: gw, Currency: "inr", Now: utcNow}
	env.promos = &PromoCodeService{Repo: r, Gateway: gw, Syncer: env.syncer, Now: utcNow}
	env.orders = &OrderService{Repo: r, Gateway: gw, Catalog: env.catalog, Users: env.users, Events: env.pub}
	env.carts = &CartService{Repo: r}
	return env
}

func (e *testEnv) product(name string, price int64) uuid.UUID {
	id := uuid.New()
	e.catalog.products[id] = clients.Product{ID: id, Name: name, Price: price, Images: []string{"http://img/" + name}}
	return id
}

func (e *testEnv) address(id, email, first string) {
	a := &clients.Address{ID: id, Email: email}
	a.FirstName = first
	a.LastName = "Test"
	a.City = "Pune"
	e.addrs.byID[id] = a
}
