package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindUnknown               Kind = "unknown"
	KindSessionCompleted      Kind = "checkout.session.completed"
	KindSessionExpired        Kind = "checkout.session.expired"
	KindAsyncPaymentSucceeded Kind = "checkout.session.async_payment_succeeded"
	KindAsyncPaymentFailed    Kind = "checkout.session.async_payment_failed"
	KindCouponCreated         Kind = "coupon.created"
	KindCouponUpdated         Kind = "coupon.updated"
	KindCouponDeleted         Kind = "coupon.deleted"
)

// Payload is implemented only by the payload types of this package.
type Payload interface {
	isPayload()
}

// Event is a verified processor notification. Payload is a *SessionPayload
// for session kinds, a *CouponPayload for coupon kinds and nil otherwise.
type Event struct {
	ID      string
	Kind    Kind
	RawType string
	Payload Payload
}

type SessionPayload struct {
	ID            string
	AmountTotal   int64
	Currency      string
	CustomerID    string
	CustomerEmail string
	PaymentStatus string
	Metadata      map[string]string
	CouponIDs     []string
}

type CouponPayload struct {
	ID         string
	Name       string
	AmountOff  int64
	PercentOff float64
	Currency   string
	RedeemBy   *time.Time
	Metadata   map[string]string
}

func (*SessionPayload) isPayload() {}
func (*CouponPayload) isPayload()  {}

func (e Event) Session() (*SessionPayload, bool) {
	p, ok := e.Payload.(*SessionPayload)
	return p, ok
}

func (e Event) Coupon() (*CouponPayload, bool) {
	p, ok := e.Payload.(*CouponPayload)
	return p, ok
}

// expandable is an object reference the processor sends either as a bare id
// or as the expanded object.
type expandable string

func (x *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*x = expandable(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*x = expandable(obj.ID)
	return nil
}

type rawSession struct {
	ID              string            `json:"id"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Customer        expandable        `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
	Discounts     []struct {
		Coupon expandable `json:"coupon"`
	} `json:"discounts"`
}

type rawCoupon struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	AmountOff  int64             `json:"amount_off"`
	PercentOff float64           `json:"percent_off"`
	Currency   string            `json:"currency"`
	RedeemBy   int64             `json:"redeem_by"`
	Metadata   map[string]string `json:"metadata"`
}

// DecodeEvent turns the object of a verified event into its typed payload.
// Unrecognised types decode to KindUnknown without error.
func DecodeEvent(id, eventType string, object json.RawMessage) (Event, error) {
	ev := Event{ID: id, Kind: KindUnknown, RawType: eventType}

	switch k := Kind(eventType); k {
	case KindSessionCompleted, KindSessionExpired, KindAsyncPaymentSucceeded, KindAsyncPaymentFailed:
		var rs rawSession
		if err := json.Unmarshal(object, &rs); err != nil {
			return ev, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, eventType, err)
		}
		sp := &SessionPayload{
			ID:            rs.ID,
			AmountTotal:   rs.AmountTotal,
			Currency:      rs.Currency,
			CustomerID:    string(rs.Customer),
			CustomerEmail: rs.CustomerEmail,
			PaymentStatus: rs.PaymentStatus,
			Metadata:      rs.Metadata,
		}
		if sp.CustomerEmail == "" && rs.CustomerDetails != nil {
			sp.CustomerEmail = rs.CustomerDetails.Email
		}
		for _, d := range rs.Discounts {
			if d.Coupon != "" {
				sp.CouponIDs = append(sp.CouponIDs, string(d.Coupon))
			}
		}
		ev.Kind, ev.Payload = k, sp

	case KindCouponCreated, KindCouponUpdated, KindCouponDeleted:
		var rc rawCoupon
		if err := json.Unmarshal(object, &rc); err != nil {
			return ev, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, eventType, err)
		}
		if rc.ID == "" {
			return ev, fmt.Errorf("%w: %s: coupon without id", ErrMalformedEvent, eventType)
		}
		cp := &CouponPayload{
			ID:         rc.ID,
			Name:       rc.Name,
			AmountOff:  rc.AmountOff,
			PercentOff: rc.PercentOff,
			Currency:   rc.Currency,
			Metadata:   rc.Metadata,
		}
		if rc.RedeemBy > 0 {
			t := time.Unix(rc.RedeemBy, 0).UTC()
			cp.RedeemBy = &t
		}
		ev.Kind, ev.Payload = k, cp
	}

	return ev, nil
}
