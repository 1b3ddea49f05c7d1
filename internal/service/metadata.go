package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
)

// addressRef is the compact address snapshot carried in session metadata.
// Processor metadata values are limited to 500 characters.
type addressRef struct {
	ID         string `json:"id"`
	FirstName  string `json:"fn,omitempty"`
	LastName   string `json:"ln,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"zip,omitempty"`
	Country    string `json:"cc,omitempty"`
}

type sessionMetadata struct {
	OrderID     uuid.UUID
	CartID      uuid.UUID
	Billing     addressRef
	Shipping    addressRef
	PromoCodes  []string
	AdHocCoupon string
}

func newAddressRef(id string, a models.AddressSnapshot) addressRef {
	return addressRef{
		ID:         id,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (m sessionMetadata) encode() (map[string]string, error) {
	billing, err := json.Marshal(m.Billing)
	if err != nil {
		return nil, err
	}
	shipping, err := json.Marshal(m.Shipping)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		payment.MetaOrderID:         m.OrderID.String(),
		payment.MetaCartID:          m.CartID.String(),
		payment.MetaBillingAddress:  string(billing),
		payment.MetaShippingAddress: string(shipping),
		payment.MetaPromoCodes:      strings.Join(m.PromoCodes, ","),
	}
	if m.AdHocCoupon != "" {
		out[payment.MetaAdHocCoupon] = m.AdHocCoupon
	}
	return out, nil
}

// decodeOrderID reads only the order reference. Session events other than
// completion need nothing else.
func decodeOrderID(md map[string]string) (uuid.UUID, error) {
	raw, ok := md[payment.MetaOrderID]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("%w: metadata has no %s", errPayload, payment.MetaOrderID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %s %q", errPayload, payment.MetaOrderID, raw)
	}
	return id, nil
}

func decodeMetadata(md map[string]string) (sessionMetadata, error) {
	var m sessionMetadata

	id, err := decodeOrderID(md)
	if err != nil {
		return m, err
	}
	m.OrderID = id

	if raw := md[payment.MetaCartID]; raw != "" {
		if m.CartID, err = uuid.Parse(raw); err != nil {
			return m, fmt.Errorf("%w: bad %s %q", errPayload, payment.MetaCartID, raw)
		}
	}

	for key, dst := range map[string]*addressRef{
		payment.MetaBillingAddress:  &m.Billing,
		payment.MetaShippingAddress: &m.Shipping,
	} {
		raw := md[key]
		if raw == "" {
			return m, fmt.Errorf("%w: metadata has no %s", errPayload, key)
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil || dst.ID == "" {
			return m, fmt.Errorf("%w: invalid %s", errPayload, key)
		}
	}

	if raw := md[payment.MetaPromoCodes]; raw != "" {
		m.PromoCodes = strings.Split(raw, ",")
	}
	m.AdHocCoupon = md[payment.MetaAdHocCoupon]
	return m, nil
}
