// Package shipping resolves shipping methods to costs from a static catalog.
package shipping

import (
	"time"

	"github.com/salvashop/shopapi/internal/domain"
)

const (
	DefaultMethodID = "standard_ss"
	fallbackName    = "Standard shipping"
)

func float(v float64) *float64 { return &v }

// DefaultCatalog is the built-in list of shipping methods
func DefaultCatalog() []domain.ShippingMethod {
	return []domain.ShippingMethod{
		{
			ID:                    "standard_ss",
			Name:                  "Standard shipping - San Salvador",
			Description:           "Delivery within San Salvador and metro area",
			BasePrice:             3.00,
			EstimatedDaysMin:      2,
			EstimatedDaysMax:      4,
			Carrier:               "Correos de El Salvador",
			IsActive:              true,
			FreeShippingThreshold: float(50),
		},
		{
			ID:                    "standard_national",
			Name:                  "Standard shipping - National",
			Description:           "Delivery to any department of El Salvador",
			BasePrice:             5.00,
			EstimatedDaysMin:      3,
			EstimatedDaysMax:      7,
			Carrier:               "Correos de El Salvador",
			IsActive:              true,
			FreeShippingThreshold: float(75),
		},
		{
			ID:               "express",
			Name:             "Express shipping",
			Description:      "Next business day delivery in San Salvador",
			BasePrice:        10.00,
			EstimatedDaysMin: 1,
			EstimatedDaysMax: 2,
			Carrier:          "DHL Express",
			IsActive:         true,
			MaxWeightKg:      float(10),
		},
	}
}

// Quote is the priced outcome of a shipping lookup
type Quote struct {
	MethodID          string     `json:"method_id"`
	MethodName        string     `json:"method_name"`
	Cost              float64    `json:"cost"`
	FreeShipping      bool       `json:"free_shipping"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

type Resolver struct {
	methods []domain.ShippingMethod
	byID    map[string]domain.ShippingMethod
	now     func() time.Time
}

func NewResolver(methods []domain.ShippingMethod) *Resolver {
	r := &Resolver{
		methods: methods,
		byID:    make(map[string]domain.ShippingMethod, len(methods)),
		now:     time.Now,
	}
	for _, m := range methods {
		r.byID[m.ID] = m
	}
	return r
}

// Methods lists the active methods in catalog order
func (r *Resolver) Methods() []domain.ShippingMethod {
	active := make([]domain.ShippingMethod, 0, len(r.methods))
	for _, m := range r.methods {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

// Quote prices a method for the given subtotal. Unknown or inactive ids fall
// back to a zero-cost standard label instead of failing.
func (r *Resolver) Quote(methodID string, subtotal float64) Quote {
	if methodID == "" {
		methodID = DefaultMethodID
	}
	m, ok := r.byID[methodID]
	if !ok || !m.IsActive {
		return Quote{MethodID: methodID, MethodName: fallbackName}
	}

	q := Quote{
		MethodID:   m.ID,
		MethodName: m.Name,
		Cost:       m.BasePrice,
	}
	if m.FreeShippingThreshold != nil && subtotal >= *m.FreeShippingThreshold {
		q.Cost = 0
		q.FreeShipping = true
	}
	eta := r.now().UTC().AddDate(0, 0, m.EstimatedDaysMax)
	q.EstimatedDelivery = &eta
	return q
}
