// Package stock checks requested quantities against available inventory and
// reserves stock after an order is durably persisted.
package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultLowStockThreshold marks remaining quantities that warrant a warning.
const DefaultLowStockThreshold = 10

// SkuInfo is the inventory view of one SKU.
type SkuInfo struct {
	ID            uuid.UUID
	Code          string
	Name          string
	Available     int
	Active        bool
	ProductActive bool
}

// Service resolves a SKU and its available quantity.
type Service interface {
	GetSku(ctx context.Context, id uuid.UUID) (SkuInfo, error)
}

// Operator reserves stock quantities. Reservation happens as a discrete
// step after the order is persisted; the window between validation and
// reservation is not closed by this package.
type Operator interface {
	LockStock(ctx context.Context, skuID uuid.UUID, quantity int) error
}

// Request is one quantity check.
type Request struct {
	SkuID    uuid.UUID
	Quantity int
	Selected bool
}

// Detail describes one processed SKU for consumers of the result.
type Detail struct {
	Code      string
	Name      string
	Requested int
	Available int
}

// Result is the outcome of a stock validation. It is valid iff no SKU
// produced an error; warnings leave the result valid.
type Result struct {
	Valid    bool
	Errors   map[uuid.UUID]string
	Warnings map[uuid.UUID]string
	Details  map[uuid.UUID]Detail
}

// InactiveProductError is the hard stop raised when a SKU or its parent
// product is no longer sellable.
type InactiveProductError struct {
	SkuID uuid.UUID
	Name  string
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("product %q is no longer available", e.Name)
}

// Validator checks requested quantities against available inventory.
type Validator struct {
	Svc               Service
	LowStockThreshold int
}

// Validate processes every selected request; unselected requests are
// skipped entirely. An inactive SKU or product fails the whole validation
// immediately: an unsellable product must never pass, even as a soft error.
func (v Validator) Validate(ctx context.Context, requests []Request) (Result, error) {
	threshold := v.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	result := Result{
		Valid:    true,
		Errors:   map[uuid.UUID]string{},
		Warnings: map[uuid.UUID]string{},
		Details:  map[uuid.UUID]Detail{},
	}
	for _, req := range requests {
		if !req.Selected {
			continue
		}
		sku, err := v.Svc.GetSku(ctx, req.SkuID)
		if err != nil {
			return Result{}, fmt.Errorf("resolve sku %s: %w", req.SkuID, err)
		}
		if !sku.Active || !sku.ProductActive {
			return Result{}, &InactiveProductError{SkuID: sku.ID, Name: sku.Name}
		}
		result.Details[sku.ID] = Detail{
			Code:      sku.Code,
			Name:      sku.Name,
			Requested: req.Quantity,
			Available: sku.Available,
		}
		switch {
		case sku.Available <= 0:
			result.Errors[sku.ID] = fmt.Sprintf("%s is out of stock", sku.Name)
			result.Valid = false
		case sku.Available < req.Quantity:
			result.Errors[sku.ID] = fmt.Sprintf("only %d of %s available", sku.Available, sku.Name)
			result.Valid = false
		case sku.Available < threshold:
			result.Warnings[sku.ID] = fmt.Sprintf("only %d of %s left", sku.Available, sku.Name)
		}
	}
	return result, nil
}
