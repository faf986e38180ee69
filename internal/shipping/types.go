// Package shipping resolves shipping templates and zones and computes
// delivery fees with free-shipping thresholds.
package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrTemplateNotFound is returned when a referenced template does not exist.
	ErrTemplateNotFound = errors.New("shipping template not found")
	// ErrNotDeliverable is returned when a template cannot deliver to the destination.
	ErrNotDeliverable = errors.New("destination not deliverable")
)

// Basis selects what a template charges by.
type Basis string

const (
	BasisWeight Basis = "weight"
	BasisCount  Basis = "count"
	BasisVolume Basis = "volume"
)

// Unit returns the display unit for the basis. Display only; the numeric
// contract is the charge value itself.
func (b Basis) Unit() string {
	switch b {
	case BasisCount:
		return "件"
	case BasisVolume:
		return "m³"
	default:
		return "kg"
	}
}

// Rate prices a charge-unit value: a flat fee up to the first unit, then a
// surcharge per started additional unit.
type Rate struct {
	FirstUnit    string
	FirstFee     string
	AdditionUnit string
	AdditionFee  string
}

// Template is one shipping fee template.
type Template struct {
	ID            uuid.UUID
	Name          string
	Basis         Basis
	Rate          Rate
	FreeThreshold *string
}

// AreaRate is a geographic override of a template's base rate.
type AreaRate struct {
	Province      string
	City          string
	District      string
	HasCustomRate bool
	Rate          Rate
	FreeThreshold *string
}

// TemplateStore loads templates.
type TemplateStore interface {
	FindDefault(ctx context.Context) (Template, error)
	Find(ctx context.Context, id uuid.UUID) (Template, error)
}

// AreaStore answers deliverability and override-rate questions for a
// template against the province/city/district hierarchy.
type AreaStore interface {
	IsDeliverable(ctx context.Context, templateID uuid.UUID, province, city, district string) (bool, error)
	FindBestMatch(ctx context.Context, templateID uuid.UUID, province, city, district string) (*AreaRate, error)
}

// Line is one shippable quantity of a SKU.
type Line struct {
	SkuID      uuid.UUID
	Quantity   int
	UnitWeight string
	UnitVolume string
	TemplateID *uuid.UUID
}

// Input is a fee calculation request.
type Input struct {
	AddressID  uuid.UUID
	Lines      []Line
	OrderTotal string
}

// Detail is the per-template-group breakdown of a calculation.
type Detail struct {
	TemplateID    uuid.UUID
	TemplateName  string
	Basis         Basis
	ChargeValue   string
	Unit          string
	Fee           string
	FreeThreshold *string
	Free          bool
}

// Result is the outcome of a fee calculation.
type Result struct {
	Fee           string
	FreeThreshold *string
	Free          bool
	Deliverable   bool
	Details       []Detail
	Error         string
}
