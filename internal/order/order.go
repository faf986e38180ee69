// Package order defines the persisted order aggregate created by the
// checkout commit step.
package order

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusCancelled      Status = "CANCELLED"
)

// Contract is the order aggregate. It is created once by the commit step;
// after that this subsystem only reads it.
type Contract struct {
	ID            uuid.UUID
	SerialNumber  string
	Status        Status
	TotalAmount   string
	TotalIntegral *int64
	AutoCancelAt  time.Time
	Remark        string
	CreatedAt     time.Time
}

// Line is one purchased SKU on the order, including coupon-granted extras.
type Line struct {
	ID         uuid.UUID
	SkuID      uuid.UUID
	SkuCode    string
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
	Extra      bool
	CouponCode string
	CartLineID *uuid.UUID
}

// BreakdownRow is one component of the order's price breakdown.
type BreakdownRow struct {
	Source string
	Label  string
	Amount string
}

// Contact is the delivery contact captured on the order.
type Contact struct {
	AddressID    uuid.UUID
	ReceiverName string
	Phone        string
	Province     string
	City         string
	District     string
	AddressLine  string
}

// Draft bundles everything the commit step persists in one transaction.
type Draft struct {
	UserID        uuid.UUID
	SerialNumber  string
	TotalAmount   string
	TotalIntegral *int64
	AutoCancelAt  time.Time
	Remark        string
	Lines         []Line
	Breakdown     []BreakdownRow
	Contact       Contact
}

// NewSerialNumber builds a human-readable order serial: date, time and a
// random suffix to disambiguate same-second orders.
func NewSerialNumber(now time.Time) string {
	return fmt.Sprintf("%s%04d", now.Format("20060102150405"), rand.Intn(10000))
}
