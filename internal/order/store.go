package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOrderNotFound is returned when an order id resolves to nothing.
var ErrOrderNotFound = errors.New("order not found")

// Store persists order aggregates.
type Store struct {
	Pool *pgxpool.Pool
}

// Create persists the draft and all its child records in one transaction:
// either every record is written or none is.
func (s Store) Create(ctx context.Context, d Draft) (Contract, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Contract{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now()
	serial := d.SerialNumber
	if serial == "" {
		serial = NewSerialNumber(now)
	}
	contract := Contract{
		ID:            uuid.New(),
		SerialNumber:  serial,
		Status:        StatusPendingPayment,
		TotalAmount:   d.TotalAmount,
		TotalIntegral: d.TotalIntegral,
		AutoCancelAt:  d.AutoCancelAt,
		Remark:        d.Remark,
		CreatedAt:     now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, serial_number, status, total_amount, total_integral, auto_cancel_at, remark, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		contract.ID, d.UserID, contract.SerialNumber, contract.Status,
		contract.TotalAmount, contract.TotalIntegral, contract.AutoCancelAt, contract.Remark, now)
	if err != nil {
		return Contract{}, err
	}
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, sku_id, sku_code, name, quantity, unit_price, total_price, extra, coupon_code, cart_line_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			line.ID, contract.ID, line.SkuID, line.SkuCode, line.Name,
			line.Quantity, line.UnitPrice, line.TotalPrice, line.Extra, line.CouponCode, line.CartLineID)
		if err != nil {
			return Contract{}, err
		}
	}
	for _, row := range d.Breakdown {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_price_breakdown (order_id, source, label, amount)
			VALUES ($1, $2, $3, $4)`,
			contract.ID, row.Source, row.Label, row.Amount)
		if err != nil {
			return Contract{}, err
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_contacts (order_id, address_id, receiver_name, phone, province, city, district, address_line)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		contract.ID, d.Contact.AddressID, d.Contact.ReceiverName, d.Contact.Phone,
		d.Contact.Province, d.Contact.City, d.Contact.District, d.Contact.AddressLine)
	if err != nil {
		return Contract{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, err
	}
	return contract, nil
}

// UpdateRemark replaces the order remark, used after moderation.
func (s Store) UpdateRemark(ctx context.Context, orderID uuid.UUID, remark string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE orders SET remark = $2 WHERE id = $1`, orderID, remark)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Get loads one order aggregate head.
func (s Store) Get(ctx context.Context, id uuid.UUID) (Contract, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, serial_number, status, total_amount, total_integral, auto_cancel_at, remark, created_at
		FROM orders WHERE id = $1`, id)
	var c Contract
	err := row.Scan(&c.ID, &c.SerialNumber, &c.Status, &c.TotalAmount, &c.TotalIntegral, &c.AutoCancelAt, &c.Remark, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contract{}, ErrOrderNotFound
	}
	if err != nil {
		return Contract{}, err
	}
	return c, nil
}
