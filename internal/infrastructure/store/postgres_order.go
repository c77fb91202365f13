package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/agri-procurement/internal/domain/order"
	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/errs"
	"github.com/example/agri-procurement/internal/event"
)

// PostgresOrderStore persists orders with their lines and outbox records in
// one transaction per save.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

func (s *PostgresOrderStore) Save(ctx context.Context, o *order.Order, events ...event.Envelope) error {
	records, err := toRecords(events)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if o.Version == 0 {
		if err := s.insert(ctx, tx, o); err != nil {
			return err
		}
		o.Version = 1
	} else {
		if err := s.update(ctx, tx, o); err != nil {
			return err
		}
		o.Version++
	}

	if err := insertOutboxRecords(ctx, tx, records); err != nil {
		o.Version--
		return err
	}
	if err := tx.Commit(); err != nil {
		o.Version--
		return err
	}
	return nil
}

func (s *PostgresOrderStore) insert(ctx context.Context, tx *sql.Tx, o *order.Order) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_id, total_amount, currency, status, saga_status,
			failure_reason, reservation_id, payment_id, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)`,
		o.ID, o.CustomerID, o.TotalAmount.Amount, o.TotalAmount.Currency,
		o.Status, o.SagaStatus, o.FailureReason, o.ReservationID, o.PaymentID,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}

	// Lines are immutable after creation; they are written once here.
	for i, line := range o.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, currency, line_total, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			line.ID, o.ID, line.ProductID, line.Quantity,
			line.UnitPrice.Amount, line.UnitPrice.Currency, line.LineTotal.Amount, i,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresOrderStore) update(ctx context.Context, tx *sql.Tx, o *order.Order) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, saga_status = $2, failure_reason = $3,
			reservation_id = $4, payment_id = $5, updated_at = $6, version = version + 1
		 WHERE id = $7 AND version = $8`,
		o.Status, o.SagaStatus, o.FailureReason, o.ReservationID, o.PaymentID,
		o.UpdatedAt, o.ID, o.Version,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %s at version %d", errs.ErrConcurrency, o.ID, o.Version)
	}
	return nil
}

const orderColumns = `id, customer_id, total_amount, currency, status, saga_status,
	failure_reason, reservation_id, payment_id, created_at, updated_at, version`

func (s *PostgresOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresOrderStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range result {
		if err := s.loadLines(ctx, o); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *PostgresOrderStore) ListStalled(ctx context.Context, statuses []order.SagaStatus, updatedBefore time.Time) ([]*order.Order, error) {
	var result []*order.Order
	for _, status := range statuses {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE saga_status = $1 AND updated_at < $2`,
			status, updatedBefore)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			result = append(result, o)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	for _, o := range result {
		if err := s.loadLines(ctx, o); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *PostgresOrderStore) loadLines(ctx context.Context, o *order.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, quantity, unit_price, currency, line_total
		 FROM order_lines WHERE order_id = $1 ORDER BY position ASC`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line      order.Line
			unitPrice decimal.Decimal
			lineTotal decimal.Decimal
			currency  string
		)
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Quantity, &unitPrice, &currency, &lineTotal); err != nil {
			return err
		}
		line.UnitPrice = valueobject.Money{Amount: unitPrice, Currency: currency}
		line.LineTotal = valueobject.Money{Amount: lineTotal, Currency: currency}
		o.Lines = append(o.Lines, line)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o        order.Order
		total    decimal.Decimal
		currency string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &total, &currency, &o.Status, &o.SagaStatus,
		&o.FailureReason, &o.ReservationID, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return nil, err
	}
	o.TotalAmount = valueobject.Money{Amount: total, Currency: currency}
	return &o, nil
}
