package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/agri-procurement/internal/domain/procurement"
	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/errs"
	"github.com/example/agri-procurement/internal/event"
)

// PostgresProcurementStore persists procurements with their bids and outbox
// records in one transaction per save.
type PostgresProcurementStore struct {
	db *sql.DB
}

func NewPostgresProcurementStore(db *sql.DB) *PostgresProcurementStore {
	return &PostgresProcurementStore{db: db}
}

func (s *PostgresProcurementStore) Save(ctx context.Context, p *procurement.Procurement, events ...event.Envelope) error {
	records, err := toRecords(events)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if p.Version == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO procurements (id, title, description, quantity_amount, quantity_unit,
				budget_amount, budget_currency, deadline, buyer_id, status, awarded_bid_id,
				created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)`,
			p.ID, p.Title, p.Description, p.Quantity.Amount, p.Quantity.Unit,
			p.Budget.Amount, p.Budget.Currency, p.Deadline, p.BuyerID, p.Status, p.AwardedBidID,
			p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		p.Version = 1
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE procurements SET title = $1, description = $2, quantity_amount = $3,
				quantity_unit = $4, budget_amount = $5, budget_currency = $6, deadline = $7,
				status = $8, awarded_bid_id = $9, updated_at = $10, version = version + 1
			 WHERE id = $11 AND version = $12`,
			p.Title, p.Description, p.Quantity.Amount, p.Quantity.Unit,
			p.Budget.Amount, p.Budget.Currency, p.Deadline,
			p.Status, p.AwardedBidID, p.UpdatedAt, p.ID, p.Version,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: procurement %s at version %d", errs.ErrConcurrency, p.ID, p.Version)
		}
		p.Version++
	}

	// Bids change status in place during award/cancel, so the owned
	// collection is rewritten wholesale on every save.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bids WHERE procurement_id = $1`, p.ID); err != nil {
		p.Version--
		return err
	}
	for i, bid := range p.Bids {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bids (id, procurement_id, vendor_id, amount, currency, submitted_at, status, notes, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			bid.ID, p.ID, bid.VendorID, bid.Amount.Amount, bid.Amount.Currency,
			bid.SubmittedAt, bid.Status, bid.Notes, i,
		)
		if err != nil {
			p.Version--
			return err
		}
	}

	if err := insertOutboxRecords(ctx, tx, records); err != nil {
		p.Version--
		return err
	}
	if err := tx.Commit(); err != nil {
		p.Version--
		return err
	}
	return nil
}

const procurementColumns = `id, title, description, quantity_amount, quantity_unit,
	budget_amount, budget_currency, deadline, buyer_id, status, awarded_bid_id,
	created_at, updated_at, version`

func (s *PostgresProcurementStore) Get(ctx context.Context, id string) (*procurement.Procurement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+procurementColumns+` FROM procurements WHERE id = $1`, id)

	p, err := scanProcurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: procurement %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadBids(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresProcurementStore) List(ctx context.Context, filter procurement.Filter) ([]*procurement.Procurement, error) {
	query := `SELECT ` + procurementColumns + ` FROM procurements WHERE 1=1`
	var args []any
	if filter.BuyerID != "" {
		args = append(args, filter.BuyerID)
		query += fmt.Sprintf(" AND buyer_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ActiveOnly {
		args = append(args, time.Now())
		query += fmt.Sprintf(" AND status IN ('published', 'bidding_open') AND deadline > $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	return s.queryProcurements(ctx, query, args...)
}

func (s *PostgresProcurementStore) ListExpiredBidding(ctx context.Context, now time.Time) ([]*procurement.Procurement, error) {
	return s.queryProcurements(ctx,
		`SELECT `+procurementColumns+` FROM procurements WHERE status = 'bidding_open' AND deadline < $1`,
		now)
}

func (s *PostgresProcurementStore) queryProcurements(ctx context.Context, query string, args ...any) ([]*procurement.Procurement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*procurement.Procurement
	for rows.Next() {
		p, err := scanProcurement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range result {
		if err := s.loadBids(ctx, p); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *PostgresProcurementStore) loadBids(ctx context.Context, p *procurement.Procurement) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor_id, amount, currency, submitted_at, status, notes
		 FROM bids WHERE procurement_id = $1 ORDER BY position ASC`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			bid      procurement.Bid
			amount   decimal.Decimal
			currency string
		)
		if err := rows.Scan(&bid.ID, &bid.VendorID, &amount, &currency, &bid.SubmittedAt, &bid.Status, &bid.Notes); err != nil {
			return err
		}
		bid.Amount = valueobject.Money{Amount: amount, Currency: currency}
		p.Bids = append(p.Bids, bid)
	}
	return rows.Err()
}

func scanProcurement(row rowScanner) (*procurement.Procurement, error) {
	var (
		p              procurement.Procurement
		quantityAmount decimal.Decimal
		quantityUnit   string
		budgetAmount   decimal.Decimal
		budgetCurrency string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &quantityAmount, &quantityUnit,
		&budgetAmount, &budgetCurrency, &p.Deadline, &p.BuyerID, &p.Status, &p.AwardedBidID,
		&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		return nil, err
	}
	p.Quantity = valueobject.Quantity{Amount: quantityAmount, Unit: valueobject.Unit(quantityUnit)}
	p.Budget = valueobject.Money{Amount: budgetAmount, Currency: budgetCurrency}
	return &p, nil
}
