package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/agri-procurement/internal/errs"
)

// Unit is a unit of measure for procured goods.
type Unit string

const (
	UnitKilogram Unit = "kg"
	UnitTon      Unit = "t"
	UnitLiter    Unit = "L"
	UnitPiece    Unit = "pc"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKilogram, UnitTon, UnitLiter, UnitPiece:
		return true
	}
	return false
}

// Quantity is a positive amount with a unit. Arithmetic across units fails
// with errs.ErrUnitMismatch.
type Quantity struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   Unit            `json:"unit"`
}

func NewQuantity(amount decimal.Decimal, unit Unit) (Quantity, error) {
	if !unit.Valid() {
		return Quantity{}, fmt.Errorf("%w: unknown unit %q", errs.ErrValidation, unit)
	}
	if !amount.IsPositive() {
		return Quantity{}, fmt.Errorf("%w: quantity must be positive", errs.ErrValidation)
	}
	return Quantity{Amount: amount, Unit: unit}, nil
}

func MustQuantity(amount string, unit Unit) Quantity {
	q, err := NewQuantity(decimal.RequireFromString(amount), unit)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) sameUnit(other Quantity) error {
	if q.Unit != other.Unit {
		return fmt.Errorf("%w: %s vs %s", errs.ErrUnitMismatch, q.Unit, other.Unit)
	}
	return nil
}

func (q Quantity) Add(other Quantity) (Quantity, error) {
	if err := q.sameUnit(other); err != nil {
		return Quantity{}, err
	}
	return Quantity{Amount: q.Amount.Add(other.Amount), Unit: q.Unit}, nil
}

func (q Quantity) Subtract(other Quantity) (Quantity, error) {
	if err := q.sameUnit(other); err != nil {
		return Quantity{}, err
	}
	result := q.Amount.Sub(other.Amount)
	if !result.IsPositive() {
		return Quantity{}, fmt.Errorf("%w: result must stay positive", errs.ErrValidation)
	}
	return Quantity{Amount: result, Unit: q.Unit}, nil
}

func (q Quantity) GreaterThan(other Quantity) (bool, error) {
	if err := q.sameUnit(other); err != nil {
		return false, err
	}
	return q.Amount.GreaterThan(other.Amount), nil
}

func (q Quantity) LessThan(other Quantity) (bool, error) {
	if err := q.sameUnit(other); err != nil {
		return false, err
	}
	return q.Amount.LessThan(other.Amount), nil
}

func (q Quantity) String() string {
	return q.Amount.String() + " " + string(q.Unit)
}
