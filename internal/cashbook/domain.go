package cashbook

import (
	"errors"
	"time"

	"github.com/vela-pos/vela-pos/internal/ledger"
)

// Direction marks whether money entered or left the till or bank account.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Movement records one physical cash or bank movement.
type Movement struct {
	ID         int64
	CompanyID  int64
	Instrument ledger.Instrument
	Direction  Direction
	Amount     float64
	Memo       string
	RefModule  string
	RefID      string
	OccurredAt time.Time
	CreatedAt  time.Time
}

// ErrInvalidMovement indicates a non-positive amount or missing fields.
var ErrInvalidMovement = errors.New("cashbook: invalid movement")

// Validate checks required fields before persistence.
func (m Movement) Validate() error {
	if m.CompanyID == 0 || m.Amount <= 0 {
		return ErrInvalidMovement
	}
	if m.Direction != DirectionIn && m.Direction != DirectionOut {
		return ErrInvalidMovement
	}
	if _, err := ledger.InstrumentAccount(m.Instrument); err != nil {
		return err
	}
	return nil
}
