package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

const solDecimals = 9

// Lamports is a monetary amount in the smallest SOL unit. Amounts are kept as
// integers so pool arithmetic stays exact both in Go and in SQL.
type Lamports int64

var errInvalidAmount = errors.New("invalid amount")

// ParseSOL parses a decimal SOL amount such as "0.1" into lamports.
func ParseSOL(s string) (Lamports, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	return FromSOL(d)
}

// FromSOL converts a decimal SOL amount into lamports. Negative amounts and
// amounts finer than one lamport are rejected.
func FromSOL(d decimal.Decimal) (Lamports, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", errInvalidAmount, d.String())
	}
	shifted := d.Shift(solDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", errInvalidAmount, d.String(), solDecimals)
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %s is too large", errInvalidAmount, d.String())
	}
	return Lamports(shifted.IntPart()), nil
}

// SOL returns the amount as a decimal number of SOL.
func (l Lamports) SOL() decimal.Decimal {
	return decimal.New(int64(l), -solDecimals)
}

func (l Lamports) String() string {
	return l.SOL().String()
}

// Entries returns how many whole units of unitPrice fit in l. The remainder is
// never credited.
func (l Lamports) Entries(unitPrice Lamports) int64 {
	if unitPrice <= 0 || l <= 0 {
		return 0
	}
	return int64(l / unitPrice)
}

// MarshalJSON renders the amount as a quoted decimal SOL string.
func (l Lamports) MarshalJSON() ([]byte, error) {
	return l.SOL().MarshalJSON()
}

// UnmarshalJSON accepts a SOL amount given either as a JSON number or as a
// quoted decimal string.
func (l *Lamports) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %s", errInvalidAmount, string(b))
	}
	v, err := FromSOL(d)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Value implements driver.Valuer.
func (l Lamports) Value() (driver.Value, error) {
	return int64(l), nil
}

// Scan implements sql.Scanner.
func (l *Lamports) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = 0
	case int64:
		*l = Lamports(v)
	case float64:
		*l = Lamports(math.Round(v))
	case []byte:
		return l.scanString(string(v))
	case string:
		return l.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Lamports", src)
	}
	return nil
}

func (l *Lamports) scanString(s string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("cannot scan %q into Lamports: %w", s, err)
	}
	*l = Lamports(n)
	return nil
}
