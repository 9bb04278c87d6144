package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money is a currency amount kept at two decimal places.
// It scans from and writes to PostgreSQL NUMERIC columns through the
// embedded decimal and always renders with exactly two decimals.
type Money struct {
	decimal.Decimal
}

// ZeroMoney is the amount "0.00".
var ZeroMoney = Money{Decimal: decimal.Zero}

// MaxMoney is the largest amount a NUMERIC(12, 2) column holds.
var MaxMoney = Money{Decimal: decimal.New(999999999999, -2)}

// NewMoney converts a float amount, rounding half away from zero to cents.
func NewMoney(amount float64) Money {
	return Money{Decimal: decimal.NewFromFloat(amount).Round(2)}
}

// ParseMoney parses a decimal string such as "9.99".
func ParseMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, err
	}
	return Money{Decimal: d.Round(2)}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Decimal: m.Decimal.Add(other.Decimal)}
}

// Equal reports whether both amounts are numerically equal.
func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

func (m Money) String() string {
	return m.Decimal.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON number or decimal string and rounds it to
// cents, so validation sees the amount that will be stored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	m.Decimal = d.Round(2)
	return nil
}

// RoundCents returns m rounded half away from zero to two decimals.
func (m Money) RoundCents() Money {
	return Money{Decimal: m.Decimal.Round(2)}
}

// Storable reports whether m fits a NUMERIC(12, 2) column.
func (m Money) Storable() bool {
	return m.RoundCents().Abs().LessThanOrEqual(MaxMoney.Decimal)
}
