package escrow

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed 128-bit token quantity. It is carried as a decimal so
// it survives JSON and numeric columns untouched; the i128 range is enforced
// on every value entering the state machine and on every arithmetic result.
type Amount = decimal.Decimal

var (
	maxI128 = decimal.RequireFromString("170141183460469231731687303715884105727")
	minI128 = decimal.RequireFromString("-170141183460469231731687303715884105728")
)

// PlatformFeePercent is the share of a pool paid to the admin at settlement.
const PlatformFeePercent = 5

// ParseAmount parses a base-10 integer string into an Amount. Only an
// optional leading minus followed by digits is accepted; exponents,
// fractional zeros and explicit plus signs are rejected.
func ParseAmount(s string) (Amount, error) {
	if !isIntegerLiteral(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func isIntegerLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateAmount reports whether a is an integer inside the i128 range.
func ValidateAmount(a Amount) error {
	if !a.IsInteger() {
		return fmt.Errorf("%w: %s is not an integer", ErrInvalidAmount, a.String())
	}
	if a.GreaterThan(maxI128) || a.LessThan(minI128) {
		return fmt.Errorf("%w: %s is outside the 128-bit range", ErrInvalidAmount, a.String())
	}
	return nil
}

func checkedAdd(a, b Amount) (Amount, error) {
	sum := a.Add(b)
	if sum.GreaterThan(maxI128) || sum.LessThan(minI128) {
		return decimal.Zero, ErrAmountOverflow
	}
	return sum, nil
}

func checkedMul(a Amount, n int64) (Amount, error) {
	p := a.Mul(decimal.NewFromInt(n))
	if p.GreaterThan(maxI128) || p.LessThan(minI128) {
		return decimal.Zero, ErrAmountOverflow
	}
	return p, nil
}

// Payout is the result of splitting a pool between winner and platform.
type Payout struct {
	WinnerAmount Amount `json:"winner_amount"`
	PlatformFee  Amount `json:"platform_fee"`
}

// SplitPool computes the platform fee as total*5/100 with truncating integer
// division and gives the remainder to the winner, so the two shares always
// sum to total.
func SplitPool(total Amount) (Payout, error) {
	scaled, err := checkedMul(total, PlatformFeePercent)
	if err != nil {
		return Payout{}, err
	}
	fee, _ := scaled.QuoRem(decimal.NewFromInt(100), 0)
	return Payout{
		WinnerAmount: total.Sub(fee),
		PlatformFee:  fee,
	}, nil
}
