package types

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
)

// Arithmetic errors. Every Amount operation reports failure instead of
// wrapping, so a caller can abort the whole operation.
var (
	ErrOverflow       = errors.New("amount: arithmetic overflow")
	ErrUnderflow      = errors.New("amount: arithmetic underflow")
	ErrDivisionByZero = errors.New("amount: division by zero")
	ErrInvalidAmount  = errors.New("amount: invalid decimal")
)

// amountBits is the width of an on-ledger token balance.
const amountBits = 128

// Amount is an unsigned 128-bit token quantity in the token's smallest unit.
// All arithmetic is integer-only and checked: a result that does not fit in
// 128 bits is reported as ErrOverflow.
//
// The zero value is a valid zero amount.
type Amount struct {
	v uint256.Int
}

// MaxAmount is 2^128 - 1.
var MaxAmount = func() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), amountBits)
	a.v.SubUint64(&a.v, 1)
	return a
}()

// NewAmount creates an Amount from a uint64.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// Pow10 returns 10^n. It reports ErrOverflow when the result exceeds 128 bits.
func Pow10(n uint) (Amount, error) {
	a := NewAmount(1)
	ten := NewAmount(10)
	for i := uint(0); i < n; i++ {
		var err error
		if a, err = a.Mul(ten); err != nil {
			return Amount{}, err
		}
	}
	return a, nil
}

// ParseAmount parses a base-10 string such as "1000000000000000000".
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%w: %q exceeds 128 bits", ErrOverflow, s)
	}
	return Amount{v: *v}, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.AddOverflow(&a.v, &b.v); overflow || r.v.BitLen() > amountBits {
		return Amount{}, ErrOverflow
	}
	return r, nil
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) (Amount, error) {
	var r Amount
	if _, underflow := r.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return r, nil
}

// Mul returns a * b.
func (a Amount) Mul(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.MulOverflow(&a.v, &b.v); overflow || r.v.BitLen() > amountBits {
		return Amount{}, ErrOverflow
	}
	return r, nil
}

// MulUint64 returns a * n.
func (a Amount) MulUint64(n uint64) (Amount, error) {
	return a.Mul(NewAmount(n))
}

// Div returns floor(a / b).
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	var r Amount
	r.v.Div(&a.v, &b.v)
	return r, nil
}

// DivUint64 returns floor(a / n).
func (a Amount) DivUint64(n uint64) (Amount, error) {
	return a.Div(NewAmount(n))
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.v.Lt(&b.v) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.v.Gt(&b.v) }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return !a.v.IsZero() }

// Uint64 returns the low 64 bits and whether the amount fits in a uint64.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// Float64 returns the nearest float64. Use it for metrics only.
func (a Amount) Float64() float64 {
	f, _ := strconv.ParseFloat(a.v.Dec(), 64)
	return f
}

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalText implements encoding.TextMarshaler. JSON encodes an Amount as a
// base-10 string so values above 2^53 survive JavaScript clients.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds all values, reporting ErrOverflow if the total exceeds 128 bits.
func Sum(values ...Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}
