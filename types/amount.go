package types

import (
	"errors"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// ErrNonFiniteAmount is returned by NewAmount when the caller tries to
// construct a NaN or infinite amount. spec.md §9 requires the priority
// comparison used by the transaction pool's heap to be a total order, which
// is only possible if NaN never reaches the heap — so it is rejected here,
// at construction, rather than guarded against at every comparison site.
var ErrNonFiniteAmount = errors.New("types: amount must be finite")

// ErrNegativeAmount is returned by NewAmount for a negative value; amounts
// and fees are defined as non-negative in spec.md §3.
var ErrNegativeAmount = errors.New("types: amount must be non-negative")

// Amount is a non-negative decimal value with a total order, used for both
// transaction amounts and fees (spec.md §3). Wrapping float64 in a
// constructor-validated type keeps NaN out of the transaction pool's heap
// without forcing every comparison call site to special-case it.
type Amount struct {
	value float64
}

// NewAmount validates v and wraps it. NaN, +Inf, -Inf and negative values
// are all rejected.
func NewAmount(v float64) (Amount, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}, ErrNonFiniteAmount
	}
	if v < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{value: v}, nil
}

// MustAmount is NewAmount for callers holding a compile-time-known-good
// literal (tests, genesis construction); it panics on an invalid value.
func MustAmount(v float64) Amount {
	a, err := NewAmount(v)
	if err != nil {
		panic(err)
	}
	return a
}

// Float64 returns the underlying value.
func (a Amount) Float64() float64 { return a.value }

// Add returns a + b. Both operands are already validated finite
// non-negative values, so the sum cannot overflow into NaN/Inf under any
// realistic supply.
func (a Amount) Add(b Amount) Amount {
	return Amount{value: a.value + b.value}
}

// Less reports whether a < b, the total order spec.md §4.3 relies on to
// prioritize the transaction pool's heap.
func (a Amount) Less(b Amount) bool { return a.value < b.value }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.value == b.value }

// String renders the canonical decimal form used in hash preimages
// (spec.md §3): the shortest representation that round-trips, matching how
// a literal like 5 or 0.1 would be written by a client.
func (a Amount) String() string {
	return strconv.FormatFloat(a.value, 'f', -1, 64)
}

// MarshalJSON renders Amount as a plain JSON number so it round-trips
// through the wire codec and the database exactly like any other numeric
// field.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.value)
}

// UnmarshalJSON accepts a JSON number and validates it the same way
// NewAmount does, so a malformed or non-finite value arriving over the wire
// is rejected rather than silently corrupting the pool's total order.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewAmount(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
