// README: Common money value object used across modules. Amounts are integer pence.
package types

import "fmt"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

const DefaultCurrency = "GBP"

func Pence(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount + other.Amount, Currency: m.currencyOr(other.Currency)}
}

func (m Money) Sub(other Money) Money {
	return Money{Amount: m.Amount - other.Amount, Currency: m.currencyOr(other.Currency)}
}

// DivRound splits the amount into n shares, rounding half up to the
// nearest penny. Non-positive n yields zero.
func (m Money) DivRound(n int64) Money {
	if n <= 0 {
		return Money{Amount: 0, Currency: m.Currency}
	}
	return Money{Amount: divRound(m.Amount, n), Currency: m.Currency}
}

// MulPercent scales the amount by pct/100, rounding half up.
func (m Money) MulPercent(pct int64) Money {
	return Money{Amount: divRound(m.Amount*pct, 100), Currency: m.Currency}
}

// MulRatio scales the amount by num/den, rounding half up.
func (m Money) MulRatio(num, den int64) Money {
	if den == 0 {
		return Money{Amount: 0, Currency: m.Currency}
	}
	return Money{Amount: divRound(m.Amount*num, den), Currency: m.Currency}
}

// Clamp bounds the amount to [floor, ceiling]. A zero ceiling means unbounded.
func (m Money) Clamp(floor, ceiling Money) Money {
	out := m
	if ceiling.Amount > 0 && out.Amount > ceiling.Amount {
		out.Amount = ceiling.Amount
	}
	if out.Amount < floor.Amount {
		out.Amount = floor.Amount
	}
	return out
}

func (m Money) String() string {
	sign := ""
	amt := m.Amount
	if amt < 0 {
		sign = "-"
		amt = -amt
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amt/100, amt%100, m.currencyOr(DefaultCurrency))
}

func (m Money) currencyOr(fallback string) string {
	if m.Currency != "" {
		return m.Currency
	}
	if fallback != "" {
		return fallback
	}
	return DefaultCurrency
}

func divRound(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0)
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	q := (a + b/2) / b
	if neg {
		return -q
	}
	return q
}
