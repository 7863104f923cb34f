package database

import (
	"math/big"
	"strings"
)

// maxDecimalDigits caps the fraction of a value with no finite decimal form.
// 34 digits is the precision of a HANA DECFLOAT.
const maxDecimalDigits = 34

var (
	bigOne  = big.NewInt(1)
	bigTwo  = big.NewInt(2)
	bigFive = big.NewInt(5)
)

// DecimalString renders r in plain decimal notation with the fewest
// fraction digits that represent it exactly: 999/100 is "9.99" and 42/1 is
// "42". go-hdb returns DECIMAL and FIXED columns as *big.Rat.
func DecimalString(r *big.Rat) string {
	if r.IsInt() {
		return r.RatString()
	}
	if n, ok := fractionDigits(r.Denom()); ok {
		return r.FloatString(n)
	}
	s := r.FloatString(maxDecimalDigits)
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

// fractionDigits returns the smallest n with d dividing 10^n, or false when
// d has a prime factor other than 2 and 5.
func fractionDigits(d *big.Int) (int, bool) {
	rest := new(big.Int).Set(d)
	twos, fives := stripFactor(rest, bigTwo), stripFactor(rest, bigFive)
	if rest.Cmp(bigOne) != 0 {
		return 0, false
	}
	return max(twos, fives), true
}

func stripFactor(x, p *big.Int) int {
	n := 0
	q, m := new(big.Int), new(big.Int)
	for {
		q.QuoRem(x, p, m)
		if m.Sign() != 0 {
			return n
		}
		x.Set(q)
		n++
	}
}
