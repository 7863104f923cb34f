package database

import (
	"database/sql/driver"
	"math/big"

	"github.com/koustreak/hdbexport/internal/errs"
)

// ScanRow reads the current row of rows into a fresh slice of n Go-native
// values, in column order. Byte slices are copied into strings, exact
// decimals become decimal strings and values implementing driver.Valuer
// (numeric and decimal wrappers) are reduced to their driver value.
func ScanRow(rows Rows, n int) ([]any, error) {
	dest := make([]any, n)
	destPtrs := make([]any, n)
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := rows.Scan(destPtrs...); err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}

	for i, v := range dest {
		dest[i] = normalize(v)
	}
	return dest, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case *big.Rat:
		if t == nil {
			return nil
		}
		return DecimalString(t)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return v
		}
		if b, ok := dv.([]byte); ok {
			return string(b)
		}
		return dv
	default:
		return v
	}
}
