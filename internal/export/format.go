package export

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/koustreak/hdbexport/internal/database"
)

// FormatValue renders one driver value as a CSV field. NULL becomes an
// empty field, times use RFC 3339 with nanoseconds and exact decimals
// keep their plain decimal form.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *big.Rat:
		if t == nil {
			return ""
		}
		return database.DecimalString(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
