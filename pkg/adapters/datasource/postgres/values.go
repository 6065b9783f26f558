package postgres

import (
	"database/sql/driver"
	"math"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue converts driver values that do not encode well as JSON.
// UUIDs become strings and finite numerics become float64 so chart
// renderers can plot them. Other pgtype values fall back to their
// driver.Value form.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int16, int32, int64, float32, float64, time.Time, []byte:
		return val
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid || math.IsNaN(f.Float64) || math.IsInf(f.Float64, 0) {
			return valuerString(val)
		}
		return f.Float64
	case netip.Prefix:
		return val.String()
	case netip.Addr:
		return val.String()
	case driver.Valuer:
		out, err := val.Value()
		if err != nil {
			return nil
		}
		return out
	}
	return v
}

func valuerString(v driver.Valuer) any {
	out, err := v.Value()
	if err != nil {
		return nil
	}
	return out
}
