package dynamodel

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Scalar runs query and returns the first column of the first row as T.
// NULL and an empty result give the zero value.
func Scalar[T any](ctx context.Context, m *Model, query string, args ...any) (T, error) {
	v, err := m.scalar(ctx, m.options(nil), "scalar", query, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return Coerce[T](v)
}

// Coerce converts a value read from the database to T.
func Coerce[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	var (
		out any
		err error
	)
	switch any(zero).(type) {
	case int:
		out, err = cast.ToIntE(v)
	case int32:
		out, err = cast.ToInt32E(v)
	case int64:
		out, err = cast.ToInt64E(numeric(v))
	case uint64:
		out, err = cast.ToUint64E(numeric(v))
	case float64:
		out, err = cast.ToFloat64E(numeric(v))
	case float32:
		out, err = cast.ToFloat32E(numeric(v))
	case string:
		out, err = cast.ToStringE(v)
	case bool:
		out, err = cast.ToBoolE(numeric(v))
	case time.Time:
		out, err = cast.ToTimeE(v)
	case decimal.Decimal:
		out, err = toDecimal(v)
	default:
		return zero, configError("coerce", "cannot convert %T to %T", v, zero)
	}
	if err != nil {
		return zero, configError("coerce", "%v", err)
	}
	return out.(T), nil
}

// numeric turns the textual numbers some drivers return into strings cast can parse.
func numeric(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case string:
		return decimal.NewFromString(n)
	case []byte:
		return decimal.NewFromString(string(n))
	case fmt.Stringer:
		return decimal.NewFromString(n.String())
	}
	return decimal.Decimal{}, fmt.Errorf("unable to cast %#v of type %T to decimal", v, v)
}
