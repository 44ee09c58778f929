package dynamodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOrder(t *testing.T) {
	r := RecordOf("b", 1, "a", "x", "c", nil)
	assert.Equal(t, []string{"b", "a", "c"}, r.Columns())
	assert.Equal(t, []any{1, "x", nil}, r.Values())
	assert.Equal(t, 3, r.Len())

	r.Set("b", 2)
	assert.Equal(t, []string{"b", "a", "c"}, r.Columns())
	assert.Equal(t, 2, r.At(0))
	assert.Nil(t, r.At(5))

	r.Remove("a")
	assert.Equal(t, []string{"b", "c"}, r.Columns())
}

func TestRecordLookup(t *testing.T) {
	r := RecordOf("FIRST_NAME", "Ann")

	key, v, ok := r.Lookup("first_name")
	require.True(t, ok)
	assert.Equal(t, "FIRST_NAME", key)
	assert.Equal(t, "Ann", v)

	_, ok = r.Get("first_name")
	assert.False(t, ok)
	_, _, ok = r.Lookup("last_name")
	assert.False(t, ok)
}

func TestRecordNullIsPresent(t *testing.T) {
	r := RecordOf("manager", nil)

	v, ok := r.Get("manager")
	assert.True(t, ok)
	assert.Nil(t, v)

	key, v, ok := r.Lookup("MANAGER")
	assert.True(t, ok)
	assert.Equal(t, "manager", key)
	assert.Nil(t, v)

	_, ok = r.Get("dept")
	assert.False(t, ok)

	r.Remove("manager")
	_, ok = r.Get("manager")
	assert.False(t, ok)
}

func TestRecordJSON(t *testing.T) {
	r := RecordOf("id", 7, "name", "Ann", "manager", nil)
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"id":7,"name":"Ann","manager":null}`, string(b))
	assert.Equal(t, map[string]any{"id": 7, "name": "Ann", "manager": nil}, r.Map())
	assert.Equal(t, "{id: 7, name: Ann, manager: <nil>}", r.String())
}

func TestCoerce(t *testing.T) {
	n, err := Coerce[int64]([]byte("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	i, err := Coerce[int](int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	f, err := Coerce[float64]("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	s, err := Coerce[string](nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	s, err = Coerce[string](int64(42))
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	ok, err := Coerce[bool](int64(1))
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := Coerce[decimal.Decimal]("1.50")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("1.5")))

	now := time.Now()
	tm, err := Coerce[time.Time](now)
	require.NoError(t, err)
	assert.Equal(t, now, tm)

	_, err = Coerce[int64]("twelve")
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = Coerce[struct{}](1)
	require.ErrorIs(t, err, ErrConfiguration)
}
