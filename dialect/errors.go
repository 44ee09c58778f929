package dialect

import (
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// sqlStateError is implemented by pgx and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// errorCoder is implemented by drivers exposing a textual code.
type errorCoder interface {
	Code() string
}

// ErrorCode extracts the provider error code of err, or "" when the driver
// does not expose one.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}
	var state sqlStateError
	if errors.As(err, &state) {
		return state.SQLState()
	}
	var coder errorCoder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return ""
}
