package dialect

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// standard carries the SQL-92 flavoured defaults every profile starts from.
type standard struct{}

func (standard) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (standard) Placeholder(int, string) string {
	return "?"
}

func (standard) ParameterName(raw string, _ bool) string {
	return raw
}

func (standard) Bind(_ string, value any) any {
	return value
}

func (standard) ConvertValue(v any) any {
	return v
}

func (standard) CountRowPattern(source string) string {
	return "SELECT COUNT(*) FROM " + source
}

func (standard) SelectPattern(columns, source, where, orderBy string, limit int) string {
	query := "SELECT " + columns + " FROM " + source + where + orderBy
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}
	return query
}

func (standard) InsertPattern(target, fields, values string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", target, fields, values)
}

func (standard) UpdatePattern(target, assignments string) string {
	return fmt.Sprintf("UPDATE %s SET %s", target, assignments)
}

func (standard) DeletePattern(target string) string {
	return "DELETE FROM " + target
}

func (standard) WrapCount(core string) string {
	return "SELECT COUNT(*) FROM (" + core + ") AS q___"
}

func (standard) WrapPage(core string, offset, size int) string {
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", core, size, offset)
}

func (standard) IdentityRetrieval(string, string) (string, IdentityTiming) {
	return "", IdentityLastInsertID
}

func (standard) DefaultValue(expr string) any {
	return defaultValue(expr, "CURRENT_TIMESTAMP", "CURRENT_DATE", "NOW()")
}

func (standard) AggregateFunction(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "count":
		return "COUNT", true
	case "sum":
		return "SUM", true
	case "max":
		return "MAX", true
	case "min":
		return "MIN", true
	case "avg":
		return "AVG", true
	default:
		return "", false
	}
}

func (standard) CustomizeCommand(cfg CommandConfig) CommandConfig {
	return cfg
}

func (standard) Explain(sql string, vars ...any) string {
	return logger.ExplainSQL(sql, nil, `'`, vars...)
}

func (standard) OutputMode(CallKind) OutputMode {
	return OutputByBinding
}

func (standard) OutBinding(p Param, dest any) any {
	return sql.Out{Dest: dest, In: p.Direction == InOut}
}

func (standard) Destination(p Param) any {
	return newDestination(p)
}

func (standard) Dereference(context.Context, gorm.ConnPool, any) (driver.Rows, error) {
	return nil, fmt.Errorf("dialect: cursors are not supported")
}

// defaultValue interprets a column default: timestamp sentinels become the current
// time, literal defaults lose their decoration.
func defaultValue(expr string, nowSentinels ...string) any {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.EqualFold(expr, "NULL") {
		return nil
	}
	unwrap := strings.NewReplacer("(", "", ")", "")
	bare := unwrap.Replace(expr)
	// CURRENT_TIMESTAMP(6) carries a precision
	word := strings.TrimRight(bare, "0123456789")
	for _, s := range nowSentinels {
		if sentinel := unwrap.Replace(s); strings.EqualFold(bare, sentinel) || strings.EqualFold(word, sentinel) {
			return time.Now()
		}
	}
	return strings.Trim(strings.TrimSpace(bare), "'")
}

// newDestination allocates the receiver for an output parameter, seeded with the
// input value of input-output parameters.
func newDestination(p Param) any {
	seed := p.Direction == InOut && p.Value != nil
	switch p.Kind {
	case KindInt:
		d := &sql.NullInt64{}
		if seed {
			d.Int64, d.Valid = cast.ToInt64(p.Value), true
		}
		return d
	case KindFloat:
		d := &sql.NullFloat64{}
		if seed {
			d.Float64, d.Valid = cast.ToFloat64(p.Value), true
		}
		return d
	case KindBool:
		d := &sql.NullBool{}
		if seed {
			d.Bool, d.Valid = cast.ToBool(p.Value), true
		}
		return d
	case KindTime:
		d := &sql.NullTime{}
		if seed {
			d.Time, d.Valid = cast.ToTime(p.Value), true
		}
		return d
	case KindBytes:
		d := new([]byte)
		if seed {
			if b, ok := p.Value.([]byte); ok {
				*d = b
			}
		}
		return d
	default:
		d := &sql.NullString{}
		if seed {
			d.String, d.Valid = cast.ToString(p.Value), true
		}
		return d
	}
}

// DestinationValue reads the value a provider stored in a receiver returned by
// Profile.Destination. NULL is reported as nil.
func DestinationValue(dest any) any {
	switch d := dest.(type) {
	case *sql.NullString:
		if d.Valid {
			return d.String
		}
	case *sql.NullInt64:
		if d.Valid {
			return d.Int64
		}
	case *sql.NullFloat64:
		if d.Valid {
			return d.Float64
		}
	case *sql.NullBool:
		if d.Valid {
			return d.Bool
		}
	case *sql.NullTime:
		if d.Valid {
			return d.Time
		}
	case *[]byte:
		if *d != nil {
			return *d
		}
	case *any:
		return *d
	default:
		return dest
	}
	return nil
}

// argList joins n placeholders rendered by marker.
func argList(params []Param, marker func(i int, p Param) string) string {
	parts := make([]string, 0, len(params))
	for i, p := range params {
		parts = append(parts, marker(i, p))
	}
	return strings.Join(parts, ", ")
}
