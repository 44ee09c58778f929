package dynamodel

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/godoes/dynamodel/dialect"
)

// Arg is one named argument of a routine call or a named query.
type Arg struct {
	Name  string
	Value any
	// Kind forces the provider type; KindAny infers it from Value.
	Kind dialect.Kind
}

// Args is an ordered argument bag.
type Args []Arg

// Named builds Args from name/value pairs:
//
//	dynamodel.Named("x", 1, "y", "two")
func Named(kv ...any) Args {
	args := make(Args, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		arg := Arg{Name: fmt.Sprint(kv[i])}
		if i+1 < len(kv) {
			arg.Value = kv[i+1]
		}
		args = append(args, arg)
	}
	return args
}

// Typed is an argument with an explicit provider type, e.g. a NULL output
// that must come back as a number.
func Typed(name string, kind dialect.Kind, value any) Arg {
	return Arg{Name: name, Value: value, Kind: kind}
}

// ArgsFromMap returns the entries of m ordered by name.
func ArgsFromMap(m map[string]any) Args {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make(Args, 0, len(names))
	for _, name := range names {
		args = append(args, Arg{Name: name, Value: m[name]})
	}
	return args
}

// ArgsFromRecord returns the fields of r in column order.
func ArgsFromRecord(r *Record) Args {
	args := make(Args, 0, r.Len())
	for i, name := range r.Columns() {
		args = append(args, Arg{Name: name, Value: r.At(i)})
	}
	return args
}

// Cursor marks an argument as a server-side cursor. Pass it as the value of an
// output or return argument to receive a cursor handle.
type Cursor struct{}

// CallArgs holds the argument bags of one routine invocation. The bag an
// argument is placed in decides its direction.
type CallArgs struct {
	In     Args
	Out    Args
	InOut  Args
	Return Args
}

func (c CallArgs) empty() bool {
	return len(c.In)+len(c.Out)+len(c.InOut)+len(c.Return) == 0
}

// Classify turns the argument bags into bound parameter descriptors, ordered
// In, Out, InOut, Return. It never touches the database.
func Classify(profile dialect.Profile, args CallArgs) ([]dialect.Param, error) {
	bags := []struct {
		dir  dialect.Direction
		args Args
	}{
		{dialect.In, args.In},
		{dialect.Out, args.Out},
		{dialect.InOut, args.InOut},
		{dialect.ReturnValue, args.Return},
	}

	features := profile.Features()
	seen := make(map[string]dialect.Direction)
	params := make([]dialect.Param, 0, len(args.In)+len(args.Out)+len(args.InOut)+len(args.Return))
	for _, bag := range bags {
		for _, arg := range bag.args {
			if arg.Name == "" {
				return nil, configError("classify", "%s argument without a name", bag.dir)
			}
			key := strings.ToLower(arg.Name)
			if prev, dup := seen[key]; dup {
				return nil, configError("classify", "argument %q supplied as both %s and %s", arg.Name, prev, bag.dir)
			}
			seen[key] = bag.dir

			p, err := classify(profile.Name(), features, arg, bag.dir)
			if err != nil {
				return nil, err
			}
			params = append(params, p)
		}
	}
	return params, nil
}

func classify(name string, features dialect.Features, arg Arg, dir dialect.Direction) (dialect.Param, error) {
	p := dialect.Param{Name: arg.Name, Direction: dir, Value: derefValue(arg.Value), Kind: arg.Kind}

	switch v := p.Value.(type) {
	case Cursor, *Cursor:
		p.Value, p.Kind = nil, dialect.KindCursor
	case uuid.UUID:
		if features.NativeGUID {
			p.Kind = dialect.KindGUID
			return p, nil
		}
		p.Value, p.Kind, p.Size = v.String(), dialect.KindString, 36
		return p, nil
	}

	if p.Kind == dialect.KindCursor {
		if !features.Cursors {
			return p, &UnsupportedFeatureError{Dialect: name, Feature: "cursor parameters"}
		}
		p.Cursor = true
		return p, nil
	}

	if p.Kind == dialect.KindAny {
		p.Kind = kindOf(p.Value)
	}
	if p.Value == nil && p.Kind == dialect.KindAny {
		p.Kind = dialect.KindString
	}
	if p.Kind == dialect.KindString {
		p.Size = stringSize(features, p.Value)
	}
	return p, nil
}

func stringSize(features dialect.Features, value any) int {
	s, ok := value.(string)
	if !ok {
		return features.DefaultStringSize
	}
	if len(s) > features.LargeStringThreshold {
		return dialect.UnboundedSize
	}
	return max(features.DefaultStringSize, len(s))
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// derefValue reads through a non-nil pointer. Nil pointers are kept so their
// type still decides the kind of a NULL.
func derefValue(v any) any {
	if _, ok := v.(*Cursor); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return v
	}
	return rv.Elem().Interface()
}

func kindOf(v any) dialect.Kind {
	if v == nil {
		return dialect.KindAny
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return dialect.KindTime
	case decimalType:
		return dialect.KindDecimal
	}
	switch t.Kind() {
	case reflect.String:
		return dialect.KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return dialect.KindInt
	case reflect.Float32, reflect.Float64:
		return dialect.KindFloat
	case reflect.Bool:
		return dialect.KindBool
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return dialect.KindBytes
		}
	}
	return dialect.KindAny
}

// inputValue is the value bound for an input or input-output parameter.
func inputValue(profile dialect.Profile, p dialect.Param) any {
	if p.Cursor {
		return p.Value
	}
	return profile.ConvertValue(p.Value)
}

func snapshot(params []dialect.Param) []ParamSnapshot {
	out := make([]ParamSnapshot, len(params))
	for i, p := range params {
		out[i] = ParamSnapshot{Name: p.Name, Direction: p.Direction, Value: p.Value}
	}
	return out
}
