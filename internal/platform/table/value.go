package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindDate
)

// DateLayout is the canonical text form of date cells.
const DateLayout = "2006-01-02"

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindString: "string",
	KindDate:   "date",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name ("int", "bool", "date", ...) to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(name, n) {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown column kind %q", name)
}

// Value is a nullable scalar cell. The zero Value is null, and a null is
// never equal to a zero or false value.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

func Int(n int64) Value { return Value{kind: KindInt, i: n} }

func Float(f float64) Value {
	if math.IsNaN(f) {
		return Null()
	}
	return Value{kind: KindFloat, f: f}
}

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

func String(s string) Value { return Value{kind: KindString, s: s} }

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer held by v. Integral floats and booleans (0/1)
// convert; everything else reports ok=false.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt, KindBool:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) {
			return int64(v.f), true
		}
	}
	return 0, false
}

// Float returns the numeric value of an int or float cell.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i == 1, true
}

// Str returns the text of a string cell.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

// String renders v the way it is written to CSV; null renders empty.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		if v.i == 1 {
			return "True"
		}
		return "False"
	case KindString:
		return v.s
	case KindDate:
		return v.t.Format(DateLayout)
	}
	return ""
}

// Equal reports whether both values have the same kind and content. Two
// nulls are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindDate:
		return v.t.Equal(o.t)
	}
	return v.i == o.i
}

// Compare orders values of the same kind; nulls sort after everything and
// mixed kinds order by kind.
func (v Value) Compare(o Value) int {
	switch {
	case v.kind == KindNull && o.kind == KindNull:
		return 0
	case v.kind == KindNull:
		return 1
	case o.kind == KindNull:
		return -1
	}
	if a, ok := v.Float(); ok {
		if b, ok := o.Float(); ok {
			return cmpOrdered(a, b)
		}
	}
	if v.kind != o.kind {
		return cmpOrdered(v.kind, o.kind)
	}
	switch v.kind {
	case KindString:
		return strings.Compare(v.s, o.s)
	case KindDate:
		return v.t.Compare(o.t)
	}
	return cmpOrdered(v.i, o.i)
}

func cmpOrdered[T int64 | float64 | Kind](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// key encodes v for use in partition maps.
func (v Value) key() string {
	if v.kind == KindNull {
		return "\x00"
	}
	return string(rune('0'+v.kind)) + v.String()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.i == 1)
	}
	return json.Marshal(v.String())
}

var nullTokens = map[string]bool{
	"": true, "na": true, "nan": true, "null": true, "none": true, "nat": true, "<na>": true,
}

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
}

// Parse converts the text form of a cell into a Value of kind k. Blank and
// NA-like tokens parse as null.
func Parse(s string, k Kind) (Value, error) {
	s = strings.TrimSpace(s)
	if nullTokens[strings.ToLower(s)] {
		return Null(), nil
	}

	switch k {
	case KindNull, KindString:
		return String(s), nil
	case KindInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return Null(), fmt.Errorf("parse int %q", s)
		}
		return Int(int64(f)), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("parse float %q: %w", s, err)
		}
		return Float(f), nil
	case KindBool:
		switch strings.ToLower(s) {
		case "true", "t", "1", "1.0", "yes", "y", "si", "sí":
			return Bool(true), nil
		case "false", "f", "0", "0.0", "no", "n":
			return Bool(false), nil
		}
		return Null(), fmt.Errorf("parse bool %q", s)
	case KindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Date(t), nil
			}
		}
		return Null(), fmt.Errorf("parse date %q", s)
	}
	return Null(), fmt.Errorf("parse %q: unsupported kind %s", s, k)
}

// Convert coerces v into kind k. Null stays null; values already of kind k
// are returned unchanged; other conversions go through the text form.
func Convert(v Value, k Kind) (Value, error) {
	if v.IsNull() || v.kind == k || k == KindNull {
		return v, nil
	}
	switch {
	case k == KindFloat:
		if f, ok := v.Float(); ok {
			return Float(f), nil
		}
	case k == KindInt && v.kind == KindBool:
		return Int(v.i), nil
	case k == KindBool && (v.kind == KindInt || v.kind == KindFloat):
		f, _ := v.Float()
		return Bool(f != 0), nil
	case k == KindString:
		return String(v.String()), nil
	}
	return Parse(v.String(), k)
}

// FromJSON converts a decoded JSON scalar (nil, bool, float64, json.Number
// or string) into a Value of kind k.
func FromJSON(x any, k Kind) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Convert(Bool(v), k)
	case float64:
		return Convert(Float(v), k)
	case json.Number:
		return Parse(v.String(), k)
	case string:
		return Parse(v, k)
	}
	return Null(), fmt.Errorf("unsupported JSON value %T", x)
}
