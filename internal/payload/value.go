// Package payload models the loosely typed values controller dashboards
// return as a closed set of variants.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind discriminates Value variants on the wire.
type Kind string

// Supported kinds.
const (
	KindScalar Kind = "scalar"
	KindList   Kind = "list"
	KindRatio  Kind = "ratio"
	KindRecord Kind = "record"
)

// Value is one dashboard value. Exactly the fields for Kind are set.
type Value struct {
	Kind Kind

	// scalar
	Text   string
	Number *decimal.Decimal
	Unit   string

	// list
	Items []Value

	// ratio
	Numerator   decimal.Decimal
	Denominator decimal.Decimal

	// record, in controller order
	Fields []Field
}

// Field is a named record member.
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Text returns a scalar string value.
func Text(s string) Value { return Value{Kind: KindScalar, Text: s} }

// Number returns a scalar numeric value with an optional unit.
func Number(d decimal.Decimal, unit string) Value {
	return Value{Kind: KindScalar, Number: &d, Unit: unit}
}

// List returns a list value.
func List(items ...Value) Value { return Value{Kind: KindList, Items: items} }

// Ratio returns num/den.
func Ratio(num, den decimal.Decimal) Value {
	return Value{Kind: KindRatio, Numerator: num, Denominator: den}
}

// Record returns a record value.
func Record(fields ...Field) Value { return Value{Kind: KindRecord, Fields: fields} }

// Percent returns a ratio as a percentage. It fails for other kinds and for
// a zero denominator.
func (v Value) Percent() (decimal.Decimal, bool) {
	if v.Kind != KindRatio || v.Denominator.IsZero() {
		return decimal.Zero, false
	}
	return v.Numerator.Div(v.Denominator).Mul(decimal.NewFromInt(100)), true
}

// Lookup returns a record field by name.
func (v Value) Lookup(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Format renders the value on one line.
func (v Value) Format() string {
	switch v.Kind {
	case KindScalar:
		if v.Number == nil {
			return v.Text
		}
		if v.Unit == "" {
			return v.Number.String()
		}
		return v.Number.String() + " " + v.Unit
	case KindList:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.Format()
		}
		return strings.Join(parts, ", ")
	case KindRatio:
		pct, ok := v.Percent()
		if !ok {
			return fmt.Sprintf("%s/%s", v.Numerator, v.Denominator)
		}
		return fmt.Sprintf("%s/%s (%s%%)", v.Numerator, v.Denominator, pct.StringFixed(1))
	case KindRecord:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.Name + ": " + f.Value.Format()
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

type wireValue struct {
	Kind   Kind             `json:"kind"`
	Value  json.RawMessage  `json:"value,omitempty"`
	Unit   string           `json:"unit,omitempty"`
	Items  []Value          `json:"items,omitempty"`
	Num    *decimal.Decimal `json:"num,omitempty"`
	Den    *decimal.Decimal `json:"den,omitempty"`
	Fields []Field          `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case KindScalar:
		var err error
		if v.Number != nil {
			w.Value = json.RawMessage(v.Number.String())
			w.Unit = v.Unit
		} else if w.Value, err = json.Marshal(v.Text); err != nil {
			return nil, err
		}
	case KindList:
		w.Items = v.Items
	case KindRatio:
		num, den := v.Numerator, v.Denominator
		w.Num, w.Den = &num, &den
	case KindRecord:
		w.Fields = v.Fields
	default:
		return nil, fmt.Errorf("payload: unknown kind %q", v.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Value{Kind: w.Kind}
	switch w.Kind {
	case KindScalar:
		raw := bytes.TrimSpace(w.Value)
		switch {
		case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		case raw[0] == '"':
			if err := json.Unmarshal(raw, &out.Text); err != nil {
				return fmt.Errorf("payload: scalar text: %w", err)
			}
		case bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("false")):
			out.Text = string(raw)
		default:
			d, err := decimal.NewFromString(string(raw))
			if err != nil {
				return fmt.Errorf("payload: scalar number: %w", err)
			}
			out.Number = &d
			out.Unit = w.Unit
		}
	case KindList:
		out.Items = w.Items
	case KindRatio:
		if w.Num == nil || w.Den == nil {
			return fmt.Errorf("payload: ratio needs num and den")
		}
		out.Numerator, out.Denominator = *w.Num, *w.Den
	case KindRecord:
		out.Fields = w.Fields
	default:
		return fmt.Errorf("payload: unknown kind %q", w.Kind)
	}
	*v = out
	return nil
}

// Tile is one dashboard cell.
type Tile struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Value Value  `json:"value"`
}
