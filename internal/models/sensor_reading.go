package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceTag is the tag that carries the device identifier on every point.
const DeviceTag = "device_id"

// ValueKind identifies which member of FieldValue is set.
type ValueKind int

const (
	NumberValue ValueKind = iota
	StringValue
	BoolValue
)

// FieldValue is one scalar sensor observation. Numbers, strings and
// booleans are the only shapes the time-series store returns for fields.
type FieldValue struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

func Number(v float64) FieldValue { return FieldValue{Kind: NumberValue, Num: v} }
func String(v string) FieldValue  { return FieldValue{Kind: StringValue, Str: v} }
func Bool(v bool) FieldValue      { return FieldValue{Kind: BoolValue, Bool: v} }

// FieldValueOf converts a raw driver value. Integer types widen to float64;
// anything unrecognised is rendered as a string.
func FieldValueOf(v any) FieldValue {
	switch t := v.(type) {
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case nil:
		return String("")
	default:
		return String(fmt.Sprint(t))
	}
}

// Raw returns the value as a plain Go scalar.
func (v FieldValue) Raw() any {
	switch v.Kind {
	case StringValue:
		return v.Str
	case BoolValue:
		return v.Bool
	default:
		return v.Num
	}
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FieldValueOf(raw)
	return nil
}

// FieldRecord is one row of the long-format result: a single field of a
// single point.
type FieldRecord struct {
	Timestamp time.Time
	Field     string
	Value     FieldValue
	Tags      map[string]string
}

// DeviceID returns the device tag of the record.
func (r FieldRecord) DeviceID() string {
	return r.Tags[DeviceTag]
}

// SensorReading is the wide-format view: every field a device reported at
// one timestamp.
type SensorReading struct {
	DeviceID  string                `json:"deviceId"`
	Timestamp time.Time             `json:"timestamp"`
	Fields    map[string]FieldValue `json:"fields"`
	Tags      map[string]string     `json:"tags"`
}
