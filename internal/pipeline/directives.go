package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a directive argument exactly as the client sent it. Clients send
// numbers, numeric strings and booleans interchangeably, so coercion happens
// when the step that consumes the value runs.
type Value struct {
	raw string
	set bool
}

// Number builds a Value from a number.
func Number(v float64) Value {
	return Value{raw: strconv.FormatFloat(v, 'f', -1, 64), set: true}
}

// Text builds a Value from an arbitrary string.
func Text(s string) Value {
	return Value{raw: s, set: true}
}

// Bool builds a Value from a boolean.
func Bool(b bool) Value {
	return Value{raw: strconv.FormatBool(b), set: true}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("directive value must be a scalar, got %s", data)
	}
	*v = Value{raw: string(data), set: true}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(v.raw, 64); err == nil {
		return []byte(v.raw), nil
	}
	if v.raw == "true" || v.raw == "false" {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

// IsSet reports whether the client supplied the value at all.
func (v Value) IsSet() bool { return v.set }

func (v Value) String() string { return v.raw }

// Float coerces the value to a finite number. An unset value is 0.
func (v Value) Float() (float64, error) {
	if !v.set {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidDirective, v.raw)
	}
	return f, nil
}

// Int coerces the value to an integer, truncating any fraction.
func (v Value) Int() (int, error) {
	f, err := v.Float()
	if err != nil {
		return 0, err
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidDirective, v.raw)
	}
	return int(f), nil
}

// Enabled reports whether a toggle directive asks for its step. Unset, false,
// zero and empty values leave the step disabled.
func (v Value) Enabled() bool {
	if !v.set {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(v.raw))
	switch s {
	case "", "false", "0", "no", "off":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return true
}

type ResizeDirective struct {
	Width  Value `json:"width"`
	Height Value `json:"height"`
}

type CropDirective struct {
	Width  Value `json:"width"`
	Height Value `json:"height"`
	Left   Value `json:"left"`
	Top    Value `json:"top"`
}

type CompressDirective struct {
	Quality Value `json:"quality"`
}

// UnmarshalJSON accepts {"quality": n}, a bare quality number or true.
func (c *CompressDirective) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain CompressDirective
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*c = CompressDirective(p)
		return nil
	}

	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.raw == "true" {
		*c = CompressDirective{}
		return nil
	}
	*c = CompressDirective{Quality: v}
	return nil
}

// Directives is the declarative transformation request. Every directive is
// optional; the pipeline applies the present ones in a fixed order no matter
// how the request lists them.
type Directives struct {
	Resize            *ResizeDirective   `json:"resize,omitempty"`
	Crop              *CropDirective     `json:"crop,omitempty"`
	Rotate            Value              `json:"rotate"`
	Flip              Value              `json:"flip"`
	Mirror            Value              `json:"mirror"`
	Grayscale         Value              `json:"grayscale"`
	Sepia             Value              `json:"sepia"`
	Compress          *CompressDirective `json:"compress,omitempty"`
	Format            string             `json:"format,omitempty"`
	WatermarkText     string             `json:"watermarkText,omitempty"`
	WatermarkLogoPath string             `json:"watermarkLogoPath,omitempty"`
}

