package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command is one decoded inbound record. Params keeps every field except the kind
// so handlers can read their own arguments.
type Command struct {
	ID     string         `json:"-"`
	Kind   string         `json:"kind"`
	Params map[string]any `json:"-"`
}

// UnmarshalJSON reads the record kind from "kind", falling back to "action".
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("command must be a JSON object")
	}
	kind, _ := raw["kind"].(string)
	if kind == "" {
		kind, _ = raw["action"].(string)
	}
	delete(raw, "kind")
	delete(raw, "action")
	c.Kind = strings.TrimSpace(kind)
	c.Params = raw
	return nil
}

func (c Command) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Params)+1)
	for k, v := range c.Params {
		out[k] = v
	}
	out["kind"] = c.Kind
	return json.Marshal(out)
}

func (c Command) Has(key string) bool {
	v, ok := c.Params[key]
	return ok && v != nil
}

// Number returns a finite numeric field. Numeric strings are accepted.
func (c Command) Number(key string) (float64, bool) {
	switch v := c.Params[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func (c Command) NumberOr(key string, def float64) float64 {
	if v, ok := c.Number(key); ok {
		return v
	}
	return def
}

// Int truncates toward negative infinity, matching block coordinate flooring.
func (c Command) Int(key string) (int, bool) {
	f, ok := c.Number(key)
	if !ok {
		return 0, false
	}
	return int(math.Floor(f)), true
}

func (c Command) IntOr(key string, def int) int {
	if v, ok := c.Int(key); ok {
		return v
	}
	return def
}

func (c Command) String(key string) string {
	s, _ := c.Params[key].(string)
	return s
}

func (c Command) Bool(key string) bool {
	b, _ := c.Params[key].(bool)
	return b
}

// Coords reads the x, y, z fields as a position.
func (c Command) Coords() (Vec3, error) {
	x, okx := c.finite("x")
	y, oky := c.finite("y")
	z, okz := c.finite("z")
	if !okx || !oky || !okz {
		return Vec3{}, fmt.Errorf("Invalid coordinates: %s, %s, %s",
			c.rawString("x"), c.rawString("y"), c.rawString("z"))
	}
	return Vec3{X: x, Y: y, Z: z}, nil
}

// finite accepts only JSON numbers; coordinates given as strings are rejected.
func (c Command) finite(key string) (float64, bool) {
	if _, isString := c.Params[key].(string); isString {
		return 0, false
	}
	return c.Number(key)
}

func (c Command) rawString(key string) string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return "undefined"
	}
	return fmt.Sprint(v)
}
