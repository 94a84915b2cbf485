package node

import "strings"

// Inputs carries raw parameter values for one invocation bound to the
// spec they were declared against. Getters fall back to the declared
// default when a value is missing or arrives with an unusable type;
// semantic validation (lengths, file existence) stays in the node.
type Inputs struct {
	spec   Spec
	values map[string]any
}

// NewInputs binds raw host values to a node spec.
func NewInputs(spec Spec, values map[string]any) Inputs {
	return Inputs{spec: spec, values: values}
}

// Value returns the raw value for name, or the declared default when
// the host supplied nothing.
func (in Inputs) Value(name string) any {
	if v, ok := in.values[name]; ok && v != nil {
		return v
	}
	if p, ok := in.spec.Param(name); ok {
		return p.Default
	}
	return nil
}

// String returns the value as a string. An explicit empty string is
// returned as-is rather than replaced by the default.
func (in Inputs) String(name string) string {
	if s, ok := in.values[name].(string); ok {
		return s
	}
	if p, ok := in.spec.Param(name); ok {
		if s, ok := p.Default.(string); ok {
			return s
		}
	}
	return ""
}

// Float returns the value as a float64, accepting hosts that deliver
// whole numbers as ints.
func (in Inputs) Float(name string) float64 {
	if f, ok := toFloat(in.values[name]); ok {
		return f
	}
	if p, ok := in.spec.Param(name); ok {
		if f, ok := toFloat(p.Default); ok {
			return f
		}
	}
	return 0
}

// Int returns the value as an int, truncating float inputs.
func (in Inputs) Int(name string) int {
	if n, ok := toInt(in.values[name]); ok {
		return n
	}
	if p, ok := in.spec.Param(name); ok {
		if n, ok := toInt(p.Default); ok {
			return n
		}
	}
	return 0
}

// Bool interprets toggle values: native bools plus the enabled/disabled
// style strings enum-based hosts send.
func (in Inputs) Bool(name string) bool {
	if b, ok := toBool(in.values[name]); ok {
		return b
	}
	if p, ok := in.spec.Param(name); ok {
		if b, ok := toBool(p.Default); ok {
			return b
		}
	}
	return false
}

// Enum returns the string value when it is one of the declared options
// and the declared default otherwise, so switches over the result stay
// closed over the option list.
func (in Inputs) Enum(name string) string {
	p, ok := in.spec.Param(name)
	if !ok {
		return in.String(name)
	}
	if v, ok := in.values[name].(string); ok {
		for _, option := range p.Options {
			if v == option {
				return v
			}
		}
	}
	if d, ok := p.Default.(string); ok {
		return d
	}
	return ""
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "enabled", "true", "on", "yes", "1":
			return true, true
		case "disabled", "false", "off", "no", "0":
			return false, true
		}
	}
	return false, false
}
