package workflow

import (
	"fmt"
	"sort"
	"strconv"
)

// Params is the "with" bag a job forwards to its reusable workflow. Values
// are restricted to strings, booleans and numbers.
type Params map[string]any

func newParams(raw map[string]interface{}) (Params, error) {
	if len(raw) == 0 {
		return Params{}, nil
	}

	out := make(Params, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string, bool, float64:
			out[k] = val
		case int:
			out[k] = val
		case int64:
			out[k] = int(val)
		case uint64:
			out[k] = int(val)
		case float32:
			out[k] = float64(val)
		default:
			return nil, fmt.Errorf("%w: with.%s has unsupported type %T", ErrInvalidDocument, k, v)
		}
	}
	return out, nil
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that callers may modify freely.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Strings renders every value the way GitHub passes inputs on the wire.
func (p Params) Strings() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
