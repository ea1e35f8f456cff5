package collector

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/openconfig/gnmi/proto/gnmi"
)

// parsePath parses a string path into a gNMI Path
func parsePath(path string) (*gnmi.Path, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("path is empty")
	}
	parts := strings.Split(trimmed, "/")
	elems := make([]*gnmi.PathElem, 0, len(parts))
	for _, part := range parts {
		name, keys, err := parsePathElem(part)
		if err != nil {
			return nil, err
		}
		elems = append(elems, &gnmi.PathElem{Name: name, Key: keys})
	}
	return &gnmi.Path{Elem: elems}, nil
}

// parsePathElem parses a path element with optional keys
func parsePathElem(segment string) (string, map[string]string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "", nil, fmt.Errorf("path segment empty")
	}
	name := segment
	keys := map[string]string{}
	for {
		open := strings.Index(name, "[")
		if open == -1 {
			break
		}
		end := strings.Index(name[open:], "]")
		if end == -1 {
			return "", nil, fmt.Errorf("invalid key selector in %s", segment)
		}
		end += open
		selector := name[open+1 : end]
		name = name[:open] + name[end+1:]
		kv := strings.SplitN(selector, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return "", nil, fmt.Errorf("invalid key selector %s", selector)
		}
		keys[kv[0]] = kv[1]
	}
	if name == "" {
		return "", nil, fmt.Errorf("path segment %s has no name", segment)
	}
	if len(keys) == 0 {
		keys = nil
	}
	return name, keys, nil
}

// pathToString converts a gNMI Path to string representation
func pathToString(path *gnmi.Path) string {
	if path == nil {
		return ""
	}
	var b strings.Builder
	for _, elem := range path.Elem {
		b.WriteString("/")
		b.WriteString(elem.Name)
		if len(elem.Key) > 0 {
			keys := make([]string, 0, len(elem.Key))
			for k := range elem.Key {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				b.WriteString("[")
				b.WriteString(k)
				b.WriteString("=")
				b.WriteString(elem.Key[k])
				b.WriteString("]")
			}
		}
	}
	return b.String()
}

// joinPath appends the update path to the notification prefix
func joinPath(prefix, path *gnmi.Path) *gnmi.Path {
	out := &gnmi.Path{}
	if prefix != nil {
		out.Elem = append(out.Elem, prefix.Elem...)
	}
	if path != nil {
		out.Elem = append(out.Elem, path.Elem...)
	}
	return out
}

// matchPath reports whether actual is covered by pattern. A "*" name or key
// value matches anything; keys absent from the pattern are not checked.
func matchPath(pattern, actual *gnmi.Path) bool {
	if pattern == nil || actual == nil || len(pattern.Elem) != len(actual.Elem) {
		return false
	}
	for i, want := range pattern.Elem {
		got := actual.Elem[i]
		if want.Name != "*" && want.Name != got.Name {
			return false
		}
		for k, v := range want.Key {
			gv, ok := got.Key[k]
			if !ok {
				return false
			}
			if v != "*" && v != gv {
				return false
			}
		}
	}
	return true
}

// typedValueToString extracts string value from gNMI TypedValue
func typedValueToString(value *gnmi.TypedValue) string {
	if value == nil {
		return ""
	}
	switch v := value.Value.(type) {
	case *gnmi.TypedValue_StringVal:
		return v.StringVal
	case *gnmi.TypedValue_IntVal:
		return fmt.Sprintf("%d", v.IntVal)
	case *gnmi.TypedValue_UintVal:
		return fmt.Sprintf("%d", v.UintVal)
	case *gnmi.TypedValue_BoolVal:
		return fmt.Sprintf("%t", v.BoolVal)
	case *gnmi.TypedValue_DoubleVal:
		return fmt.Sprintf("%f", v.DoubleVal)
	case *gnmi.TypedValue_FloatVal:
		return fmt.Sprintf("%f", v.FloatVal)
	case *gnmi.TypedValue_DecimalVal:
		return fmt.Sprintf("%d", v.DecimalVal.Digits)
	case *gnmi.TypedValue_JsonVal:
		return string(v.JsonVal)
	case *gnmi.TypedValue_JsonIetfVal:
		return string(v.JsonIetfVal)
	case *gnmi.TypedValue_AsciiVal:
		return v.AsciiVal
	case *gnmi.TypedValue_BytesVal:
		return string(v.BytesVal)
	default:
		return ""
	}
}

// typedValueToFloat extracts a numeric reading. Strings and JSON scalars are
// accepted when they parse as a number; devices often encode counters that way.
func typedValueToFloat(value *gnmi.TypedValue) (float64, bool) {
	if value == nil {
		return 0, false
	}
	var f float64
	switch v := value.Value.(type) {
	case *gnmi.TypedValue_IntVal:
		f = float64(v.IntVal)
	case *gnmi.TypedValue_UintVal:
		f = float64(v.UintVal)
	case *gnmi.TypedValue_DoubleVal:
		f = v.DoubleVal
	case *gnmi.TypedValue_FloatVal:
		f = float64(v.FloatVal)
	case *gnmi.TypedValue_DecimalVal:
		if v.DecimalVal == nil {
			return 0, false
		}
		f = float64(v.DecimalVal.Digits) / math.Pow10(int(v.DecimalVal.Precision))
	case *gnmi.TypedValue_BoolVal:
		return 0, false
	default:
		s := strings.Trim(strings.TrimSpace(typedValueToString(value)), `"`)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	if !isFinite(f) {
		return 0, false
	}
	return f, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
