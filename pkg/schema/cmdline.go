package schema

import (
	"sort"
	"strings"
)

// BootCmdline is the parsed kernel command line. A value is either true
// (bare key), a string, or a []string when the value carries commas.
type BootCmdline map[string]interface{}

// ParseCmdline splits on whitespace. The value is everything after the first
// "=", split on "," when it holds more than one element.
func ParseCmdline(line string) BootCmdline {
	res := BootCmdline{}
	for _, f := range strings.Fields(line) {
		key, value, found := strings.Cut(f, "=")
		if !found {
			res[key] = true
			continue
		}
		parts := strings.Split(value, ",")
		if len(parts) == 1 {
			res[key] = value
			continue
		}
		res[key] = parts
	}
	return res
}

// Has reports whether the key was given, with or without a value.
func (c BootCmdline) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Get returns the scalar value of key. Bare keys and missing keys return "",
// lists are joined back with ",".
func (c BootCmdline) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	default:
		return ""
	}
}

func (c BootCmdline) GetList(key string) []string {
	switch v := c[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return []string{}
	}
}

// String serializes back into a command line with keys in sorted order, so
// that ParseCmdline(c.String()) is equal to c.
func (c BootCmdline) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := c[k].(type) {
		case string:
			fields = append(fields, k+"="+v)
		case []string:
			fields = append(fields, k+"="+strings.Join(v, ","))
		default:
			fields = append(fields, k)
		}
	}
	return strings.Join(fields, " ")
}
