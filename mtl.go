package ndvi

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// An MTL is a parsed Landsat MTL metadata document. Groups are nested MTLs,
// numeric values are int64 or finite float64, and everything else is a string
// with any surrounding double quotes removed.
type MTL map[string]any

// ParseMTL parses an MTL document from r.
func ParseMTL(r io.Reader) (MTL, error) {
	root := make(MTL)
	stack := []MTL{root}
	names := []string{""}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
FOR:
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "END":
			break FOR
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: %w: missing '='", lineNumber, errParse)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, fmt.Errorf("line %d: %w: empty key", lineNumber, errParse)
		}

		current := stack[len(stack)-1]
		switch key {
		case "GROUP":
			if value == "" {
				return nil, fmt.Errorf("line %d: %w: empty group name", lineNumber, errParse)
			}
			group := make(MTL)
			current[value] = group
			stack = append(stack, group)
			names = append(names, value)
		case "END_GROUP":
			if len(stack) == 1 {
				return nil, fmt.Errorf("line %d: %w: END_GROUP %s without GROUP", lineNumber, errParse, value)
			}
			if name := names[len(names)-1]; name != value {
				return nil, fmt.Errorf("line %d: %w: END_GROUP %s closes GROUP %s", lineNumber, errParse, value, name)
			}
			stack = stack[:len(stack)-1]
			names = names[:len(names)-1]
		default:
			current[key] = parseMTLValue(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: unclosed GROUP %s", errParse, names[len(names)-1])
	}
	return root, nil
}

func parseMTLValue(value string) any {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return value
}

// Group returns the group at path.
func (m MTL) Group(path ...string) (MTL, bool) {
	group := m
	for _, name := range path {
		var ok bool
		if group, ok = group[name].(MTL); !ok {
			return nil, false
		}
	}
	return group, true
}

// Float returns the numeric value of key in m.
func (m MTL) Float(key string) (float64, error) {
	switch value := m[key].(type) {
	case float64:
		return value, nil
	case int64:
		return float64(value), nil
	case nil:
		return 0, fmt.Errorf("%s: missing", key)
	default:
		return 0, fmt.Errorf("%s: %v: not a number", key, value)
	}
}

// String returns the value of key in m formatted as a string.
func (m MTL) String(key string) (string, bool) {
	switch value := m[key].(type) {
	case nil, MTL:
		return "", false
	case string:
		return value, true
	default:
		return fmt.Sprint(value), true
	}
}
