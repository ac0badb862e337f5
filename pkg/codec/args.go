package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const argsLogPrefix = "codec:args"

// ErrMissingArgument is returned when a positional argument is absent.
var ErrMissingArgument = errors.New("missing argument")

// Has reports whether args carries a non-nil value at position i.
func Has(args []any, i int) bool {
	return i >= 0 && i < len(args) && args[i] != nil
}

// Arg returns args[i], or nil when out of range.
func Arg(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// String coerces args[i] to a string. Numbers and booleans are formatted.
func String(args []any, i int) (string, error) {
	if !Has(args, i) {
		return "", fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, ErrMissingArgument)
	}
	switch v := args[i].(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%s - argument %d: cannot use %T as string", argsLogPrefix, i, v)
	}
}

// OptionalString returns args[i] as a string, or def when the argument is absent.
func OptionalString(args []any, i int, def string) (string, error) {
	if !Has(args, i) {
		return def, nil
	}
	return String(args, i)
}

// Int coerces args[i] to an int. JSON numbers must be integral.
func Int(args []any, i int) (int, error) {
	if !Has(args, i) {
		return 0, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, ErrMissingArgument)
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s - argument %d: %v is not an integer", argsLogPrefix, i, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, err)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s - argument %d: cannot use %T as int", argsLogPrefix, i, v)
	}
}

// Float coerces args[i] to a float64.
func Float(args []any, i int) (float64, error) {
	if !Has(args, i) {
		return 0, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, ErrMissingArgument)
	}
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s - argument %d: cannot use %T as float", argsLogPrefix, i, v)
	}
}

// Bool coerces args[i] to a bool ("true", "1", 1 and true are all true).
func Bool(args []any, i int) (bool, error) {
	if !Has(args, i) {
		return false, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, ErrMissingArgument)
	}
	switch v := args[i].(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s - argument %d: cannot use %T as bool", argsLogPrefix, i, v)
	}
}

// Decode converts args[i] into target by a JSON round trip. It is how
// structured arguments (descriptors, config maps) reach typed handlers.
func Decode(args []any, i int, target any) error {
	if !Has(args, i) {
		return fmt.Errorf("%s - argument %d: %w", argsLogPrefix, i, ErrMissingArgument)
	}
	data, err := json.Marshal(args[i])
	if err != nil {
		return fmt.Errorf("%s - argument %d: failed to encode: %w", argsLogPrefix, i, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s - argument %d: failed to decode into %T: %w", argsLogPrefix, i, target, err)
	}
	return nil
}
