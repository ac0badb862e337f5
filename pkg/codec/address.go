// Package codec provides the name@id addressing rules and best-effort
// argument coercion used by service dispatch.
package codec

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Separator splits a service name from the id of the runtime hosting it.
const Separator = "@"

// GetID returns the runtime id of a fullname (the text after the last "@").
// ok is false when the name is not qualified.
func GetID(fullname string) (id string, ok bool) {
	idx := strings.LastIndex(fullname, Separator)
	if idx < 0 {
		return "", false
	}
	return fullname[idx+1:], true
}

// GetName returns the local role name of a fullname.
func GetName(fullname string) string {
	idx := strings.LastIndex(fullname, Separator)
	if idx < 0 {
		return fullname
	}
	return fullname[:idx]
}

// GetFullName qualifies name with localID unless it already carries an id.
func GetFullName(name, localID string) string {
	if name == "" {
		return ""
	}
	if strings.Contains(name, Separator) {
		return name
	}
	return name + Separator + localID
}

// GetCallbackTopicName derives the conventional subscriber callback for a
// topic method: publishDetection -> onDetection, getRepo -> onRepo,
// broadcastState -> onBroadcastState.
func GetCallbackTopicName(method string) string {
	topic := method
	switch {
	case strings.HasPrefix(method, "publish"):
		topic = strings.TrimPrefix(method, "publish")
	case strings.HasPrefix(method, "get"):
		topic = strings.TrimPrefix(method, "get")
	}
	return "on" + capitalize(topic)
}

// NormalizeMethod folds camelCase, PascalCase, kebab-case and snake_case
// spellings of a method name onto one lookup key.
func NormalizeMethod(method string) string {
	var b strings.Builder
	b.Grow(len(method))
	for _, r := range method {
		if r == '-' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
