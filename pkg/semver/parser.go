// Package semver parses package references and resolves version ranges
// against the versions a package repository holds.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const logPrefix = "semver:parser"

// PackageRef is a parsed "typeKey@range" reference.
type PackageRef struct {
	// Service type, e.g. "Clock"
	TypeKey string
	// Version range if specified ("^1.2.0", "1", "1.2.3"); empty means latest
	Range string
	Raw   string
}

var (
	typeKeyRegex      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParsePackageRef parses a package reference.
//
// Supported formats:
//   - Clock            (latest)
//   - Clock@1          (major only)
//   - Clock@1.2.3      (exact version)
//   - Clock@^1.2.0     (caret range)
//   - Clock@>=1.0.0    (comparison range)
func ParsePackageRef(input string) (*PackageRef, error) {
	raw := strings.TrimSpace(input)

	typeKey, rangeStr, _ := strings.Cut(raw, "@")
	typeKey = strings.TrimSpace(typeKey)
	rangeStr = strings.TrimSpace(rangeStr)

	if !ValidateTypeKey(typeKey) {
		return nil, fmt.Errorf("%s - invalid package reference: %q", logPrefix, raw)
	}

	return &PackageRef{
		TypeKey: typeKey,
		Range:   rangeStr,
		Raw:     raw,
	}, nil
}

// String rebuilds the reference.
func (r *PackageRef) String() string {
	return BuildPackageRef(r.TypeKey, r.Range)
}

// BuildPackageRef joins a type key and an optional version range.
func BuildPackageRef(typeKey, rangeStr string) string {
	if rangeStr == "" {
		return typeKey
	}
	return typeKey + "@" + rangeStr
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	major, err := strconv.Atoi(rangeStr)
	if err != nil {
		return -1
	}
	return major
}

// ValidateTypeKey reports whether s is a usable service type key.
func ValidateTypeKey(s string) bool {
	return typeKeyRegex.MatchString(s)
}
