package semver

import (
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

// ResolveVersion picks the best of versions for rangeStr and reports
// whether one matched.
//
//   - empty range: highest stable version, else highest prerelease
//   - major only ("2"): the same, within that major
//   - exact version ("1.2.3"): that version, prereleases included
//   - constraint ("^1.2.0", ">=1 <3"): highest match
//   - anything else: exact string match
func ResolveVersion(versions []string, rangeStr string) (string, bool) {
	parsed := parseVersions(versions)
	if len(parsed) == 0 {
		return "", false
	}

	if rangeStr == "" {
		return latest(parsed)
	}

	if IsMajorOnly(rangeStr) {
		major := uint64(ExtractMajorFromRange(rangeStr))
		var inMajor []*masterminds.Version
		for _, v := range parsed {
			if v.Major() == major {
				inMajor = append(inMajor, v)
			}
		}
		return latest(inMajor)
	}

	if IsExactVersion(rangeStr) {
		want, err := masterminds.NewVersion(rangeStr)
		if err == nil {
			for _, v := range parsed {
				if v.Equal(want) {
					return v.Original(), true
				}
			}
			return "", false
		}
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		for _, v := range versions {
			if v == rangeStr {
				return v, true
			}
		}
		return "", false
	}

	for _, v := range parsed {
		if constraint.Check(v) {
			return v.Original(), true
		}
	}
	return "", false
}

// SatisfiesRange reports whether version satisfies rangeStr.
func SatisfiesRange(version, rangeStr string) bool {
	if rangeStr == "" {
		return true
	}
	_, ok := ResolveVersion([]string{version}, rangeStr)
	return ok
}

// SortVersionsDesc returns the valid versions, highest first.
func SortVersionsDesc(versions []string) []string {
	parsed := parseVersions(versions)
	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.Original()
	}
	return out
}

// parseVersions drops unparsable entries and sorts the rest descending.
func parseVersions(versions []string) []*masterminds.Version {
	out := make([]*masterminds.Version, 0, len(versions))
	for _, s := range versions {
		v, err := masterminds.NewVersion(s)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GreaterThan(out[j]) })
	return out
}

// latest prefers the highest stable version. Input is sorted descending.
func latest(sorted []*masterminds.Version) (string, bool) {
	if len(sorted) == 0 {
		return "", false
	}
	for _, v := range sorted {
		if v.Prerelease() == "" {
			return v.Original(), true
		}
	}
	return sorted[0].Original(), true
}
