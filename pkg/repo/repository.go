// Package repo reads the package repository: one directory per service
// type, each holding a package.yml manifest, optionally under version
// subdirectories.
//
//	<dir>/Clock/package.yml
//	<dir>/Clock/1.2.0/package.yml
package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/morezero/servicebus/pkg/semver"
)

const logPrefix = "repo:repository"

// ManifestFile is the manifest name inside each package directory.
const ManifestFile = "package.yml"

var ErrPackageNotFound = errors.New("package not found")

// Package is a parsed package.yml.
type Package struct {
	TypeKey      string            `yaml:"typeKey" json:"typeKey"`
	Version      string            `yaml:"version" json:"version"`
	Title        string            `yaml:"title,omitempty" json:"title,omitempty"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Platform     string            `yaml:"platform,omitempty" json:"platform,omitempty"`
	Dependencies map[string]string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	// Directory the manifest was read from
	Dir string `yaml:"-" json:"dir"`
}

// Repository reads packages from a directory on every call, so packages
// dropped in while the process runs are picked up.
type Repository struct {
	dir string
}

// New creates a Repository rooted at dir.
func New(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository root.
func (r *Repository) Dir() string { return r.dir }

// Packages returns the latest version of every package, sorted by type key.
func (r *Repository) Packages() ([]*Package, error) {
	all, err := r.scan()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Package, 0, len(keys))
	for _, k := range keys {
		if p := pick(all[k], ""); p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Versions returns every version held for typeKey, highest first.
func (r *Repository) Versions(typeKey string) ([]string, error) {
	pkgs, err := r.load(typeKey)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		versions = append(versions, p.Version)
	}
	return semver.SortVersionsDesc(versions), nil
}

// GetServicePackage returns the best package of typeKey for rangeStr.
// An empty range selects the latest stable version.
func (r *Repository) GetServicePackage(typeKey, rangeStr string) (*Package, error) {
	pkgs, err := r.load(typeKey)
	if err != nil {
		return nil, err
	}
	if p := pick(pkgs, rangeStr); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%s - %s: %w", logPrefix, semver.BuildPackageRef(typeKey, rangeStr), ErrPackageNotFound)
}

// scan loads every package directory. Unreadable manifests are skipped.
func (r *Repository) scan() (map[string][]*Package, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read repository %s: %w", logPrefix, r.dir, err)
	}

	out := make(map[string][]*Package)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pkgs, err := r.load(e.Name())
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - skipping %s: %v", logPrefix, e.Name(), err))
			continue
		}
		out[e.Name()] = pkgs
	}
	return out, nil
}

// load reads <dir>/<typeKey>/package.yml and <dir>/<typeKey>/*/package.yml.
func (r *Repository) load(typeKey string) ([]*Package, error) {
	if !semver.ValidateTypeKey(typeKey) {
		return nil, fmt.Errorf("%s - invalid type key %q: %w", logPrefix, typeKey, ErrPackageNotFound)
	}
	base := filepath.Join(r.dir, typeKey)

	var pkgs []*Package
	if p, err := readManifest(base, typeKey); err == nil {
		pkgs = append(pkgs, p)
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s - %s: %w", logPrefix, typeKey, ErrPackageNotFound)
		}
		return nil, fmt.Errorf("%s - failed to read %s: %w", logPrefix, base, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := readManifest(filepath.Join(base, e.Name()), typeKey)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
			}
			continue
		}
		if p.Version == "" {
			p.Version = e.Name()
		}
		pkgs = append(pkgs, p)
	}

	if len(pkgs) == 0 {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, typeKey, ErrPackageNotFound)
	}
	return pkgs, nil
}

func readManifest(dir, typeKey string) (*Package, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Package
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s - failed to parse %s: %w", logPrefix, path, err)
	}
	if p.TypeKey == "" {
		p.TypeKey = typeKey
	}
	p.Dir = dir
	return &p, nil
}

// pick returns the package whose version best matches rangeStr.
func pick(pkgs []*Package, rangeStr string) *Package {
	byVersion := make(map[string]*Package, len(pkgs))
	versions := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		byVersion[p.Version] = p
		versions = append(versions, p.Version)
	}
	v, ok := semver.ResolveVersion(versions, rangeStr)
	if !ok {
		// Unversioned single manifest.
		if rangeStr == "" && len(pkgs) == 1 {
			return pkgs[0]
		}
		return nil
	}
	return byVersion[v]
}
