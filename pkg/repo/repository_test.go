package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("repo:repository_test - mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(body), 0o644); err != nil {
		t.Fatalf("repo:repository_test - write manifest: %v", err)
	}
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()

	writeManifest(t, filepath.Join(dir, "Clock"), `
typeKey: Clock
version: 0.9.0
title: Clock
description: Publishes epoch ticks
platform: any
`)
	writeManifest(t, filepath.Join(dir, "Clock", "1.0.0"), "title: Clock\n")
	writeManifest(t, filepath.Join(dir, "Clock", "1.2.0"), "title: Clock\nversion: 1.2.0\n")
	writeManifest(t, filepath.Join(dir, "Clock", "2.0.0-beta.1"), "title: Clock\n")
	writeManifest(t, filepath.Join(dir, "Webcam"), `
title: Webcam
dependencies:
  opencv: "^4.0.0"
`)
	writeManifest(t, filepath.Join(dir, "Broken"), "title: [unterminated\n")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a package"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(dir)
}

func TestGetServicePackage(t *testing.T) {
	r := newTestRepo(t)

	tests := []struct {
		name    string
		typeKey string
		rng     string
		want    string
		wantErr bool
	}{
		{"latest stable", "Clock", "", "1.2.0", false},
		{"major", "Clock", "1", "1.2.0", false},
		{"exact from directory name", "Clock", "1.0.0", "1.0.0", false},
		{"caret", "Clock", "^0.9.0", "0.9.0", false},
		{"prerelease range", "Clock", ">=2.0.0-0", "2.0.0-beta.1", false},
		{"no match", "Clock", "^3.0.0", "", true},
		{"unknown type", "Speaker", "", "", true},
		{"invalid type key", "../etc", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.GetServicePackage(tt.typeKey, tt.rng)
			if tt.wantErr {
				if !errors.Is(err, ErrPackageNotFound) {
					t.Errorf("repo:repository_test - expected ErrPackageNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("repo:repository_test - unexpected error: %v", err)
			}
			if p.Version != tt.want {
				t.Errorf("repo:repository_test - version = %q, want %q", p.Version, tt.want)
			}
			if p.TypeKey != tt.typeKey {
				t.Errorf("repo:repository_test - typeKey = %q, want %q", p.TypeKey, tt.typeKey)
			}
		})
	}
}

func TestGetServicePackage_Unversioned(t *testing.T) {
	r := newTestRepo(t)

	p, err := r.GetServicePackage("Webcam", "")
	if err != nil {
		t.Fatalf("repo:repository_test - unexpected error: %v", err)
	}
	if p.Title != "Webcam" || p.Dependencies["opencv"] != "^4.0.0" {
		t.Errorf("repo:repository_test - unexpected package: %+v", p)
	}
	if p.Dir == "" {
		t.Error("repo:repository_test - expected Dir to be set")
	}
}

func TestPackages(t *testing.T) {
	r := newTestRepo(t)

	pkgs, err := r.Packages()
	if err != nil {
		t.Fatalf("repo:repository_test - unexpected error: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("repo:repository_test - expected 2 packages, got %d", len(pkgs))
	}
	if pkgs[0].TypeKey != "Clock" || pkgs[0].Version != "1.2.0" {
		t.Errorf("repo:repository_test - expected Clock 1.2.0 first, got %s %s", pkgs[0].TypeKey, pkgs[0].Version)
	}
	if pkgs[1].TypeKey != "Webcam" {
		t.Errorf("repo:repository_test - expected Webcam second, got %s", pkgs[1].TypeKey)
	}
}

func TestVersions(t *testing.T) {
	r := newTestRepo(t)

	got, err := r.Versions("Clock")
	if err != nil {
		t.Fatalf("repo:repository_test - unexpected error: %v", err)
	}
	want := []string{"2.0.0-beta.1", "1.2.0", "1.0.0", "0.9.0"}
	if len(got) != len(want) {
		t.Fatalf("repo:repository_test - Versions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("repo:repository_test - Versions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPackages_MissingDir(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "missing"))
	if _, err := r.Packages(); err == nil {
		t.Error("repo:repository_test - expected error for missing repository")
	}
}
