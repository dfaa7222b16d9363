package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-studio/internal/config"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voices.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveProfileFromCatalog(t *testing.T) {
	path := writeCatalog(t, "profiles:\n  - name: narrator\n    voice: Puck\n")
	profile, err := resolveProfile(config.Default(), renderOptions{profile: "narrator", catalog: path})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.Voice != "Puck" || profile.Reference != nil {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestResolveProfileRejectsInvalidCatalog(t *testing.T) {
	cases := map[string]string{
		"duplicate":      "profiles:\n  - name: narrator\n    voice: Puck\n  - name: narrator\n    voice: Kore\n",
		"unknown voice":  "profiles:\n  - name: narrator\n    voice: Robot\n",
		"reference mime": "profiles:\n  - name: narrator\n    voice: Kore\n    reference:\n      path: sample\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeCatalog(t, body)
			_, err := resolveProfile(config.Default(), renderOptions{profile: "narrator", catalog: path})
			if err == nil || !strings.Contains(err.Error(), "invalid voice catalog") {
				t.Fatalf("expected catalog validation error, got %v", err)
			}
		})
	}
}

func TestResolveProfileRequiresCatalog(t *testing.T) {
	if _, err := resolveProfile(config.Default(), renderOptions{profile: "narrator"}); err == nil {
		t.Fatalf("expected error without -voices")
	}
	if _, err := resolveProfile(config.Default(), renderOptions{voice: "Nope"}); err == nil {
		t.Fatalf("expected error for unknown voice")
	}
}
