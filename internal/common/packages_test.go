package common

import (
	"os"
	"path/filepath"
	"testing"

	"stars-imagegen-bot/internal/models"

	"github.com/google/go-cmp/cmp"
)

func writePackages(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "packages.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write packages file: %v", err)
	}
	return path
}

func TestLoadPackages(t *testing.T) {
	path := writePackages(t, `
packages:
  - id: starter
    title: Starter pack
    credits: 10
    stars: 50
  - id: pro
    credits: 40
    stars: 180
`)

	packages, err := LoadPackages(path)
	if err != nil {
		t.Fatalf("LoadPackages failed: %v", err)
	}

	want := []models.TopUpPackage{
		{Id: "starter", Title: "Starter pack", Credits: 10, Stars: 50},
		{Id: "pro", Title: "40 images", Credits: 40, Stars: 180},
	}
	if diff := cmp.Diff(want, packages); diff != "" {
		t.Errorf("LoadPackages mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPackages_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing id":   "packages:\n  - credits: 1\n    stars: 1\n",
		"zero credits": "packages:\n  - id: a\n    credits: 0\n    stars: 1\n",
		"zero stars":   "packages:\n  - id: a\n    credits: 1\n    stars: 0\n",
		"duplicate id": "packages:\n  - id: a\n    credits: 1\n    stars: 1\n  - id: a\n    credits: 2\n    stars: 2\n",
		"colon in id":  "packages:\n  - id: a:b\n    credits: 1\n    stars: 1\n",
		"empty list":   "packages: []\n",
		"invalid yaml": "packages: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadPackages(writePackages(t, content)); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestLoadPackages_MissingFileUsesDefaults(t *testing.T) {
	packages, err := LoadPackages(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadPackages failed: %v", err)
	}
	if diff := cmp.Diff(DefaultPackages, packages); diff != "" {
		t.Errorf("Expected defaults (-want +got):\n%s", diff)
	}
}

func TestCatalog_Resolve(t *testing.T) {
	catalog := NewCatalog(DefaultPackages)

	pkg, ok := catalog.Resolve(Payload(DefaultPackages[1]))
	if !ok || pkg.Id != "medium" {
		t.Errorf("Expected medium package, got %+v %v", pkg, ok)
	}

	for _, payload := range []string{"", "medium", "topup:", "topup:unknown", "refund:medium"} {
		if _, ok := catalog.Resolve(payload); ok {
			t.Errorf("Expected %q not to resolve", payload)
		}
	}
}

func TestStarsPerCredit(t *testing.T) {
	got := StarsPerCredit(models.TopUpPackage{Credits: 30, Stars: 125})
	if got.StringFixed(2) != "4.17" {
		t.Errorf("Expected 4.17, got %s", got.StringFixed(2))
	}
}
