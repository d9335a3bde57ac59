package people

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jana Nováková", "jana novakova"},
		{"jana-novakova", "jana novakova"},
		{"JOHN DOE", "john doe"},
		{"Žluťoučký kůň", "zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := normalizeName(tt.input)
			if result != tt.expected {
				t.Errorf("normalizeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.yaml")
	content := `people:
  - name: Jana Nováková
    position: Engineer
    company: ACME
  - name: bob
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("could not write fixture: %v", err)
	}

	dir, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if dir.Len() != 2 {
		t.Fatalf("got %d entries; want 2", dir.Len())
	}

	p, ok := dir.Lookup("jana-novakova")
	if !ok {
		t.Fatal("normalized lookup missed")
	}
	if p.Position != "Engineer" || p.Company != "ACME" {
		t.Errorf("got %+v; want Engineer at ACME", p)
	}

	if p, ok := dir.Lookup("BOB"); !ok || p.Position != "" {
		t.Errorf("got %+v, ok=%v; want bare entry for bob", p, ok)
	}

	if _, ok := dir.Lookup("mallory"); ok {
		t.Error("lookup hit for a name not in the directory")
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() on a missing file failed: %v", err)
	}
	if dir.Len() != 0 {
		t.Errorf("got %d entries; want an empty directory", dir.Len())
	}
}

func TestLoadRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken yaml", "people: ["},
		{"missing name", "people:\n  - position: Engineer\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "people.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("could not write fixture: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() accepted a bad people file")
			}
		})
	}
}
