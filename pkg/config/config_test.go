package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func TestParse_KeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Count: 1}
	if err := Parse([]byte("count: 5\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Count != 5 {
		t.Errorf("s = %+v", s)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	s := sample{Name: "default"}
	if err := Parse(nil, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" {
		t.Errorf("s = %+v", s)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_NAME", "from-env")
	var s sample
	if err := Parse([]byte("name: ${CONFIG_TEST_NAME}\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "from-env" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	var s sample
	if err := Parse([]byte("nmae: typo\n"), &s); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParse_Validates(t *testing.T) {
	var s sample
	err := Parse([]byte("count: -1\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}
