package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("WB_PORT", "70000")
	if _, err := Port("WB_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("WB_PORT", "")
	p, err := Port("WB_PORT", "8083")
	if err != nil || p != "8083" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("WB_INT", "-3")
	if got := Int("WB_INT", 7); got != 7 {
		t.Fatalf("expected fallback for negative int, got %d", got)
	}
	t.Setenv("WB_BOOL", "yes")
	if !Bool("WB_BOOL", false) {
		t.Fatal("expected yes to be truthy")
	}
	t.Setenv("WB_BOOL", "garbage")
	if !Bool("WB_BOOL", true) {
		t.Fatal("expected fallback for unparseable bool")
	}
	t.Setenv("WB_SECS", "15")
	if got := Seconds("WB_SECS", time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s, got %s", got)
	}
	t.Setenv("WB_LIST", " a, ,b ,")
	got := List("WB_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("WB_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("WB_DOTENV_VALUE", "")
	os.Unsetenv("WB_DOTENV_VALUE")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := String("WB_DOTENV_VALUE", ""); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
