package obslog

import "testing"

func TestNewValidConfig(t *testing.T) {
	for _, format := range []string{"", "json", "console"} {
		for _, level := range []string{"", "debug", "info", "warn", "error"} {
			if _, err := New(Config{Level: level, Format: format}); err != nil {
				t.Fatalf("New(Level=%q, Format=%q) error: %v", level, format, err)
			}
		}
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewInvalidFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for invalid format")
	}
}
