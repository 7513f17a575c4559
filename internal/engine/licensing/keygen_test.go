package licensing

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	for i := 0; i < 100; i++ {
		key, err := GenerateKey(DefaultKeyPrefix)
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		if len(key) != len(DefaultKeyPrefix)+keyLength {
			t.Errorf("Expected length %d, got %d (%s)", len(DefaultKeyPrefix)+keyLength, len(key), key)
		}
		if !IsWellFormedKey(key, DefaultKeyPrefix) {
			t.Errorf("Generated key %s is not well formed", key)
		}
	}
}

func TestIsWellFormedKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"ZPOFES-ABCDEFGH1234", true},
		{"ZPOFES-abcdefgh1234", false},
		{"ZPOFES-ABCDEFGH123", false},
		{"ZPOFES-ABCDEFGH12345", false},
		{"OTHER-ABCDEFGH1234", false},
		{"ZPOFES-ABCD-FGH1234", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsWellFormedKey(tt.key, DefaultKeyPrefix); got != tt.want {
			t.Errorf("IsWellFormedKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestParseKeyType(t *testing.T) {
	tests := map[string]KeyType{
		"":          KeyTypePermanent,
		"perm":      KeyTypePermanent,
		"Permanent": KeyTypePermanent,
		"temp":      KeyTypeTemporary,
		"temporary": KeyTypeTemporary,
	}
	for in, want := range tests {
		got, err := ParseKeyType(in)
		if err != nil || got != want {
			t.Errorf("ParseKeyType(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKeyType("lifetime"); err != ErrInvalidKeyType {
		t.Errorf("Expected ErrInvalidKeyType, got %v", err)
	}
}

func TestCooldownError(t *testing.T) {
	err := &CooldownError{Remaining: 5*3600e9 + 7*60e9 + 30e9}
	h, m := err.Parts()
	if h != 5 || m != 7 {
		t.Errorf("Parts() = %d, %d; want 5, 7", h, m)
	}
	if !strings.Contains(err.Error(), "5h7m30s") {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if !IsRejection(err) {
		t.Error("Expected cooldown to count as a rejection")
	}
}
