package validator

import (
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"123456789012345678", true},
		{"1", true},
		{"", false},
		{"12a4", false},
		{"-5", false},
		{strings.Repeat("9", 21), false},
	}

	for _, tt := range tests {
		err := ValidateUserID(tt.id)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateUserID(%q) error = %v, want valid=%v", tt.id, err, tt.valid)
		}
	}
}

func TestValidateHWID(t *testing.T) {
	tests := []struct {
		hwid  string
		valid bool
	}{
		{"A1B2-C3D4", true},
		{"HW ID WITH SPACES", true},
		{"   ", false},
		{"", false},
		{"bad\x00hwid", false},
		{strings.Repeat("x", MaxHWIDLength), true},
		{strings.Repeat("x", MaxHWIDLength+1), false},
	}

	for _, tt := range tests {
		err := ValidateHWID(tt.hwid)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateHWID(%q) error = %v, want valid=%v", tt.hwid, err, tt.valid)
		}
	}
}
