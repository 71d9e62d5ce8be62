package business

import (
	"errors"
	"strings"
	"testing"

	"github.com/liamcoop/vouchermacro/macro"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Cafe Uno", false},
		{"unicode", "Kapehan ni Aling Nena ☕", false},
		{"max length", strings.Repeat("a", 100), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"leading space", " Cafe", true},
		{"slash", "Cafe/Uno", true},
		{"backslash", `Cafe\Uno`, true},
		{"control character", "Cafe\tUno", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr && err == nil {
				t.Fatalf("ValidateName(%q) should fail", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ValidateName(%q) error = %v", tt.input, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidBusiness) {
				t.Errorf("error = %v, want ErrInvalidBusiness", err)
			}
		})
	}
}

func TestValidateIdentity(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"owner@example.com", false},
		{"a@b", false},
		{"", true},
		{"owner", true},
		{"@example.com", true},
		{"owner@", true},
		{"a@b@c", true},
		{"owner @example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateIdentity(tt.input)
			if tt.wantErr && err == nil {
				t.Fatalf("ValidateIdentity(%q) should fail", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ValidateIdentity(%q) error = %v", tt.input, err)
			}
		})
	}
}

func TestErrInvalidBusinessIsInvalidInput(t *testing.T) {
	if !errors.Is(ValidateName(""), macro.ErrInvalidInput) {
		t.Error("business validation errors should match macro.ErrInvalidInput")
	}
}
