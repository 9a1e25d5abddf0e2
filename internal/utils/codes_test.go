package utils

import (
	"strings"
	"testing"
)

func TestRandomCodes_NumericLength(t *testing.T) {
	g := NewRandomCodes(6, AlphabetNumeric)
	for i := 0; i < 50; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code length = %d, want 6", len(code))
		}
		if err := CheckCodeFormat(code, 6, AlphabetNumeric); err != nil {
			t.Fatalf("generated code %q rejected: %v", code, err)
		}
	}
}

func TestRandomCodes_Alphanumeric(t *testing.T) {
	g := NewRandomCodes(8, AlphabetAlphanumeric)
	code, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("code length = %d, want 8", len(code))
	}
	if strings.ContainsAny(code, "0O1I") {
		t.Errorf("code %q contains ambiguous characters", code)
	}
}

func TestRandomCodes_DefaultLength(t *testing.T) {
	if g := NewRandomCodes(0, ""); g.Length != 6 {
		t.Errorf("Length = %d, want 6", g.Length)
	}
}

func TestRandomCodes_Randomness(t *testing.T) {
	g := NewRandomCodes(8, AlphabetNumeric)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[code] {
			t.Errorf("duplicate code generated: %s", code)
		}
		seen[code] = true
	}
}

func TestCheckCodeFormat(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		length   int
		alphabet string
		wantErr  bool
	}{
		{"numeric ok", "123456", 6, AlphabetNumeric, false},
		{"too short", "12345", 6, AlphabetNumeric, true},
		{"too long", "1234567", 6, AlphabetNumeric, true},
		{"letters in numeric", "12a456", 6, AlphabetNumeric, true},
		{"alphanumeric ok", "AB23CD", 6, AlphabetAlphanumeric, false},
		{"lowercase rejected", "ab23cd", 6, AlphabetAlphanumeric, true},
		{"ambiguous zero rejected", "AB03CD", 6, AlphabetAlphanumeric, true},
		{"empty", "", 6, AlphabetNumeric, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCodeFormat(tt.code, tt.length, tt.alphabet)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckCodeFormat(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}
