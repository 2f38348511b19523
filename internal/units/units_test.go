package units

import (
	"math"
	"testing"
)

func TestToMillimetres(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		unit     string
		expected float64
	}{
		{"mm passthrough", 5.6, MM, 5.6},
		{"cm to mm", 6.0, CM, 60.0},
		{"inch to mm", 0.22, Inch, 5.588},
		{"unknown unit defaults to mm", 10.0, "furlong", 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToMillimetres(tt.value, tt.unit)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ToMillimetres(%f, %s) = %f, want %f", tt.value, tt.unit, result, tt.expected)
			}
		})
	}
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
		wantErr  bool
	}{
		{"5.6mm", 5.6, false},
		{"4.5 mm", 4.5, false},
		{"0.22in", 5.588, false},
		{"6cm", 60.0, false},
		{"7", 7.0, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-3mm", 0, true},
		{"0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLength(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLength(%q) expected error, got %f", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLength(%q): %v", tt.in, err)
			}
			if math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("ParseLength(%q) = %f, want %f", tt.in, got, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	if IsValid("mph") {
		t.Error("IsValid(mph) = true, want false")
	}
}
