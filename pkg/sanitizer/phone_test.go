package sanitizer

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		regions []string
		want    string
	}{
		{
			name:  "valid E.164 format",
			input: "+447700900123",
			want:  "+447700900123",
		},
		{
			name:  "with spaces",
			input: "+44 7700 900123",
			want:  "+447700900123",
		},
		{
			name:  "national format uses default region",
			input: "07700 900123",
			want:  "+447700900123",
		},
		{
			name:  "with parentheses and dashes",
			input: "+1 (212) 555-1234",
			want:  "+12125551234",
		},
		{
			name:    "configured region",
			input:   "(212) 555-1234",
			regions: []string{"us"},
			want:    "+12125551234",
		},
		{
			name:  "leading and trailing spaces",
			input: "  +447700900123  ",
			want:  "+447700900123",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   ",
			want:  "",
		},
		{
			name:  "letters only",
			input: "call me",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input, tt.regions)
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	once := NormalizePhone("07700 900123", nil)
	twice := NormalizePhone(once, nil)
	if once != twice {
		t.Errorf("not idempotent: %q then %q", once, twice)
	}
}
