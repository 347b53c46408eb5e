package match

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: "   ", want: ""},
		{name: "parenthesized US", in: "(910) 733-9541", want: "+19107339541"},
		{name: "parenthesized with padding", in: " (864)787-8082 ", want: "+18647878082"},
		{name: "eleven digits", in: "18647878082", want: "+18647878082"},
		{name: "already E.164", in: "+19107339541", want: "+19107339541"},
		{name: "ten digits", in: "9107339541", wantErr: true},
		{name: "dashed", in: "910-733-9541", wantErr: true},
		{name: "letters", in: "call me", wantErr: true},
		{name: "parenthesis without digits", in: "()", wantErr: true},
		{name: "plus with ten digits", in: "+9107339541", want: "+9107339541"},
		{name: "plus without digits", in: "+", wantErr: true},
		{name: "plus with separators", in: "+1 910 733 9541", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnrecognizedPhone) {
					t.Fatalf("NormalizePhone(%q) error = %v, want ErrUnrecognizedPhone", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"(910) 733-9541",
		"18647878082",
		"+19107339541",
		"(910) 733",
		"(1910) 733-9541",
		"(44) 20 7946 0958",
	}
	for _, in := range inputs {
		once, err := NormalizePhone(in)
		if err != nil {
			t.Fatalf("NormalizePhone(%q) failed: %v", in, err)
		}
		twice, err := NormalizePhone(once)
		if err != nil {
			t.Fatalf("NormalizePhone(%q) failed on second pass: %v", once, err)
		}
		if once != twice {
			t.Errorf("NormalizePhone not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  John.Smith@Example.COM "); got != "john.smith@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}
