package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{
			name:  "simple address",
			email: "reader@example.com",
			valid: true,
		},
		{
			name:  "subdomain",
			email: "anna.petrova@lib.university.edu",
			valid: true,
		},
		{
			name:  "plus tag",
			email: "reader+library@example.com",
			valid: true,
		},
		{
			name:  "missing at",
			email: "reader.example.com",
			valid: false,
		},
		{
			name:  "missing domain dot",
			email: "reader@localhost",
			valid: false,
		},
		{
			name:  "empty local part",
			email: "@example.com",
			valid: false,
		},
		{
			name:  "trailing dot",
			email: "reader@example.",
			valid: false,
		},
		{
			name:  "contains space",
			email: "rea der@example.com",
			valid: false,
		},
		{
			name:  "empty string",
			email: "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidEmail(tt.email)
			if got != tt.valid {
				t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
			}
		})
	}
}
