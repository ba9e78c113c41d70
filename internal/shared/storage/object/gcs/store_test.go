package gcs

import "testing"

func TestObjectPath(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "owner/a.pdf", "owner/a.pdf"},
		{"uploads", "/owner/a.pdf", "uploads/owner/a.pdf"},
	}
	for _, tt := range tests {
		if got := objectPath(tt.prefix, tt.key); got != tt.want {
			t.Fatalf("objectPath(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}
