package entities

import "testing"

// TestVersion tests the four-part version value type
func TestVersion(t *testing.T) {
	if got := (Version{Major: 8, Minor: 0, Build: 7, Revision: 12}).String(); got != "8.0.7.12" {
		t.Errorf("String() = %q, want %q", got, "8.0.7.12")
	}
	if !(Version{}).IsZero() {
		t.Error("zero Version IsZero() = false, want true")
	}
	if (Version{Revision: 1}).IsZero() {
		t.Error("non-zero Version IsZero() = true, want false")
	}
}
