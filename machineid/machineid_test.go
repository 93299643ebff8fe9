package machineid

import "testing"

func TestLoadCreatesThenPersists(t *testing.T) {
	dir := t.TempDir()

	first, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !isValid(first) {
		t.Fatalf("generated id %q is not 32 lowercase hex chars", first)
	}

	second, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if second != first {
		t.Fatalf("Load returned %q, then %q: id did not persist", first, second)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"5cf37a1e9b6e4e618c0a1d2f7a9e4b6d", true},
		{"5CF37A1E9B6E4E618C0A1D2F7A9E4B6D", false}, // must be lowercase
		{"tooshort", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isValid(tt.id); got != tt.want {
			t.Errorf("isValid(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
