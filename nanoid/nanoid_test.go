package nanoid

import "testing"

func TestPrimaryKey(t *testing.T) {
	gen := PrimaryKey("bat_")
	a, b := gen(), gen()
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if len(a) != len("bat_")+PrimaryKeySize {
		t.Errorf("unexpected length %d", len(a))
	}
	if !IsPrimaryKey("bat_", a) {
		t.Errorf("IsPrimaryKey(%q) = false", a)
	}
}

func TestIsPrimaryKey(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"job_0123456789abcdef", true},
		{"bat_0123456789abcdef", false},
		{"job_0123", false},
		{"job_0123456789ABCDEF", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPrimaryKey("job_", tt.id); got != tt.want {
			t.Errorf("IsPrimaryKey(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestLower(t *testing.T) {
	id := Lower(8)
	if len(id) != 8 {
		t.Fatalf("expected 8 chars, got %d", len(id))
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			t.Fatalf("unexpected rune %q in %s", r, id)
		}
	}
}
