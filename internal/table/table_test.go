package table

import (
	"testing"

	"pgregory.net/rapid"
)

func TestRoundTrip_CharacterToRepresentation(t *testing.T) {
	tbl := Get()
	for _, c := range tbl.Characters() {
		rep, err := tbl.LookupCharacter(c)
		if err != nil {
			t.Fatalf("LookupCharacter(%q) error = %v", c, err)
		}
		got, err := tbl.LookupRepresentation(rep)
		if err != nil {
			t.Fatalf("LookupRepresentation(%q) error = %v", rep, err)
		}
		if got != c {
			t.Errorf("round trip: char %q -> rep %q -> char %q, want %q", c, rep, got, c)
		}
	}
}

func TestRepresentationLengthBounds(t *testing.T) {
	tbl := Get()
	for _, c := range tbl.Characters() {
		rep, _ := tbl.LookupCharacter(c)
		if len(rep) < 1 || len(rep) > 7 {
			t.Errorf("character %q has representation %q of length %d, want 1..7", c, rep, len(rep))
		}
	}
}

func TestCheckRepresentation(t *testing.T) {
	tests := []struct {
		rep  string
		want bool
	}{
		{"", false},
		{".", true},
		{"-", true},
		{".-.-", true},
		{"..x-", false},
		{"...---...", true}, // length > 7 still "checks" fine; hashing bounds it separately
	}
	for _, tt := range tests {
		if got := CheckRepresentation(tt.rep); got != tt.want {
			t.Errorf("CheckRepresentation(%q) = %v, want %v", tt.rep, got, tt.want)
		}
	}
}

func TestHashRepresentation_RangeAndUniqueness(t *testing.T) {
	tbl := Get()
	seen := map[byte]byte{}
	for _, c := range tbl.Characters() {
		rep, _ := tbl.LookupCharacter(c)
		h := HashRepresentation(rep)
		if len(rep) <= 7 {
			if h < 2 || h > 255 {
				t.Errorf("hash(%q) = %d, want in [2,255]", rep, h)
			}
		}
		if prev, ok := seen[h]; ok && prev != c {
			t.Logf("hash collision for %q (%q) and %q: both hash to %d -- table falls back to linear search", c, rep, prev, h)
		}
		seen[h] = c
	}
}

func TestHashRepresentation_Invalid(t *testing.T) {
	if h := HashRepresentation(""); h != 0 {
		t.Errorf("HashRepresentation(\"\") = %d, want 0", h)
	}
	if h := HashRepresentation("........"); h != 0 { // 8 chars, too long
		t.Errorf("HashRepresentation(8 chars) = %d, want 0", h)
	}
	if h := HashRepresentation(".x-"); h != 0 {
		t.Errorf("HashRepresentation with invalid char = %d, want 0", h)
	}
}

func TestLookupCharacter_NotFound(t *testing.T) {
	tbl := Get()
	if _, err := tbl.LookupCharacter(1); err == nil {
		t.Error("LookupCharacter(byte 1) should fail, got nil error")
	}
}

func TestLookupRepresentation_InvalidArgument(t *testing.T) {
	tbl := Get()
	if _, err := tbl.LookupRepresentation("10x"); err == nil {
		t.Error("LookupRepresentation with malformed string should fail")
	}
}

func TestLookupPhonetic(t *testing.T) {
	tbl := Get()
	ph, err := tbl.LookupPhonetic('a')
	if err != nil {
		t.Fatalf("LookupPhonetic('a') error = %v", err)
	}
	if ph != "Alfa" {
		t.Errorf("LookupPhonetic('a') = %q, want Alfa", ph)
	}
	if _, err := tbl.LookupPhonetic('1'); err == nil {
		t.Error("LookupPhonetic('1') should fail")
	}
}

func TestLookupProcedural(t *testing.T) {
	tbl := Get()
	exp, expanded, err := tbl.LookupProcedural('<')
	if err != nil {
		t.Fatalf("LookupProcedural('<') error = %v", err)
	}
	if exp != "VA" || !expanded {
		t.Errorf("LookupProcedural('<') = (%q, %v), want (VA, true)", exp, expanded)
	}
}

// Property: for every representation rapid can build out of the table's
// own characters, encode then decode returns the original character
// (spec.md §8: "∀ c in the character table, lookup_representation(lookup_character(c)) = c").
func TestProperty_CharacterRoundTrip(t *testing.T) {
	tbl := Get()
	chars := tbl.Characters()
	rapid.Check(t, func(rt *rapid.T) {
		c := rapid.SampledFrom(chars).Draw(rt, "char")
		rep, err := tbl.LookupCharacter(c)
		if err != nil {
			rt.Fatalf("LookupCharacter(%q): %v", c, err)
		}
		got, err := tbl.LookupRepresentation(rep)
		if err != nil {
			rt.Fatalf("LookupRepresentation(%q): %v", rep, err)
		}
		if got != c {
			rt.Fatalf("round trip mismatch: %q -> %q -> %q", c, rep, got)
		}
	})
}

// Property: every representation built purely of '.'/'-' with length 1..7
// hashes into [2,255].
func TestProperty_HashAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(rt, "len")
		b := make([]byte, n)
		for i := range b {
			if rapid.Bool().Draw(rt, "bit") {
				b[i] = '-'
			} else {
				b[i] = '.'
			}
		}
		rep := string(b)
		h := HashRepresentation(rep)
		if h < 2 || h > 255 {
			rt.Fatalf("HashRepresentation(%q) = %d, want in [2,255]", rep, h)
		}
	})
}
