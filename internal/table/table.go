// Package table holds the immutable character/representation/phonetic
// lookup tables (spec.md §4.1). The tables are built once, lazily, and are
// safe to share read-only across many gocw instances.
package table

import (
	"sync"

	"github.com/n7dr/gocw/cwerr"
)

// MaxRepresentationLength is the longest dot-dash shape in CWTable (ASCII
// '$' = "...-..-", 7 characters) — the hash in §4.1 is only defined for
// representations of length 1..7.
const MaxRepresentationLength = 7

// entry is one character/representation pair, mirroring the C source's
// cw_entry_t (original_source/src/cwlib/cwlib.c).
type entry struct {
	character byte
	shape     string
}

// cwTable is CW_TABLE from original_source/src/cwlib/cwlib.c, transcribed
// verbatim (ASCII letters/digits/punctuation, ISO-8859-1 and ISO-8859-2
// accented letters, six non-standard procedural extensions).
var cwTable = []entry{
	// ASCII 7-bit letters
	{'A', ".-"}, {'B', "-..."}, {'C', "-.-."},
	{'D', "-.."}, {'E', "."}, {'F', "..-."},
	{'G', "--."}, {'H', "...."}, {'I', ".."},
	{'J', ".---"}, {'K', "-.-"}, {'L', ".-.."},
	{'M', "--"}, {'N', "-."}, {'O', "---"},
	{'P', ".--."}, {'Q', "--.-"}, {'R', ".-."},
	{'S', "..."}, {'T', "-"}, {'U', "..-"},
	{'V', "...-"}, {'W', ".--"}, {'X', "-..-"},
	{'Y', "-.--"}, {'Z', "--.."},

	// Numerals
	{'0', "-----"}, {'1', ".----"}, {'2', "..---"},
	{'3', "...--"}, {'4', "....-"}, {'5', "....."},
	{'6', "-...."}, {'7', "--..."}, {'8', "---.."},
	{'9', "----."},

	// Punctuation
	{'"', ".-..-."}, {'\'', ".----."}, {'$', "...-..-"},
	{'(', "-.--."}, {')', "-.--.-"}, {'+', ".-.-."},
	{',', "--..--"}, {'-', "-....-"}, {'.', ".-.-.-"},
	{'/', "-..-."}, {':', "---..."}, {';', "-.-.-."},
	{'=', "-...-"}, {'?', "..--.."}, {'_', "..--.-"},
	{'@', ".--.-."},

	// ISO 8859-1 accented characters
	{0334, "..--"},  // U with diaeresis
	{0304, ".-.-"},  // A with diaeresis
	{0307, "-.-.."}, // C with cedilla
	{0326, "---."},  // O with diaeresis
	{0311, "..-.."}, // E with acute
	{0310, ".-..-"}, // E with grave
	{0300, ".--.-"}, // A with grave
	{0321, "--.--"}, // N with tilde

	// ISO 8859-2 accented characters
	{0252, "----"},  // S with cedilla
	{0256, "--..-"}, // Z with dot above

	// Non-standard procedural signal extensions
	{'<', "...-.-"},  // VA/SK, end of work
	{'>', "-...-.-"}, // BK, break
	{'!', "...-."},   // SN, understood
	{'&', ".-..."},   // AS, wait
	{'^', "-.-.-"},   // KA, starting signal
	{'~', ".-.-.."},  // AL, paragraph
}

// procEntry mirrors cw_prosign_entry_t: a character's procedural expansion
// plus whether it is usually displayed expanded.
type procEntry struct {
	character  byte
	expansion  string
	isExpanded bool
}

var procTable = []procEntry{
	{'"', "AF", false}, {'\'', "WG", false}, {'$', "SX", false},
	{'(', "KN", false}, {')', "KK", false}, {'+', "AR", false},
	{',', "MIM", false}, {'-', "DU", false}, {'.', "AAA", false},
	{'/', "DN", false}, {':', "OS", false}, {';', "KR", false},
	{'=', "BT", false}, {'?', "IMI", false}, {'_', "IQ", false},
	{'@', "AC", false},

	{'<', "VA", true},
	{'>', "BK", true},
	{'!', "SN", true},
	{'&', "AS", true},
	{'^', "KA", true},
	{'~', "AL", true},
}

// phonetics is CW_PHONETICS, ITU/NATO phonetic alphabet indexed by
// uppercase letter A..Z.
var phonetics = [26]string{
	"Alfa", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel",
	"India", "Juliett", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa",
	"Quebec", "Romeo", "Sierra", "Tango", "Uniform", "Victor", "Whiskey",
	"X-ray", "Yankee", "Zulu",
}

// Table is the built, queryable lookup structure. The zero value is not
// usable; obtain one through Get.
type Table struct {
	byChar        [256]string          // character -> representation, "" if absent
	byHash        [256]byte             // hash(representation) -> character, 0 if absent
	incomplete    bool                  // true if a hash collision forced linear fallback
	procByChar    [256]procEntry
	hasProc       [256]bool
	maxRepLen     int
	maxExpLen     int
	maxPhoneticLen int
}

var (
	once      sync.Once
	singleton *Table
)

// Get returns the shared, immutable table, building it on first use.
func Get() *Table {
	once.Do(func() {
		singleton = build()
	})
	return singleton
}

func build() *Table {
	t := &Table{}
	for _, e := range cwTable {
		c := upperASCII(e.character)
		t.byChar[c] = e.shape
		if len(e.shape) > t.maxRepLen {
			t.maxRepLen = len(e.shape)
		}
		h := HashRepresentation(e.shape)
		if h == 0 {
			continue
		}
		if t.byHash[h] != 0 {
			t.incomplete = true
			continue
		}
		t.byHash[h] = c
	}
	for _, p := range procTable {
		c := upperASCII(p.character)
		t.procByChar[c] = p
		t.hasProc[c] = true
		if len(p.expansion) > t.maxExpLen {
			t.maxExpLen = len(p.expansion)
		}
	}
	for _, p := range phonetics {
		if len(p) > t.maxPhoneticLen {
			t.maxPhoneticLen = len(p)
		}
	}
	return t
}

// upperASCII normalizes ASCII letters to uppercase; all other bytes
// (digits, punctuation, Latin-1/Latin-2 accented letters) pass through
// unchanged, matching the C table's case-sensitivity for non-ASCII bytes.
func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// LookupCharacter returns the dot-dash representation of c, or
// cwerr.NotFound if c has no table entry.
func (t *Table) LookupCharacter(c byte) (string, error) {
	c = upperASCII(c)
	if rep := t.byChar[c]; rep != "" {
		return rep, nil
	}
	return "", cwerr.New("table.LookupCharacter", cwerr.NotFound)
}

// LookupRepresentation returns the character for a dot-dash representation,
// or cwerr.NotFound / cwerr.InvalidArgument.
func (t *Table) LookupRepresentation(rep string) (byte, error) {
	if !CheckRepresentation(rep) {
		return 0, cwerr.New("table.LookupRepresentation", cwerr.InvalidArgument)
	}
	h := HashRepresentation(rep)
	if h != 0 && !t.incomplete {
		if c := t.byHash[h]; c != 0 {
			return c, nil
		}
		return 0, cwerr.New("table.LookupRepresentation", cwerr.NotFound)
	}
	// Linear fallback (collision, or representation too long to hash).
	for _, e := range cwTable {
		if e.shape == rep {
			return upperASCII(e.character), nil
		}
	}
	return 0, cwerr.New("table.LookupRepresentation", cwerr.NotFound)
}

// LookupProcedural returns the expansion and display hint for a procedural
// signal character.
func (t *Table) LookupProcedural(c byte) (expansion string, usuallyExpanded bool, err error) {
	c = upperASCII(c)
	if t.hasProc[c] {
		p := t.procByChar[c]
		return p.expansion, p.isExpanded, nil
	}
	return "", false, cwerr.New("table.LookupProcedural", cwerr.NotFound)
}

// LookupPhonetic returns the ITU/NATO phonetic word for an uppercase letter
// 'A'..'Z'.
func (t *Table) LookupPhonetic(c byte) (string, error) {
	c = upperASCII(c)
	if c < 'A' || c > 'Z' {
		return "", cwerr.New("table.LookupPhonetic", cwerr.NotFound)
	}
	return phonetics[c-'A'], nil
}

// MaxRepresentationLen, MaxExpansionLen, MaxPhoneticLen size caller buffers
// (spec.md §6 "Public listing functions ... so callers can size buffers").
func (t *Table) MaxRepresentationLen() int { return t.maxRepLen }
func (t *Table) MaxExpansionLen() int      { return t.maxExpLen }
func (t *Table) MaxPhoneticLen() int       { return t.maxPhoneticLen }

// Characters returns every character with a table entry, in table order.
func (t *Table) Characters() []byte {
	out := make([]byte, 0, len(cwTable))
	for _, e := range cwTable {
		out = append(out, upperASCII(e.character))
	}
	return out
}

// CheckRepresentation reports whether rep is composed only of '.'/'-' and
// has length 1..7 (spec.md §4.1 invariant (b), widened here only in that the
// length bound is checked by the caller of the hash, not here — a valid
// representation can still be the teacher's maximum of 7).
func CheckRepresentation(rep string) bool {
	if len(rep) < 1 {
		return false
	}
	for i := 0; i < len(rep); i++ {
		if rep[i] != '.' && rep[i] != '-' {
			return false
		}
	}
	return true
}

// HashRepresentation implements cw_hash_representation_internal: treat the
// representation as bits (dot=0, dash=1) prefixed by a sentinel leading 1.
// Returns 0 if rep is empty, longer than 7 characters, or malformed.
func HashRepresentation(rep string) byte {
	if len(rep) < 1 || len(rep) > MaxRepresentationLength {
		return 0
	}
	hash := uint(1)
	for i := 0; i < len(rep); i++ {
		hash <<= 1
		switch rep[i] {
		case '-':
			hash |= 1
		case '.':
			// bit stays 0
		default:
			return 0
		}
	}
	return byte(hash)
}
