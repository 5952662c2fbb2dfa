package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzParseJobID checks that parsing never panics and that accepted IDs are
// safe to place in a URL path segment.
func FuzzParseJobID(f *testing.F) {
	f.Add("")
	f.Add("42")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("../../etc/passwd")
	f.Add("'; DROP TABLE jobs;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseJobID(input)
		if err != nil {
			return
		}
		s := id.String()
		if strings.ContainsAny(s, "/?#% \x00") {
			t.Errorf("accepted unsafe job id %q", s)
		}
		if !utf8.ValidString(s) {
			t.Errorf("accepted non-UTF8 job id %q", s)
		}
		again, err := ParseJobID(s)
		if err != nil || again != id {
			t.Errorf("job id %q did not round-trip", s)
		}
	})
}

// FuzzParseSessionID checks cookie parsing never panics and round-trips.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseSessionID(input)
		if err != nil {
			return
		}
		again, err := ParseSessionID(id.String())
		if err != nil || again != id {
			t.Errorf("session id %q did not round-trip", input)
		}
	})
}
