package stocktag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for model responses that lack a keyword section.
var ErrMalformed = errors.New("malformed response")

// Parsed is a model response split into its title and keywords.
type Parsed struct {
	Title    string
	Keywords []string
}

// Parse splits a raw response into a title and a keyword list. Segments past the
// second are dropped: the model sometimes appends stray blank lines.
func Parse(raw string) (*Parsed, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	segs := strings.Split(raw, "\n\n")
	if len(segs) < 2 {
		return nil, fmt.Errorf("%w: %d section(s), want 2", ErrMalformed, len(segs))
	}

	return &Parsed{
		Title:    strings.TrimSpace(segs[0]),
		Keywords: Keywords(segs[1]),
	}, nil
}

// Keywords splits a comma-separated keyword list. Duplicates are kept.
func Keywords(blob string) []string {
	blob = strings.TrimSpace(blob)
	blob = strings.TrimSuffix(blob, ".")

	ks := strings.Split(blob, ",")
	for i, k := range ks {
		ks[i] = strings.TrimSpace(k)
	}
	return ks
}
