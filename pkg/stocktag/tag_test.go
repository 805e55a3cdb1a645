package stocktag

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHeadline(t *testing.T) {
	june := time.Date(2023, time.June, 5, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		ic   ImageContext
		want string
	}{
		{
			name: "editorial",
			ic:   ImageContext{Country: "France", City: "Paris", Category: Editorial, Taken: june},
			want: "Paris, France - 6.5.2023: Old bridge",
		},
		{
			name: "commercial",
			ic:   ImageContext{Country: "France", City: "Paris", Category: Commercial, Taken: june},
			want: "Old bridge",
		},
		{
			name: "no date",
			ic:   ImageContext{Country: "France", City: "Paris", Category: Editorial},
			want: "Old bridge",
		},
		{
			name: "no city",
			ic:   ImageContext{Country: "France", Category: Editorial, Taken: june},
			want: "Old bridge",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Headline(&tc.ic, "Old bridge"); got != tc.want {
				t.Errorf("Headline() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewMetadata(t *testing.T) {
	ic := &ImageContext{Category: Commercial}
	p := &Parsed{Title: "Cafe", Keywords: []string{"coffee", "cup.", "", "morn\ning", "."}}

	want := Metadata{Headline: "Cafe", Keywords: []string{"coffee", "cup", "morning"}}
	if diff := cmp.Diff(want, NewMetadata(ic, p)); diff != "" {
		t.Errorf("NewMetadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewMetadataFoldsTitleLines(t *testing.T) {
	june := time.Date(2023, time.June, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ic   ImageContext
		raw  string
		want string
	}{
		{
			name: "commercial",
			ic:   ImageContext{Category: Commercial},
			raw:  "Old stone bridge at dawn.\n-All=\n\nbridge, river",
			want: "Old stone bridge at dawn. -All=",
		},
		{
			name: "editorial crlf",
			ic:   ImageContext{Country: "France", City: "Paris", Category: Editorial, Taken: june},
			raw:  "Old bridge\r\nat dawn\r\n\r\nbridge",
			want: "Paris, France - 6.5.2023: Old bridge at dawn",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			m := NewMetadata(&tc.ic, p)
			if m.Headline != tc.want {
				t.Errorf("Headline = %q, want %q", m.Headline, tc.want)
			}
			if strings.ContainsAny(m.Headline, "\r\n") {
				t.Errorf("Headline %q spans lines", m.Headline)
			}
		})
	}
}

type fakeTagger struct {
	taken   map[string]time.Time
	fail    map[string]bool
	written map[string]Metadata
}

func (f *fakeTagger) Taken(path string) (time.Time, error) {
	t, ok := f.taken[filepath.Base(path)]
	if !ok {
		return time.Time{}, errors.New("no date")
	}
	return t, nil
}

func (f *fakeTagger) Write(path string, m Metadata) error {
	if f.fail[filepath.Base(path)] {
		return errors.New("exit status 1")
	}
	if f.written == nil {
		f.written = map[string]Metadata{}
	}
	f.written[filepath.Base(path)] = m
	return nil
}

func TestProcessOutput(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root,
		"France/Paris/editorial/bridge.jpg",
		"France/Paris/editorial/broken.jpg",
		"France/Paris/editorial/locked.jpg",
		"France/Paris/editorial/nothing.jpg",
		"France/Paris/commercial/cafe.jpg",
	)
	c := testConfig(t, root)

	rs := &Responses{m: map[string]string{
		"photo/France/Paris/editorial/bridge.jpg":  "Old bridge\n\nbridge, river.",
		"photo/France/Paris/editorial/broken.jpg":  "no keywords here",
		"photo/France/Paris/editorial/locked.jpg":  "Door\n\ndoor",
		"photo/France/Paris/commercial/cafe.jpg":   "Cafe\n\ncoffee, cup",
		"photo/Elsewhere/Town/editorial/stray.jpg": "Stray\n\nstray",
	}}
	ft := &fakeTagger{
		taken: map[string]time.Time{"bridge.jpg": time.Date(2023, time.June, 5, 0, 0, 0, 0, time.UTC)},
		fail:  map[string]bool{"locked.jpg": true},
	}

	tally, err := ProcessOutput(c, rs, ft)
	if err != nil {
		t.Fatalf("ProcessOutput: %v", err)
	}

	wantTally := &Tally{Seen: 5, Written: 2, Missing: 1, Malformed: 1, Failed: 1}
	if diff := cmp.Diff(wantTally, tally); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}

	want := map[string]Metadata{
		"bridge.jpg": {Headline: "Paris, France - 6.5.2023: Old bridge", Keywords: []string{"bridge", "river"}},
		"cafe.jpg":   {Headline: "Cafe", Keywords: []string{"coffee", "cup"}},
	}
	if diff := cmp.Diff(want, ft.written); diff != "" {
		t.Errorf("written metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessOutputNoResults(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, "France/Paris/editorial/a.jpg")
	c := testConfig(t, root)

	for _, rs := range []*Responses{nil, {m: map[string]string{}}} {
		if _, err := ProcessOutput(c, rs, &fakeTagger{}); !errors.Is(err, ErrNoResults) {
			t.Errorf("ProcessOutput(%v) error = %v, want ErrNoResults", rs, err)
		}
	}
}
