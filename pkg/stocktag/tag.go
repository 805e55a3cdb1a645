package stocktag

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// ErrNoResults is returned when output processing is attempted without any batch results.
var ErrNoResults = errors.New("no batch results loaded; fetch the batch results first")

// Metadata is what gets written into an image.
type Metadata struct {
	Headline string
	Keywords []string
}

// Tagger reads capture dates from images and writes metadata into them.
type Tagger interface {
	Taken(path string) (time.Time, error)
	Write(path string, m Metadata) error
}

// Tally counts what happened to each image during output processing.
type Tally struct {
	Seen      int
	Written   int
	Missing   int
	Malformed int
	Failed    int
}

func (t *Tally) String() string {
	return fmt.Sprintf("%d images: %d written, %d without results, %d malformed, %d failed",
		t.Seen, t.Written, t.Missing, t.Malformed, t.Failed)
}

// Headline returns the title to write, stamped with place and date for editorial images.
func Headline(ic *ImageContext, title string) string {
	if ic.Category != Editorial || ic.Country == "" || ic.City == "" || !ic.HasDate() {
		return title
	}
	t := ic.Taken
	return fmt.Sprintf("%s, %s - %d.%d.%d: %s", ic.City, ic.Country, int(t.Month()), t.Day(), t.Year(), title)
}

func cleanKeyword(k string) string {
	return strings.NewReplacer(".", "", "\n", "", "\r", "").Replace(k)
}

// cleanTitle folds a multi-line title onto one line.
func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NewMetadata computes the metadata for an image from its parsed response.
func NewMetadata(ic *ImageContext, p *Parsed) Metadata {
	ks := make([]string, 0, len(p.Keywords))
	for _, k := range p.Keywords {
		k = cleanKeyword(k)
		// exiftool treats an empty -Keywords= as "delete all keywords"
		if k == "" {
			continue
		}
		ks = append(ks, k)
	}
	return Metadata{Headline: Headline(ic, cleanTitle(p.Title)), Keywords: ks}
}

// ProcessOutput walks c.PhotoDir and writes the reconciled responses into matching images.
// Problems with individual images are logged and counted; only a failed walk is returned as an error.
func ProcessOutput(c *Config, rs *Responses, t Tagger) (*Tally, error) {
	if rs == nil || rs.Len() == 0 {
		return nil, ErrNoResults
	}

	tally := &Tally{}
	for ic, err := range Scan(c.PhotoDir) {
		if err != nil {
			return tally, fmt.Errorf("scan: %w", err)
		}
		tally.Seen++

		id := ic.ID()
		raw, ok := rs.Lookup(id)
		if !ok {
			klog.Warningf("no metadata found for %s", id)
			tally.Missing++
			continue
		}

		p, err := Parse(raw)
		if err != nil {
			klog.Warningf("%s: %v", ic.Path, err)
			tally.Malformed++
			continue
		}

		ic.Taken, err = t.Taken(ic.Path)
		if err != nil {
			klog.V(1).Infof("no capture date for %s: %v", ic.Path, err)
		}

		m := NewMetadata(ic, p)
		klog.V(1).Infof("tagging %s: %q %v", ic.Path, m.Headline, m.Keywords)
		if err := t.Write(ic.Path, m); err != nil {
			klog.Errorf("exiftool failed for %s: %v", ic.Path, err)
			tally.Failed++
			continue
		}
		tally.Written++
	}

	klog.Infof("processed %s", tally)
	return tally, nil
}
