package stocktag

import (
	"time"
)

// Category is the leaf directory name that makes a directory image-bearing.
type Category string

const (
	Editorial  Category = "editorial"
	Commercial Category = "commercial"
)

// ImageContext is an eligible image and what its position in the tree says about it.
type ImageContext struct {
	Path    string
	RelPath string

	Country  string
	City     string
	Category Category

	// Taken is the capture time, or the zero time if unknown.
	Taken time.Time
}

// ID returns the resource identifier used to join the image with its batch result.
func (ic *ImageContext) ID() string {
	return Identifier(ic.RelPath)
}

// HasDate reports whether the capture date is known.
func (ic *ImageContext) HasDate() bool {
	return !ic.Taken.IsZero()
}
