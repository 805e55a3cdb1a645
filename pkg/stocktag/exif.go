package stocktag

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"k8s.io/klog/v2"
)

var exifDate = "2006:01:02 15:04:05"

// ExiftoolTimeout bounds a single exiftool request.
const ExiftoolTimeout = 30 * time.Second

var errNoResponse = errors.New("exiftool did not respond")

// Exiftool is a Tagger backed by a long-running exiftool process. A process that fails
// a request or stops answering is replaced before the next one.
type Exiftool struct {
	bin     string
	timeout time.Duration
	et      *exiftool.Exiftool
}

// NewExiftool starts exiftool. Callers must Close it. bin may be empty to use exiftool from PATH.
func NewExiftool(bin string) (*Exiftool, error) {
	e := &Exiftool{bin: bin, timeout: ExiftoolTimeout}
	if err := e.start(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Exiftool) start() error {
	var opts []func(*exiftool.Exiftool) error
	if e.bin != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(e.bin))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return fmt.Errorf("exiftool: %w", err)
	}
	e.et = et
	return nil
}

func (e *Exiftool) stop() error {
	if e.et == nil {
		return nil
	}
	et := e.et
	e.et = nil
	return et.Close()
}

// Close stops the exiftool process.
func (e *Exiftool) Close() error {
	return e.stop()
}

// call runs one request against the current process, starting a process if there is none.
func (e *Exiftool) call(path string, fn func(*exiftool.Exiftool) exiftool.FileMetadata) exiftool.FileMetadata {
	if e.et == nil {
		if err := e.start(); err != nil {
			return exiftool.FileMetadata{File: path, Err: err}
		}
	}

	et := e.et
	ch := make(chan exiftool.FileMetadata, 1)
	go func() { ch <- fn(et) }()

	select {
	case fm := <-ch:
		return fm
	case <-time.After(e.timeout):
		// The stuck request holds the process lock, so Close would block too. Drop the process.
		klog.Errorf("exiftool gave no answer for %s within %s, abandoning it", path, e.timeout)
		e.et = nil
		return exiftool.FileMetadata{File: path, Err: fmt.Errorf("%w within %s", errNoResponse, e.timeout)}
	}
}

// do runs fn, and once more on a fresh process if the first attempt fails.
func (e *Exiftool) do(path string, fn func(*exiftool.Exiftool) exiftool.FileMetadata) exiftool.FileMetadata {
	fm := e.call(path, fn)
	if fm.Err == nil || errors.Is(fm.Err, exiftool.ErrNotExist) {
		return fm
	}

	klog.Warningf("exiftool failed on %s, restarting: %v", path, fm.Err)
	if err := e.stop(); err != nil {
		klog.V(1).Infof("close exiftool: %v", err)
	}
	return e.call(path, fn)
}

// Write replaces the headline and keywords of path in place.
func (e *Exiftool) Write(path string, m Metadata) error {
	// exiftool -stay_open reads one argument per line.
	for _, v := range append([]string{m.Headline}, m.Keywords...) {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("write %s: line break in %q", path, v)
		}
	}

	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	fm.SetString("Headline", m.Headline)
	if len(m.Keywords) > 0 {
		fm.SetStrings("Keywords", m.Keywords)
	}

	res := e.do(path, func(et *exiftool.Exiftool) exiftool.FileMetadata {
		fms := []exiftool.FileMetadata{fm}
		et.WriteMetadata(fms)
		return fms[0]
	})
	if res.Err != nil {
		return fmt.Errorf("write %s: %w", path, res.Err)
	}
	return nil
}

// Taken returns the capture time of path, preferring the embedded EXIF block and
// falling back to whatever exiftool can find.
func (e *Exiftool) Taken(path string) (time.Time, error) {
	t, err := exifTaken(path)
	if err == nil {
		return t, nil
	}
	klog.V(2).Infof("goexif %s: %v", path, err)

	fi := e.do(path, func(et *exiftool.Exiftool) exiftool.FileMetadata {
		return et.ExtractMetadata(path)[0]
	})
	if fi.Err != nil {
		return time.Time{}, fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	ds, err := fi.GetString("DateTimeOriginal")
	if err != nil {
		return time.Time{}, fmt.Errorf("get DateTimeOriginal: %w", err)
	}

	t, err = time.Parse(exifDate, ds)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", ds, err)
	}
	return t, nil
}

// exifTaken reads DateTimeOriginal only. IFD0 DateTime is rewritten by editors and
// says nothing about when the photo was taken.
func exifTaken(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}
	ds, err := tag.StringVal()
	if err != nil {
		return time.Time{}, fmt.Errorf("DateTimeOriginal: %w", err)
	}
	return time.Parse(exifDate, strings.TrimSpace(ds))
}
