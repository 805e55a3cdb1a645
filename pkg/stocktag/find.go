package stocktag

import (
	"errors"
	"iter"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

var imageExts = []string{".jpg", ".jpeg"}

var errStopWalk = errors.New("stop walk")

// classify returns the context shared by images in dir, or false if dir is not
// a <country>/<city>/<category> directory.
func classify(root string, dir string) (ImageContext, bool) {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return ImageContext{}, false
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 3 {
		return ImageContext{}, false
	}

	cat := Category(parts[len(parts)-1])
	if cat != Editorial && cat != Commercial {
		return ImageContext{}, false
	}

	return ImageContext{
		Country:  parts[len(parts)-3],
		City:     parts[len(parts)-2],
		Category: cat,
	}, true
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range imageExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan walks root in lexical order and yields every eligible image. Each range over the
// returned sequence performs a fresh walk.
func Scan(root string) iter.Seq2[*ImageContext, error] {
	root = filepath.Clean(root)
	return func(yield func(*ImageContext, error) bool) {
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if path != root && strings.HasPrefix(de.Name(), ".") {
					return godirwalk.SkipThis
				}

				if de.IsDir() {
					if path == root {
						return nil
					}
					if ic, ok := classify(root, path); ok {
						klog.Infof("analyzing %s (%s, %s, %s)", path, ic.Country, ic.City, ic.Category)
					} else {
						klog.V(1).Infof("%s is neither editorial nor commercial, skipping", path)
					}
					return nil
				}

				if !isImage(path) {
					return nil
				}

				ic, ok := classify(root, filepath.Dir(path))
				if !ok {
					return nil
				}

				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				ic.Path = path
				ic.RelPath = rel

				if !yield(&ic, nil) {
					return errStopWalk
				}
				return nil
			},
			ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
				if errors.Is(err, errStopWalk) {
					return godirwalk.Halt
				}
				klog.Warningf("skipping %s: %v", path, err)
				return godirwalk.SkipNode
			},
		})

		if err != nil && !errors.Is(err, errStopWalk) {
			yield(nil, err)
		}
	}
}
