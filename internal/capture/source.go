// Package capture provides frame sources backed by GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrNotDirectory is returned when a frames path is not a directory.
	ErrNotDirectory = errors.New("frames path is not a directory")

	// ErrNoImages is returned when a frames directory holds no supported images.
	ErrNoImages = errors.New("no image frames found")

	// ErrOutOfRange is returned when reading a frame index the source does not have.
	ErrOutOfRange = errors.New("frame index out of range")
)

// imageExtensions lists the file extensions read as frames.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Source defines an ordered, random-access collection of video frames.
type Source interface {
	// Len returns the number of frames.
	Len() int

	// Read decodes frame i. The caller is responsible for closing the
	// returned Mat. Implementations must be safe for concurrent use.
	Read(i int) (*gocv.Mat, error)

	// Name returns a human readable identifier for frame i.
	Name(i int) string
}

// DirSource reads frames from the image files of a directory in
// lexicographic file name order.
type DirSource struct {
	dir   string
	paths []string
}

// NewDirSource lists the image files of dir.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat frames dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoImages)
	}
	sort.Strings(paths)

	return &DirSource{dir: dir, paths: paths}, nil
}

// Dir returns the directory the frames are read from.
func (s *DirSource) Dir() string {
	return s.dir
}

// Len returns the number of image files.
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Name returns the file name of frame i.
func (s *DirSource) Name(i int) string {
	if i < 0 || i >= len(s.paths) {
		return ""
	}
	return filepath.Base(s.paths[i])
}

// Read decodes frame i as a BGR image.
func (s *DirSource) Read(i int) (*gocv.Mat, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, ErrOutOfRange
	}

	mat := gocv.IMRead(s.paths[i], gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to decode %s", filepath.Base(s.paths[i]))
	}

	return &mat, nil
}

// Dimensions returns the width and height of the first readable frame.
func Dimensions(src Source) (width, height int, err error) {
	for i := 0; i < src.Len(); i++ {
		mat, err := src.Read(i)
		if err != nil {
			continue
		}
		if mat == nil {
			continue
		}
		width, height = mat.Cols(), mat.Rows()
		mat.Close()
		return width, height, nil
	}
	return 0, 0, ErrNoImages
}
