package services

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/detectdash/client/models"
)

// DefaultAllowedExtensions are the container formats the backend accepts.
var DefaultAllowedExtensions = []string{"mp4", "avi", "mov"}

// LocalFile is a video on the local filesystem.
type LocalFile struct {
	path string
	name string
	size int64
}

func NewLocalFile(path string) (*LocalFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}
	return &LocalFile{path: abs, name: filepath.Base(abs), size: fi.Size()}, nil
}

func (f *LocalFile) Name() string { return f.name }
func (f *LocalFile) Path() string { return f.path }
func (f *LocalFile) Size() int64  { return f.size }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// FilePreviewURL derives a file:// URL for a local file. Handles that are not
// on disk get no preview.
func FilePreviewURL(_ string, file models.VideoFile) string {
	lf, ok := file.(*LocalFile)
	if !ok {
		return ""
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(lf.path)}).String()
}

// HasAllowedExtension reports whether name ends in one of exts (case-insensitive,
// without the dot).
func HasAllowedExtension(name string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.EqualFold(strings.TrimPrefix(e, "."), ext)
	})
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// stagedName reduces a client-supplied filename to a safe base name.
func stagedName(filename string) string {
	name := unsafeNameChars.ReplaceAllString(filepath.Base(filename), "_")
	if strings.Trim(name, ".") == "" {
		return "upload.mp4"
	}
	return name
}

// StageUpload saves a browser-picked file under dir so it can be selected like
// any local file. Every upload gets its own directory, so the picked name is
// kept as is and two picks of the same name never clash.
func StageUpload(dir string, file io.Reader, filename string) (*LocalFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	slot, err := os.MkdirTemp(dir, "pick-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging slot: %w", err)
	}

	dest := filepath.Join(slot, stagedName(filename))
	out, err := os.Create(dest)
	if err != nil {
		os.RemoveAll(slot)
		return nil, fmt.Errorf("staging %s: %w", filename, err)
	}
	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.RemoveAll(slot)
		return nil, fmt.Errorf("staging %s: %w", filename, err)
	}
	return NewLocalFile(dest)
}
