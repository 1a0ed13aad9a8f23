package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrObjectNotFound is returned by a Fetcher when the named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Fetcher retrieves dataset files by name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	Describe() string
}

// DirFetcher reads dataset files from a local directory.
type DirFetcher struct {
	Dir string
}

// NewDirFetcher creates a fetcher rooted at dir.
func NewDirFetcher(dir string) *DirFetcher {
	return &DirFetcher{Dir: dir}
}

// Fetch reads the named file.
func (f *DirFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrObjectNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Describe identifies the directory in logs.
func (f *DirFetcher) Describe() string {
	return "dir:" + f.Dir
}
