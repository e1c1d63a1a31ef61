package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSource replays a directory of JPEG files as a frame stream, in filename
// order. It stands in for a live camera in deployments that record to disk and
// in manual testing.
type FileSource struct {
	paths []string
	pos   int
	loop  bool
}

// NewFileSource scans dir for JPEG files. With loop set the source starts over
// after the last frame instead of reporting io.EOF.
func NewFileSource(dir string, loop bool) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", dir)
	}
	sort.Strings(paths)

	return &FileSource{paths: paths, loop: loop}, nil
}

// Next returns the next frame's bytes.
func (s *FileSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.paths) {
		if !s.loop {
			return nil, io.EOF
		}
		s.pos = 0
	}

	data, err := os.ReadFile(s.paths[s.pos])
	if err != nil {
		return nil, fmt.Errorf("reading frame %s: %w", s.paths[s.pos], err)
	}
	s.pos++
	return data, nil
}

// Close implements FrameSource. A file source holds no open handles.
func (s *FileSource) Close() error {
	return nil
}
