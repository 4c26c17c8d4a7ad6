package killswitch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileSource treats the existence of a flag file as "killed". The file body
// holds the reason and is informational only.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Read(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat kill flag: %w", err)
	}
}

// Reason returns the file body, or "" when the switch is off.
func (s *FileSource) Reason() string {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *FileSource) Set(ctx context.Context, reason string) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	body := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), reason)
	return os.WriteFile(s.path, []byte(body), 0o644)
}

func (s *FileSource) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
