package leads

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

// FileSource keeps lead lists on the local filesystem under Dir.
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

func (s *FileSource) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	full := filepath.Join(s.Dir, path)
	rel, err := filepath.Rel(s.Dir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("lead list path %q escapes %s", path, s.Dir)
	}
	return full, nil
}

func (s *FileSource) Load(_ context.Context, path string) ([]entity.Lead, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLeadListNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (s *FileSource) Store(_ context.Context, path string, leads []entity.Lead) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	data, err := Encode(leads)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}
