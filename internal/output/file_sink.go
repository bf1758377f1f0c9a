package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

// FileSystemSink appends results to <dir>/<config>/<STATUS>.txt, one line per
// result: the data, followed by its captures when there are any.
type FileSystemSink struct {
	dir    string
	filter StatusFilter

	mu    sync.Mutex
	files map[string]*os.File
}

func NewFileSystemSink(dir string, statuses []string) *FileSystemSink {
	return &FileSystemSink{
		dir:    dir,
		filter: NewStatusFilter(statuses),
		files:  make(map[string]*os.File),
	}
}

func (s *FileSystemSink) Record(_ context.Context, result domain.CheckResult) error {
	if !s.filter.Allows(result) {
		return nil
	}

	line := result.Line.Data
	if captured := result.CapturedData(); captured != "" {
		line += " | " + captured
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.file(result.Config, statusName(result))
	if err != nil {
		return err
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write hit: %w", err)
	}
	return nil
}

func (s *FileSystemSink) file(config, status string) (*os.File, error) {
	path := filepath.Join(s.dir, sanitizeFileName(config), sanitizeFileName(status)+".txt")
	if file, ok := s.files[path]; ok {
		return file, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create hits directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open hits file: %w", err)
	}
	s.files[path] = file
	return file, nil
}

func (s *FileSystemSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, file := range s.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, path)
	}
	return firstErr
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
