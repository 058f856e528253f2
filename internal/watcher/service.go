// Package watcher reloads configuration files when they change on disk.
package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Service watches the parent directories of a set of files, since editors
// usually replace files by rename, and calls onChange for the watched paths only.
type Service struct {
	files    map[string]struct{}
	dirs     []string
	logger   *slog.Logger
	onChange func(context.Context, string)
	watcher  *fsnotify.Watcher
}

func New(paths []string, logger *slog.Logger, onChange func(context.Context, string)) (*Service, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	files := map[string]struct{}{}
	dirSet := map[string]struct{}{}
	dirs := []string{}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		absolute, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve watch path %s: %w", path, err)
		}
		files[absolute] = struct{}{}
		dir := filepath.Dir(absolute)
		if _, ok := dirSet[dir]; !ok {
			dirSet[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		files:    files,
		dirs:     dirs,
		logger:   logger.With("component", "watcher"),
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	for _, dir := range s.dirs {
		if err := s.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch path %s: %w", dir, err)
		}
	}
	s.logger.Info("file watcher started", "dirs", strings.Join(s.dirs, ","))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("file watcher stopped")
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !s.watches(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	s.logger.Info("watched file changed", "path", event.Name, "op", event.Op.String())
	if s.onChange != nil {
		s.onChange(ctx, event.Name)
	}
}

func (s *Service) watches(name string) bool {
	absolute, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	_, ok := s.files[absolute]
	return ok
}
