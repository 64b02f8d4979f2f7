package companion

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tally/internal/checksum"
)

const watchDebounce = 200 * time.Millisecond

// Watch observes the document for changes made outside the server (an
// editor, a restore from backup) and publishes data.updated when its
// content actually changed. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, since atomic
// replaces swap the inode. Bursts of events are debounced.
func (s *Server) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	path := s.doc.Path()
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	s.logger.Info("companion: watching document", slog.String("path", path))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			timerC = timer.C
		} else {
			timer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("companion: watcher stopped")
			return nil

		case <-timerC:
			s.checkExternalChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("companion: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// checkExternalChange publishes when the document differs from what the
// server last wrote or observed.
func (s *Server) checkExternalChange() {
	var sum string
	if data, err := s.doc.Read(); err == nil {
		sum = checksum.Sum(data)
	}

	s.mu.Lock()
	changed := sum != s.lastSum
	s.lastSum = sum
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Info("companion: document changed on disk", slog.String("checksum", sum))
	s.publish(sum, "disk")
}
