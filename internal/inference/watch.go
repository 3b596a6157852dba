package inference

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Watch keeps the set in step with the <label>.bin files in dir until ctx
// is done. Files are read through fs; change notifications come from the
// operating system, so dir must be a real directory.
func (s *InputSet) Watch(ctx context.Context, fs afero.Fs, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.handleEvent(fs, ev)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				infLog.Warnf("Input watcher: %v", err)
			}
		}
	}()
	infLog.Infof("Watching %s for input changes", dir)
	return nil
}

func (s *InputSet) handleEvent(fs afero.Fs, ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != ".bin" {
		return
	}
	label := strings.TrimSuffix(filepath.Base(ev.Name), ".bin")

	switch {
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		data, err := afero.ReadFile(fs, ev.Name)
		if err != nil {
			// Removed again before we got to it.
			if !errors.Is(err, afero.ErrFileNotFound) {
				infLog.Warnf("Reloading input %s: %v", label, err)
			}
			return
		}
		if err := s.Put(label, data); err != nil {
			// Editors write in several steps; the final write will fit.
			infLog.Debugf("Skipping input %s: %v", label, err)
			return
		}
		infLog.Infof("Reloaded input %s", label)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if s.Delete(label) {
			infLog.Infof("Unloaded input %s", label)
		}
	}
}
