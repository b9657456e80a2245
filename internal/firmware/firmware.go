// Package firmware resolves partition names to firmware images on disk.
// Images are named <partition>.ffff with a <partition>.bin fallback. When
// neither file exists yet, Load can wait for one to appear, since firmware
// is often provisioned asynchronously after the daemon starts.
package firmware

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	ffffExt = ".ffff"
	binExt  = ".bin"

	defaultWait = 30 * time.Second
)

// Loader reads firmware images from a directory.
type Loader struct {
	dir string

	// Wait bounds how long Load blocks for an absent image to appear.
	// Zero disables waiting.
	Wait time.Duration
}

// NewLoader creates a loader over the given firmware directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, Wait: defaultWait}
}

// Load returns the firmware image for the named partition, preferring the
// .ffff extension and falling back to .bin. If neither file exists, Load
// watches the directory for up to Wait before giving up.
func (l *Loader) Load(name string) ([]byte, error) {
	img, err := l.read(name)
	if err == nil {
		return img, nil
	}
	if l.Wait <= 0 {
		return nil, err
	}
	return l.waitAndRead(name, err)
}

func (l *Loader) read(name string) ([]byte, error) {
	for _, ext := range []string{ffffExt, binExt} {
		path := filepath.Join(l.dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("firmware: %s is empty", path)
		}
		slog.Debug("firmware: loaded", "path", path, "size", len(data))
		return data, nil
	}
	return nil, fmt.Errorf("firmware: no image for %q in %s: %w",
		name, l.dir, os.ErrNotExist)
}

// waitAndRead watches the firmware directory until a matching image appears
// or the wait budget runs out.
func (l *Loader) waitAndRead(name string, lastErr error) ([]byte, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Join(lastErr, err)
	}
	defer watcher.Close()
	if err := watcher.Add(l.dir); err != nil {
		return nil, errors.Join(lastErr, err)
	}

	// The image may have landed between the failed read and the watch.
	if img, err := l.read(name); err == nil {
		return img, nil
	}

	wanted := map[string]bool{name + ffffExt: true, name + binExt: true}
	deadline := time.NewTimer(l.Wait)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil, lastErr
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if !wanted[filepath.Base(ev.Name)] {
				continue
			}
			if img, err := l.read(name); err == nil {
				return img, nil
			}
		case err, ok := <-watcher.Errors:
			if ok {
				slog.Warn("firmware: watcher error", "err", err)
			}
		case <-deadline.C:
			return nil, lastErr
		}
	}
}
