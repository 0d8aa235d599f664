package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// CookieToggler is notified when the cookies file appears or disappears.
type CookieToggler interface {
	SetCookiesAvailable(bool)
}

// CookieWatcher keeps a resolver informed about the presence of its cookies
// file so that cookies can be exported while the bot is running.
type CookieWatcher struct {
	path    string
	target  CookieToggler
	watcher *fsnotify.Watcher

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// WatchCookies starts watching the directory that holds path.
func WatchCookies(path string, target CookieToggler) (*CookieWatcher, error) {
	if path == "" {
		return nil, errors.New("no cookies path configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cookies path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookies watcher: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Debug("fsnotify watching dir", "dir", dir)

	w := &CookieWatcher{
		path:    abs,
		target:  target,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	target.SetCookiesAvailable(fileExists(abs))

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *CookieWatcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)

			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				w.target.SetCookiesAvailable(true)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.target.SetCookiesAvailable(fileExists(w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Debug("fsnotify error", "file", w.path, "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops watching.
func (w *CookieWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
