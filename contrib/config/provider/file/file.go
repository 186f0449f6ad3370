package file

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/nilandasd/httpproxy/contrib/config"
)

var _ config.Source = (*file)(nil)

type file struct {
	path string
}

// NewSource new a file source.
func NewSource(path string) config.Source {
	return &file{path: path}
}

// Load implements config.Source.
func (f *file) Load() ([]*config.KeyValue, error) {
	buf, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	return []*config.KeyValue{
		{
			Key:    f.path,
			Value:  buf,
			Format: format(f.path),
		},
	}, nil
}

// Watch implements config.Source.
func (f *file) Watch() (config.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: editors replace the file on save
	if err := fw.Add(filepath.Dir(f.path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &watcher{f: f, fw: fw, exit: make(chan struct{})}, nil
}

type watcher struct {
	f    *file
	fw   *fsnotify.Watcher
	exit chan struct{}
}

func (w *watcher) Next() ([]*config.KeyValue, error) {
	for {
		select {
		case <-w.exit:
			return nil, os.ErrClosed
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil, os.ErrClosed
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			return w.f.Load()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil, os.ErrClosed
			}
			return nil, err
		}
	}
}

func (w *watcher) Stop() error {
	close(w.exit)
	return w.fw.Close()
}

func format(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "yaml"
	}
	return ext
}
