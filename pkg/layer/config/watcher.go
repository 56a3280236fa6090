/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	logutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/logging"
)

// Source provides the settings a new Context is created with.
type Source interface {
	Current() *Settings
}

// Static is a Source that never changes.
type Static struct {
	settings *Settings
}

func NewStatic(s *Settings) *Static {
	return &Static{settings: s}
}

func (s *Static) Current() *Settings { return s.settings }

// Watcher is a Source backed by a settings file. It reloads the file when it changes and
// publishes the new snapshot atomically. A file that fails to parse leaves the previous
// snapshot in place.
type Watcher struct {
	path    string
	logger  logr.Logger
	current atomic.Pointer[Settings]
	// reloaded is signaled after every reload attempt; tests wait on it.
	reloaded chan struct{}
}

// NewWatcher loads path once and returns a watcher publishing it.
func NewWatcher(path string, logger logr.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve settings path %s - %w", path, err)
	}
	w := &Watcher{path: abs, logger: logger, reloaded: make(chan struct{}, 1)}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Current() *Settings {
	return w.current.Load()
}

func (w *Watcher) reload() error {
	s, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.current.Store(ApplyEnv(s, w.logger))
	return nil
}

// Start watches the settings file until ctx is done. The directory is watched rather than the
// file so editors that replace the file by rename are followed.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher - %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s - %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("Watching settings file", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.V(logutil.DEFAULT).Info("Stopping settings watcher")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.Error(err, "Failed to reload settings, keeping previous snapshot", "path", w.path)
			} else {
				w.logger.Info("Reloaded settings", "path", w.path)
			}
			select {
			case w.reloaded <- struct{}{}:
			default:
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err, "Settings watcher error")
		}
	}
}
