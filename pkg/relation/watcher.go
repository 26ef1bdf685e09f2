package relation

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ManifestWatcher registers manifests written to a directory after startup
type ManifestWatcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// WatchDir watches dir for created or rewritten manifests. Entity types in
// them replace the registered descriptors; plugins that are already registered
// keep their definition, new ones become available.
func (r *Registry) WatchDir(dir string) (*ManifestWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch relation manifest directory %s: %w", dir, err)
	}

	w := &ManifestWatcher{
		registry: r,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	r.log.Infof("Watching relation manifests in %s", dir)
	return w, nil
}

func (w *ManifestWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isManifest(event.Name) {
				continue
			}
			w.registry.reload(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.registry.log.Warnf("Relation manifest watcher error: %v", err)
		}
	}
}

// Close stops watching and waits for a pending reload to finish
func (w *ManifestWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (r *Registry) reload(path string) {
	m, err := LoadManifest(path)
	if err != nil {
		// Editors write in several steps; the final write triggers another event
		r.log.Debugf("Skipping relation manifest %s: %v", path, err)
		return
	}
	for _, et := range m.EntityTypes {
		if err := r.RegisterEntityType(et); err != nil {
			r.log.Warnf("Failed to reload entity type from %s: %v", path, err)
		}
	}
	added := 0
	for _, def := range m.Plugins {
		if r.Has(def.ID) {
			continue
		}
		if err := r.Register(def); err != nil {
			r.log.Warnf("Failed to register relation plugin from %s: %v", path, err)
			continue
		}
		added++
	}
	r.log.Infof("Reloaded relation manifest %s, %d new plugins", path, added)
}
