package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/audio"
)

// Watcher submits recordings and import workbooks dropped into a folder.
type Watcher struct {
	dir      string
	ownerID  string
	category string
	ingestor *Ingestor
	settle   time.Duration
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	log      *logrus.Entry
}

func NewWatcher(dir, ownerID, category string, ingestor *Ingestor, settle time.Duration, log *logrus.Entry) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if settle < 0 {
		settle = 0
	}
	return &Watcher{
		dir:      dir,
		ownerID:  ownerID,
		category: category,
		ingestor: ingestor,
		settle:   settle,
		watcher:  fw,
		log:      log.WithField("component", "inbox"),
	}, nil
}

// Run ingests files already in the folder, then every new one, until ctx is
// done. In-progress ingestions finish before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.WithField("dir", w.dir).Info("inbox watcher started")
	if entries, err := os.ReadDir(w.dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				w.dispatch(ctx, filepath.Join(w.dir, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.Info("inbox watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				w.dispatch(ctx, event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	kind := classify(path)
	if kind == "" {
		w.log.WithField("file", filepath.Base(path)).Debug("ignoring file")
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		// give the writer time to finish
		select {
		case <-time.After(w.settle):
		case <-ctx.Done():
			return
		}
		log := w.log.WithField("file", filepath.Base(path))
		switch kind {
		case "audio":
			if _, err := w.ingestor.IngestFile(ctx, path, w.ownerID, "", w.category); err != nil {
				log.WithError(err).Error("failed to ingest recording")
			}
		case "manifest":
			if _, err := w.ingestor.IngestManifest(ctx, path, w.dir, w.ownerID); err != nil {
				log.WithError(err).Error("failed to import manifest")
				return
			}
			if err := os.Rename(path, path+".imported"); err != nil {
				log.WithError(err).Warn("failed to mark manifest imported")
			}
		}
	}()
}

// classify returns "audio", "manifest" or "" for files the inbox ignores.
func classify(path string) string {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".xlsx":
		return "manifest"
	case audio.IsSupported(ext):
		return "audio"
	default:
		return ""
	}
}
