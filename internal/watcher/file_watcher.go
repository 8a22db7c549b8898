package watcher

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
)

// DoneSuffix appended to an inbox file once it has been handled
const DoneSuffix = ".done"

// FileHandler processes one settled inbox file
type FileHandler func(ctx context.Context, filePath string) error

// FileWatcher debounced fsnotify watcher over a single inbox directory
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	watchDir  string
	pattern   string
	handler   FileHandler
	logger    *logrus.Logger
	debounce  time.Duration
	readyPoll time.Duration

	mu         sync.Mutex
	processing map[string]bool
	timers     map[string]*time.Timer
	stopOnce   sync.Once
	stopChan   chan struct{}
}

func NewFileWatcher(watchDir, pattern string, debounce time.Duration, handler FileHandler, logger *logrus.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}
	if err := w.Add(watchDir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}

	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	logger.WithFields(logrus.Fields{
		"watch_dir": watchDir,
		"pattern":   pattern,
		"debounce":  debounce.String(),
	}).Info("File watcher created")

	return &FileWatcher{
		watcher:    w,
		watchDir:   watchDir,
		pattern:    pattern,
		handler:    handler,
		logger:     logger,
		debounce:   debounce,
		readyPoll:  500 * time.Millisecond,
		processing: make(map[string]bool),
		timers:     make(map[string]*time.Timer),
		stopChan:   make(chan struct{}),
	}, nil
}

// Start picks up files left from a previous run, then follows the directory.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.scanExistingFiles(ctx); err != nil {
		fw.logger.WithError(err).Warn("Failed to scan existing inbox files")
	}
	go fw.eventLoop(ctx)
	fw.logger.Info("File watcher started")
	return nil
}

func (fw *FileWatcher) scanExistingFiles(ctx context.Context) error {
	entries, err := os.ReadDir(fw.watchDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !fw.matchPattern(entry.Name()) {
			continue
		}
		fw.logger.WithField("file", entry.Name()).Info("Found pending inbox file")
		go fw.handleFile(ctx, filepath.Join(fw.watchDir, entry.Name()))
	}
	return nil
}

func (fw *FileWatcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !fw.matchPattern(filepath.Base(event.Name)) {
				continue
			}

			fw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  filepath.Base(event.Name),
			}).Debug("File event detected")
			fw.schedule(ctx, event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.WithError(err).Error("Watcher error")
		}
	}
}

// schedule restarts the debounce timer for path.
func (fw *FileWatcher) schedule(ctx context.Context, path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if t, ok := fw.timers[path]; ok {
		t.Stop()
	}
	fw.timers[path] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		delete(fw.timers, path)
		fw.mu.Unlock()
		fw.handleFile(ctx, path)
	})
}

func (fw *FileWatcher) handleFile(ctx context.Context, path string) {
	fw.mu.Lock()
	if fw.processing[path] {
		fw.mu.Unlock()
		return
	}
	fw.processing[path] = true
	fw.mu.Unlock()

	defer func() {
		fw.mu.Lock()
		delete(fw.processing, path)
		fw.mu.Unlock()
	}()

	log := fw.logger.WithField("file", path)
	if err := fw.waitForFileReady(path); err != nil {
		log.WithError(err).Warn("Inbox file not ready")
		return
	}

	log.Info("Processing inbox file")
	if err := fw.handler(ctx, path); err != nil {
		log.WithError(err).Error("Failed to process inbox file")
		return
	}

	if err := os.Rename(path, path+DoneSuffix); err != nil {
		log.WithError(err).Warn("Failed to mark inbox file as done")
		return
	}
	log.Info("Inbox file processed")
}

// waitForFileReady waits until the file size is non-zero and stable.
func (fw *FileWatcher) waitForFileReady(path string) error {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		info1, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			return err
		}

		time.Sleep(fw.readyPoll)

		info2, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info1.Size() == info2.Size() && info1.Size() > 0 {
			return nil
		}
	}
	return fmt.Errorf("file not ready after %d attempts", maxAttempts)
}

// matchPattern supports "*", "*.ext" and exact names.
func (fw *FileWatcher) matchPattern(name string) bool {
	if fw.pattern == "*" {
		return !strings.HasSuffix(name, DoneSuffix)
	}
	if strings.HasPrefix(fw.pattern, "*.") {
		ext := strings.TrimPrefix(fw.pattern, "*")
		return strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
	}
	return name == fw.pattern
}

func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.logger.Info("Stopping file watcher")
		close(fw.stopChan)

		fw.mu.Lock()
		for _, t := range fw.timers {
			t.Stop()
		}
		fw.mu.Unlock()

		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) WatchDir() string {
	return fw.watchDir
}
