package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileProvider watches a configuration file and republishes validated
// snapshots to subscribers when it changes. Only runtime tunables (rate
// limits, resilience thresholds, preflight constraints) should be consumed
// from updates; custody credentials are read once at startup and a change
// requires a restart.
type FileProvider struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu          sync.RWMutex
	current     *Config
	subscribers []chan *Config
}

// NewFileProvider loads the file once and starts watching its directory. An
// empty path serves a defaults-plus-environment snapshot with no watcher.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if path == "" {
		cfg, err := Load("")
		if err != nil {
			return nil, err
		}
		return &FileProvider{
			logger:  logger.With("component", "config_provider"),
			cancel:  func() {},
			current: cfg,
		}, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileProvider{
		path:    absPath,
		logger:  logger.With("component", "config_provider"),
		watcher: watcher,
		cancel:  cancel,
		current: cfg,
	}

	// Watch the directory, not the file: editors and config reloaders
	// replace files via rename.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the latest validated snapshot.
func (p *FileProvider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel receiving configuration updates, primed with
// the current snapshot.
func (p *FileProvider) Subscribe() <-chan *Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *Config, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.current
	return ch
}

// Close stops the watcher and cleans up resources.
func (p *FileProvider) Close() error {
	p.cancel()
	if p.watcher == nil {
		return nil
	}
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce bursts of events from a single save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, p.reload)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", "error", err)
		}
	}
}

func (p *FileProvider) reload() {
	cfg, err := Load(p.path)
	if err != nil {
		// Keep the previous good snapshot: operators fix the file and save
		// again.
		p.logger.Error("config reload failed, keeping previous snapshot", "error", err)
		return
	}

	p.mu.Lock()
	p.current = cfg
	subscribers := make([]chan *Config, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	p.logger.Info("configuration reloaded", "path", p.path)

	for _, ch := range subscribers {
		select {
		case ch <- cfg:
		default:
			// Subscriber is lagging; it will pick up Current() eventually.
		}
	}
}
