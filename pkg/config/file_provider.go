package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/polisai/polis-sequence/pkg/domain"
)

const reloadDebounce = 100 * time.Millisecond

// FileProviderConfig holds dependencies for creating a FileProvider.
type FileProviderConfig struct {
	Path string
	// Base is layered under the file's contents. Zero means DefaultEvaluationOptions.
	Base   *PolicyConfig
	Logger *slog.Logger
	// OnReload, when set, is called after every reload attempt with its error.
	OnReload func(err error)
}

// FileProvider serves evaluation options read from a policy file and reloads
// them whenever the file changes.
type FileProvider struct {
	path     string
	base     PolicyConfig
	logger   *slog.Logger
	onReload func(error)

	mu          sync.RWMutex
	current     domain.EvaluationOptions
	subscribers []chan domain.EvaluationOptions
	closed      bool

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFileProvider creates a provider watching cfg.Path. A missing or invalid
// file at startup leaves the base options in place and is logged.
func NewFileProvider(cfg FileProviderConfig) (*FileProvider, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var base PolicyConfig
	if cfg.Base != nil {
		base = *cfg.Base
	}
	current, err := base.Options()
	if err != nil {
		return nil, fmt.Errorf("invalid base policy: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileProvider{
		path:     absPath,
		base:     base,
		logger:   logger,
		onReload: cfg.OnReload,
		current:  current,
		watcher:  watcher,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := p.load(); err != nil {
		logger.Warn("initial policy load failed", "path", absPath, "error", err)
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the latest successfully loaded options.
func (p *FileProvider) Current() domain.EvaluationOptions {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel that receives the current options immediately
// and then every reloaded snapshot. A slow subscriber only sees the latest one.
func (p *FileProvider) Subscribe() <-chan domain.EvaluationOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan domain.EvaluationOptions, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.current
	return ch
}

// Close stops the watcher. Subscriber channels stay open but receive nothing further.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	err := p.watcher.Close()
	<-p.done
	return err
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	defer close(p.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

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
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, p.reload)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("policy watcher error", "error", err)
		}
	}
}

func (p *FileProvider) reload() {
	err := p.load()
	if err != nil {
		p.logger.Error("policy reload failed", "path", p.path, "error", err)
	} else {
		p.logger.Info("policy reloaded", "path", p.path)
	}
	if p.onReload != nil {
		p.onReload(err)
	}
}

func (p *FileProvider) load() error {
	// #nosec G304 -- File path is configured at startup
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}

	file, err := ParsePolicy(data)
	if err != nil {
		return err
	}

	opts, err := p.base.Override(file).Options()
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.current = opts
	subscribers := make([]chan domain.EvaluationOptions, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, ch := range subscribers {
		publish(ch, opts)
	}
	return nil
}

// publish replaces any unread snapshot in ch with opts.
func publish(ch chan domain.EvaluationOptions, opts domain.EvaluationOptions) {
	select {
	case ch <- opts:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- opts:
	default:
	}
}
