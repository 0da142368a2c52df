// Package composer assembles a live markdown preview: an HTTP server for viewers, the rendering
// state behind it, and an optional watch over the served directory.  The resulting Preview handle
// implements the backend contract the rpc package dispatches against.
package composer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/swdunlop/html-go/hog"
	"golang.org/x/time/rate"

	"github.com/mdlift/composer-go/composer/browser"
	"github.com/mdlift/composer-go/composer/hook"
	"github.com/mdlift/composer-go/composer/watcher"
	"github.com/mdlift/composer-go/composer/www"
)

// New returns a new preview configuration.
func New(options ...Option) (*Config, error) {
	cfg := new(Config)
	err := cfg.Apply(options...)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// A Config describes a preview before it starts.
type Config struct {
	started bool
	hooks   []any
	viewer  []www.Option
	watch   bool
	watches []watcher.Option
}

// An Option is a function that modifies a Config before it is started.
type Option func(*Config) error

// Viewer applies options to the viewer server, such as the highlight theme or the initial markdown.
func Viewer(options ...www.Option) Option {
	return func(cfg *Config) error {
		cfg.viewer = append(cfg.viewer, options...)
		return nil
	}
}

// Watch tells the preview to watch the static root and reload viewers when assets change.
func Watch(options ...watcher.Option) Option {
	return func(cfg *Config) error {
		cfg.watch = true
		cfg.watches = append(cfg.watches, options...)
		return nil
	}
}

// Hook adds hooks to the configuration, see the hook package for interfaces that hooks can
// implement.  This is normally done by various options.
func (cfg *Config) Hook(hooks ...any) {
	cfg.hooks = append(cfg.hooks, hooks...)
}

// Apply applies the given options to the config; should not be called after Start.
func (cfg *Config) Apply(options ...Option) error {
	if cfg.started {
		return fmt.Errorf(`cannot apply options after the preview has started`)
	}
	for _, option := range options {
		err := option(cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// Start builds the viewer, binds the listener and begins serving.  The returned Preview is live
// until the context is cancelled or Shutdown is called.
func (cfg *Config) Start(ctx context.Context) (*Preview, error) {
	cfg.started = true

	viewer, err := www.New(cfg.viewer...)
	if err != nil {
		return nil, err
	}

	var mux http.ServeMux
	viewer.PreviewMux(&mux)
	for _, it := range cfg.hooks {
		if impl, ok := it.(hook.Mux); ok {
			impl.PreviewMux(&mux)
		}
	}

	var svr http.Server
	svr.Handler = &mux
	for _, it := range cfg.hooks {
		if impl, ok := it.(hook.Server); ok {
			impl.PreviewServer(&svr)
		}
	}

	lr, err := cfg.listen(ctx)
	if err != nil {
		return nil, err
	}

	p := &Preview{Server: viewer, addr: lr.Addr(), done: make(chan struct{})}
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		_ = svr.Shutdown(context.Background())
	}()
	go func() {
		defer close(p.done)
		hog.From(ctx).Info().Stringer(`address`, p.addr).Msg(`serving preview`)
		err := svr.Serve(lr)
		if err != http.ErrServerClosed {
			p.err = err
		}
	}()

	if cfg.watch {
		err = cfg.startWatch(ctx, viewer)
		if err != nil {
			p.cancel()
			return nil, err
		}
	}
	return p, nil
}

func (cfg *Config) listen(ctx context.Context) (net.Listener, error) {
	for _, it := range cfg.hooks {
		if impl, ok := it.(hook.Listen); ok {
			return impl.Listen(ctx)
		}
	}
	var lcf net.ListenConfig
	return lcf.Listen(ctx, `tcp`, `127.0.0.1:0`)
}

// reloadDebounce coalesces bursts of file change alerts into one viewer reload.
const reloadDebounce = 250 * time.Millisecond

// TODO: restart the watch when chdir moves the static root; today the initial root stays watched.
func (cfg *Config) startWatch(ctx context.Context, viewer *www.Server) error {
	w, err := watcher.Start(viewer.StaticRoot(), cfg.watches...)
	if err != nil {
		return err
	}
	limiter := rate.NewLimiter(rate.Every(reloadDebounce), 1)
	go func() {
		defer w.Shutdown()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.Alert():
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := viewer.Reload(); err != nil {
				hog.From(ctx).Warn().Err(err).Msg(`reload broadcast failed`)
			}
		}
	}()
	return nil
}

// A Preview is a running preview server.  It implements the rpc.Backend contract: rendering and the
// static root are handled by the embedded viewer server, while the browser operations point a local
// browser at the bound address.
type Preview struct {
	*www.Server
	addr   net.Addr
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Addr returns the address the preview is serving on.
func (p *Preview) Addr() net.Addr { return p.addr }

// URL returns the address viewers should open.
func (p *Preview) URL() string { return fmt.Sprintf(`http://%s`, p.addr) }

// OpenBrowser opens the preview in the platform default browser.
func (p *Preview) OpenBrowser() error { return browser.Open(p.URL()) }

// OpenBrowserWith opens the preview with the given browser command.
func (p *Preview) OpenBrowserWith(command string) error { return browser.OpenWith(command, p.URL()) }

// Done returns a channel that is closed once the preview has stopped serving.
func (p *Preview) Done() <-chan struct{} { return p.done }

// Err reports why serving stopped, if it stopped for any reason other than shutdown.
func (p *Preview) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Shutdown stops the preview and waits for it to finish, returning any serve error.
func (p *Preview) Shutdown() error {
	p.cancel()
	<-p.done
	return p.err
}
