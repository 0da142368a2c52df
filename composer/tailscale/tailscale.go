// Package tailscale serves the preview to other machines on a tailnet instead of the local host.
package tailscale

import (
	"context"
	"errors"
	"net"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/mdlift/composer-go/composer"
	"github.com/mdlift/composer-go/composer/hook"
)

// Preview returns a composer.Option that accepts viewers from your Tailscale network.
func Preview(address string, options ...Option) composer.Option {
	return func(c *composer.Config) error {
		var cfg config
		cfg.listen = address
		for _, option := range options {
			err := option(&cfg)
			if err != nil {
				return err
			}
		}
		if cfg.funnel && cfg.noTLS {
			return errors.New(`funnels are required to use TLS by Tailscale`)
		}
		c.Hook(&cfg)
		return nil
	}
}

type config struct {
	tsnet   tsnet.Server
	funnel  bool
	noTLS   bool
	upHooks []func(*tsnet.Server, *ipnstate.Status) error
	listen  string
}

func (cfg *config) Listen(ctx context.Context) (net.Listener, error) {
	status, err := cfg.tsnet.Up(ctx)
	if err != nil {
		return nil, err
	}
	for _, fn := range cfg.upHooks {
		err = fn(&cfg.tsnet, status)
		if err != nil {
			_ = cfg.tsnet.Close()
			return nil, err
		}
	}
	switch {
	case cfg.funnel:
		return cfg.tsnet.ListenFunnel(`tcp`, cfg.listen)
	case cfg.noTLS:
		return cfg.tsnet.Listen(`tcp`, cfg.listen)
	default:
		return cfg.tsnet.ListenTLS(`tcp`, cfg.listen)
	}
}

var _ hook.Listen = (*config)(nil)

type Option func(*config) error

// Dir specifies the state directory for Tailscale.
func Dir(dir string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Dir = dir
		return nil
	}
}

// Hostname specifies the name of your Tailscale host.  Defaults to the system hostname.
func Hostname(hostname string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Hostname = hostname
		return nil
	}
}

// Funnel tells Tailscale to allow public IPs to connect to your preview.
func Funnel() Option {
	return func(cfg *config) error {
		cfg.funnel = true
		return nil
	}
}

// NoTLS tells Tailscale to not use TLS.  This is incompatible with Funnel.
func NoTLS() Option {
	return func(cfg *config) error {
		cfg.noTLS = true
		return nil
	}
}

// Logf sets the logging function for the Tailscale server.  Tailscale is EXTREMELY chatty.
// The default is to log to the standard logger.
func Logf(f func(format string, args ...interface{})) Option {
	return func(cfg *config) error {
		cfg.tsnet.Logf = f
		return nil
	}
}

// HookUp adds a function that will be called when the Tailscale connection is established and
// authorized, which is useful for learning the FQDN viewers should use.
func HookUp(fn func(*tsnet.Server, *ipnstate.Status) error) Option {
	return func(cfg *config) error {
		cfg.upHooks = append(cfg.upHooks, fn)
		return nil
	}
}
