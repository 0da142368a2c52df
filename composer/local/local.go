// Package local provides network listeners for serving the preview on the local host.
package local

import (
	"context"
	"net"
	"time"

	"github.com/mdlift/composer-go/composer"
	"github.com/mdlift/composer-go/composer/hook"
)

// Preview returns a composer.Option that configures a network listener.
func Preview(options ...Option) composer.Option {
	return func(c *composer.Config) error {
		var cfg config
		for _, option := range options {
			err := option(&cfg)
			if err != nil {
				return err
			}
		}
		c.Hook(&cfg)
		return nil
	}
}

// An Option is a function that configures a local listener.
type Option func(*config) error

// TCP returns an Option that sets the listener to a TCP socket on the provided address.
func TCP(address string) Option {
	return Listen(`tcp`, address)
}

// Unix returns an Option that sets the listener to a Unix socket on the provided path.
func Unix(path string) Option {
	return Listen(`unix`, path)
}

// Listen returns an Option that sets the listener to the provided network and address.
func Listen(network, address string) Option {
	return func(cfg *config) error {
		cfg.listen.network = network
		cfg.listen.address = address
		return nil
	}
}

// KeepAlive specifies the keepalive duration for connections accepted by the listener.
func KeepAlive(keepalive time.Duration) Option {
	return func(cfg *config) error {
		cfg.listen.config.KeepAlive = keepalive
		return nil
	}
}

type config struct {
	listen struct {
		network string
		address string
		config  net.ListenConfig
	}
}

// Listen implements hook.Listen by returning a net.Listener for the configured network and address.
func (cfg *config) Listen(ctx context.Context) (net.Listener, error) {
	return cfg.listen.config.Listen(ctx, cfg.listen.network, cfg.listen.address)
}

var _ hook.Listen = (*config)(nil)
