// Package hook defines interfaces that composer options may implement to take part in setting up the
// preview server.
package hook

import (
	"context"
	"net"
	"net/http"
)

// Listen hooks provide the listener the preview server accepts viewers on.  At most one may be
// configured; without one the server listens on an ephemeral loopback TCP port.
type Listen interface {
	Listen(ctx context.Context) (net.Listener, error)
}

// Mux hooks are called when the preview server is setting up its HTTP multiplexer.
type Mux interface {
	PreviewMux(*http.ServeMux)
}

// Server hooks are called when the preview server is setting up its HTTP server.
type Server interface {
	PreviewServer(*http.Server)
}
