// Package rpc drives a preview backend from a stream of notification frames.
//
// A Session owns one ordered byte stream (stdin, a TCP connection, or anything else that reads in
// order), reassembles frames from it and dispatches each call to the backend before looking at the
// next one.  The protocol is fire-and-forget: nothing is written back, and the first failure of any
// kind ends the session.
package rpc

import (
	"context"
	"fmt"
	"io"

	"github.com/swdunlop/html-go/hog"

	"github.com/mdlift/composer-go/composer/frame"
)

// A Backend is the preview server a Session drives.
type Backend interface {
	// Render pushes new markdown content out for display.
	Render(text string) error

	// OpenBrowser opens the platform default viewer on the preview.
	OpenBrowser() error

	// OpenBrowserWith opens the preview using the given browser command.
	OpenBrowserWith(command string) error

	// SetStaticRoot changes the directory static assets are served from.
	SetStaticRoot(path string) error
}

// New returns a Session that decodes frames with the given decoder and applies them to the backend.
func New(decoder frame.Decoder, backend Backend, options ...Option) *Session {
	s := &Session{decoder: decoder, backend: backend, readSize: defaultReadSize}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// An Option adjusts a Session during construction.
type Option func(*Session)

// Browser supplies a browser command that open_browser should launch instead of the platform
// default.
func Browser(command string) Option {
	return func(s *Session) { s.browser = command }
}

// ReadSize adjusts how many bytes the session asks the transport for at a time.  Only interesting
// for tests; decoding depends on buffer contents, never on read boundaries.
func ReadSize(n int) Option {
	return func(s *Session) { s.readSize = n }
}

const defaultReadSize = 4096

// A Session decodes and dispatches calls from one transport stream.
type Session struct {
	decoder  frame.Decoder
	backend  Backend
	browser  string
	readSize int
	buf      []byte
}

// Run consumes r until it ends or a call fails.  A clean end of input with no buffered bytes is a
// normal shutdown; anything left over means the remote hung up mid-frame and is reported as an
// error, as is any malformed frame, unknown or misused command, or backend failure.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	chunk := make([]byte, s.readSize)
	for {
		if err := s.drain(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		switch err {
		case nil:
		case io.EOF:
			if err := s.drain(ctx); err != nil {
				return err
			}
			if len(s.buf) > 0 {
				return fmt.Errorf(`stream ended inside a frame with %d bytes unconsumed`, len(s.buf))
			}
			return nil
		default:
			return fmt.Errorf(`%w while reading stream`, err)
		}
	}
}

// drain dispatches every complete frame already buffered.  The residue after a successful decode is
// retried immediately since frames arrive batched; only ErrIncomplete sends us back to the transport
// for more bytes.
func (s *Session) drain(ctx context.Context) error {
	for {
		call, n, err := s.decoder.Decode(s.buf)
		if err == frame.ErrIncomplete {
			return nil
		}
		if err != nil {
			return fmt.Errorf(`%w while decoding frame`, err)
		}
		s.buf = s.buf[n:]
		if err := s.dispatch(ctx, call); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(ctx context.Context, call frame.Call) error {
	hog.From(ctx).Debug().Str(`method`, call.Method).Int(`params`, len(call.Params)).Msg(`dispatching call`)
	switch call.Method {
	case `send_data`:
		if err := arity(call, 1); err != nil {
			return err
		}
		return s.backend.Render(call.Params[0])
	case `open_browser`:
		if err := arity(call, 0); err != nil {
			return err
		}
		if s.browser != `` {
			return s.backend.OpenBrowserWith(s.browser)
		}
		return s.backend.OpenBrowser()
	case `chdir`:
		if err := arity(call, 1); err != nil {
			return err
		}
		return s.backend.SetStaticRoot(call.Params[0])
	}
	return fmt.Errorf(`received unknown command %q`, call.Method)
}

func arity(call frame.Call, want int) error {
	if len(call.Params) != want {
		return fmt.Errorf(`%s takes %d parameters, received %d`, call.Method, want, len(call.Params))
	}
	return nil
}
