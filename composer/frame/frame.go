// Package frame decodes notification frames from a byte stream that may arrive in arbitrary fragments.
//
// A frame is a tuple of a numeric tag, a method name and a list of string parameters.  Decoders work
// against the front of a caller-owned buffer and never consume bytes unless a complete frame was found,
// so a partial read leaves the buffer ready to be retried once more bytes arrive.
package frame

import (
	"errors"
	"fmt"
)

// Notification is the msgpack-rpc message type for one-way calls that expect no reply.
const Notification = 2

// ErrIncomplete is returned by a Decoder when the buffer holds a valid prefix of a frame but not all
// of it.  The buffer is left untouched and the caller should retry after appending more bytes.  Any
// other decode error means the stream cannot be a valid frame sequence no matter what arrives next.
var ErrIncomplete = errors.New(`incomplete frame`)

// A Call is one decoded invocation: a method name and its positional string parameters.
type Call struct {
	Method string
	Params []string
}

// A Decoder extracts one Call from the front of buf, returning the number of bytes the frame occupied.
// Bytes after the frame are left for the next attempt, since frames can arrive batched.  Implementations
// only examine buf and never retain it.
type Decoder interface {
	Decode(buf []byte) (call Call, n int, err error)
}

// New returns the decoder for the named format, either "msgpack" or "json".
func New(format string, options ...Option) (Decoder, error) {
	switch format {
	case `msgpack`:
		return MessagePack(options...), nil
	case `json`:
		return JSON(options...), nil
	}
	return nil, fmt.Errorf(`unsupported frame format %q`, format)
}

// An Option affects how a decoder treats frames.
type Option func(*config)

// Strict requires the leading tag of each frame to be the msgpack-rpc notification type.  Without it
// the tag is decoded but not interpreted.
func Strict() Option {
	return func(cfg *config) { cfg.strict = true }
}

type config struct {
	strict bool
}

func (cfg *config) init(options ...Option) {
	for _, opt := range options {
		opt(cfg)
	}
}

func (cfg *config) checkTag(tag uint64) error {
	if cfg.strict && tag != Notification {
		return fmt.Errorf(`unexpected message type %d, expected notification (%d)`, tag, Notification)
	}
	return nil
}

func checkCall(call Call) error {
	if call.Method == `` {
		return errors.New(`frame has an empty method name`)
	}
	return nil
}
