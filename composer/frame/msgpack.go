package frame

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// MessagePack returns a Decoder for msgpack frames of the form [tag, method, [params...]].
func MessagePack(options ...Option) Decoder {
	dec := new(messagePack)
	dec.cfg.init(options...)
	return dec
}

// AppendMessagePack appends call to b as a msgpack notification frame and returns the extended slice.
func AppendMessagePack(b []byte, call Call) []byte {
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendUint64(b, Notification)
	b = msgp.AppendString(b, call.Method)
	b = msgp.AppendArrayHeader(b, uint32(len(call.Params)))
	for _, p := range call.Params {
		b = msgp.AppendString(b, p)
	}
	return b
}

type messagePack struct {
	cfg config
}

// Decode implements Decoder.  Truncated input surfaces from msgp as ErrShortBytes, which maps to
// ErrIncomplete; any other failure is structural and therefore fatal to the stream.
func (dec *messagePack) Decode(buf []byte) (Call, int, error) {
	sz, rest, err := msgp.ReadArrayHeaderBytes(buf)
	if err != nil {
		return Call{}, 0, classify(err, `frame header`)
	}
	if sz != 3 {
		return Call{}, 0, fmt.Errorf(`frame is a %d element array, expected 3`, sz)
	}
	tag, rest, err := msgp.ReadUint64Bytes(rest)
	if err != nil {
		return Call{}, 0, classify(err, `message type`)
	}
	if err := dec.cfg.checkTag(tag); err != nil {
		return Call{}, 0, err
	}
	var call Call
	call.Method, rest, err = msgp.ReadStringBytes(rest)
	if err != nil {
		return Call{}, 0, classify(err, `method`)
	}
	np, rest, err := msgp.ReadArrayHeaderBytes(rest)
	if err != nil {
		return Call{}, 0, classify(err, `parameter list`)
	}
	if np > 0 {
		call.Params = make([]string, 0, np)
	}
	for i := uint32(0); i < np; i++ {
		var p string
		p, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return Call{}, 0, classify(err, `parameter`)
		}
		call.Params = append(call.Params, p)
	}
	if err := checkCall(call); err != nil {
		return Call{}, 0, err
	}
	return call, len(buf) - len(rest), nil
}

func classify(err error, what string) error {
	if msgp.Cause(err) == msgp.ErrShortBytes {
		return ErrIncomplete
	}
	return fmt.Errorf(`%w while reading %s`, err, what)
}
