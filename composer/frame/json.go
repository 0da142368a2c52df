package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// JSON returns a Decoder for JSON frames of the form [tag, {"method": ..., "params": [...]}].
//
// This is the shape JSON-RPC clients produce for this protocol: the tag takes the place of the
// request ID and the envelope carries the method and parameters.
func JSON(options ...Option) Decoder {
	dec := new(jsonText)
	dec.cfg.init(options...)
	return dec
}

// AppendJSON appends call to b as a JSON notification frame and returns the extended slice.
func AppendJSON(b []byte, call Call) []byte {
	body, err := json.Marshal(jsonEnvelope{Method: call.Method, Params: call.Params})
	if err != nil {
		panic(err) // strings always marshal
	}
	b = append(b, fmt.Sprintf(`[%d,`, Notification)...)
	b = append(b, body...)
	return append(b, ']')
}

type jsonEnvelope struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type jsonText struct {
	cfg config
}

// Decode implements Decoder.  The attempt runs an incremental json.Decoder over the buffer so that
// the consumed byte count comes from InputOffset rather than re-tokenizing; an unexpected end of
// input means the frame is merely truncated and maps to ErrIncomplete.
func (dec *jsonText) Decode(buf []byte) (Call, int, error) {
	jd := json.NewDecoder(bytes.NewReader(buf))
	var raw []json.RawMessage
	err := jd.Decode(&raw)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Call{}, 0, ErrIncomplete
	default:
		return Call{}, 0, fmt.Errorf(`%w while reading frame`, err)
	}
	if len(raw) != 2 {
		return Call{}, 0, fmt.Errorf(`frame is a %d element array, expected 2`, len(raw))
	}
	var tag uint64
	if err := json.Unmarshal(raw[0], &tag); err != nil {
		return Call{}, 0, fmt.Errorf(`%w while reading message type`, err)
	}
	if err := dec.cfg.checkTag(tag); err != nil {
		return Call{}, 0, err
	}
	var env jsonEnvelope
	if err := json.Unmarshal(raw[1], &env); err != nil {
		return Call{}, 0, fmt.Errorf(`%w while reading call envelope`, err)
	}
	call := Call{Method: env.Method, Params: env.Params}
	if err := checkCall(call); err != nil {
		return Call{}, 0, err
	}
	return call, int(jd.InputOffset()), nil
}
