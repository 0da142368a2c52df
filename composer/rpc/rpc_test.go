package rpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/mdlift/composer-go/composer/frame"
)

// recorder implements Backend and remembers every invocation in order.
type recorder struct {
	ops  []string
	fail error
}

func (r *recorder) Render(text string) error { return r.record(`render:` + text) }

func (r *recorder) OpenBrowser() error { return r.record(`open`) }

func (r *recorder) OpenBrowserWith(c string) error { return r.record(`open:` + c) }

func (r *recorder) SetStaticRoot(p string) error { return r.record(`chdir:` + p) }

func (r *recorder) record(op string) error {
	if r.fail != nil {
		return r.fail
	}
	r.ops = append(r.ops, op)
	return nil
}

// chunkReader hands out the stream in fixed size pieces to exercise reassembly.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func encode(t *testing.T, calls ...frame.Call) []byte {
	t.Helper()
	var buf []byte
	for _, call := range calls {
		buf = frame.AppendMessagePack(buf, call)
	}
	return buf
}

func TestBasicSend(t *testing.T) {
	stream := encode(t, frame.Call{Method: `send_data`, Params: []string{"Hello, world!"}})
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{`render:Hello, world!`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}
}

func TestChunkInvariance(t *testing.T) {
	stream := encode(t,
		frame.Call{Method: `chdir`, Params: []string{`/tmp/docs`}},
		frame.Call{Method: `send_data`, Params: []string{`# Title`}},
		frame.Call{Method: `open_browser`},
	)
	var reference []string
	for size := 1; size <= len(stream); size++ {
		backend := new(recorder)
		session := New(frame.MessagePack(), backend, ReadSize(size))
		err := session.Run(context.Background(), &chunkReader{data: stream, size: size})
		if err != nil {
			t.Fatalf(`chunk size %d: %v`, size, err)
		}
		if reference == nil {
			reference = backend.ops
			continue
		}
		if !reflect.DeepEqual(backend.ops, reference) {
			t.Fatalf(`chunk size %d: backend saw %v, want %v`, size, backend.ops, reference)
		}
	}
	if want := []string{`chdir:/tmp/docs`, `render:# Title`, `open`}; !reflect.DeepEqual(reference, want) {
		t.Fatalf(`backend saw %v, want %v`, reference, want)
	}
}

func TestSplitFrame(t *testing.T) {
	stream := encode(t, frame.Call{Method: `send_data`, Params: []string{"Hello, world!"}})
	cut := len(stream) / 2
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), io.MultiReader(
		bytes.NewReader(stream[:cut]),
		bytes.NewReader(stream[cut:]),
	))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{`render:Hello, world!`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}
}

func TestChdirThenSend(t *testing.T) {
	stream := encode(t,
		frame.Call{Method: `chdir`, Params: []string{`/tmp/docs`}},
		frame.Call{Method: `send_data`, Params: []string{`# Title`}},
	)
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{`chdir:/tmp/docs`, `render:# Title`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}
}

func TestBrowserOverride(t *testing.T) {
	stream := encode(t, frame.Call{Method: `open_browser`})

	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{`open`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}

	backend = new(recorder)
	err = New(frame.MessagePack(), backend, Browser(`firefox --private-window`)).
		Run(context.Background(), bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{`open:firefox --private-window`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}
}

func TestUnknownCommand(t *testing.T) {
	stream := encode(t, frame.Call{Method: `self_destruct`})
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err == nil {
		t.Fatal(`expected an error for an unknown command`)
	}
	if len(backend.ops) != 0 {
		t.Fatalf(`backend saw %v for an unknown command`, backend.ops)
	}
}

func TestArityMismatch(t *testing.T) {
	cases := []frame.Call{
		{Method: `send_data`},
		{Method: `send_data`, Params: []string{`a`, `b`}},
		{Method: `open_browser`, Params: []string{`a`}},
		{Method: `chdir`},
	}
	for _, call := range cases {
		backend := new(recorder)
		err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(encode(t, call)))
		if err == nil {
			t.Errorf(`%s with %d params: expected an error`, call.Method, len(call.Params))
		}
		if len(backend.ops) != 0 {
			t.Errorf(`%s with %d params: backend saw %v`, call.Method, len(call.Params), backend.ops)
		}
	}
}

func TestBackendError(t *testing.T) {
	stream := encode(t, frame.Call{Method: `send_data`, Params: []string{`hi`}})
	backend := &recorder{fail: errors.New(`renderer exploded`)}
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err == nil || !errors.Is(err, backend.fail) {
		t.Fatalf(`err = %v, want the backend error`, err)
	}
}

func TestCleanShutdown(t *testing.T) {
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(backend.ops) != 0 {
		t.Fatalf(`backend saw %v from an empty stream`, backend.ops)
	}
}

func TestTruncatedStream(t *testing.T) {
	stream := encode(t, frame.Call{Method: `send_data`, Params: []string{`hello`}})
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream[:len(stream)-2]))
	if err == nil {
		t.Fatal(`expected an error for a stream that ends inside a frame`)
	}
	if len(backend.ops) != 0 {
		t.Fatalf(`backend saw %v from a truncated stream`, backend.ops)
	}
}

func TestMalformedStream(t *testing.T) {
	backend := new(recorder)
	stream := []byte{0x91, 0x01} // a one element array can never become a call frame
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err == nil {
		t.Fatal(`expected an error for a malformed stream`)
	}
	if len(backend.ops) != 0 {
		t.Fatalf(`backend saw %v from a malformed stream`, backend.ops)
	}
}

func TestDispatchStopsAtFirstFailure(t *testing.T) {
	stream := encode(t,
		frame.Call{Method: `send_data`, Params: []string{`one`}},
		frame.Call{Method: `bogus`},
		frame.Call{Method: `send_data`, Params: []string{`two`}},
	)
	backend := new(recorder)
	err := New(frame.MessagePack(), backend).Run(context.Background(), bytes.NewReader(stream))
	if err == nil {
		t.Fatal(`expected an error`)
	}
	if want := []string{`render:one`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}
}

func TestJSONSession(t *testing.T) {
	var stream []byte
	stream = frame.AppendJSON(stream, frame.Call{Method: `chdir`, Params: []string{`/srv/docs`}})
	stream = frame.AppendJSON(stream, frame.Call{Method: `send_data`, Params: []string{`hello`}})
	backend := new(recorder)
	err := New(frame.JSON(), backend).Run(context.Background(), &chunkReader{data: stream, size: 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{`chdir:/srv/docs`, `render:hello`}; !reflect.DeepEqual(backend.ops, want) {
		t.Fatalf(`backend saw %v, want %v`, backend.ops, want)
	}
}
