// Package www serves the markdown preview: a viewer page, live content updates over SSE and
// WebSockets, and static assets from a directory that can be changed while serving.
package www

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/swdunlop/html-go/hog"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"nhooyr.io/websocket"
)

// New returns a preview server with the given options.
func New(options ...Option) (*Server, error) {
	s := &Server{
		theme: `github`,
		root:  `.`,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
		events: &sse.Server{},
		socks:  make(map[chan []byte]struct{}),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	js := esbuild.Transform(viewerSrc, esbuild.TransformOptions{
		Loader:            esbuild.LoaderJS,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
	})
	if len(js.Errors) > 0 {
		return nil, fmt.Errorf(`%s while building viewer script`, js.Errors[0].Text)
	}
	s.viewerJS = js.Code
	if s.initial != `` {
		if err := s.Render(s.initial); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// An Option affects the construction of a preview server.
type Option func(*Server) error

// HighlightTheme selects the highlight.js theme used by the viewer page.  Defaults to "github".
func HighlightTheme(theme string) Option {
	return func(s *Server) error {
		if theme != `` {
			s.theme = theme
		}
		return nil
	}
}

// CSS adds stylesheet URLs or paths the viewer page should load after the theme.
func CSS(urls ...string) Option {
	return func(s *Server) error {
		s.css = append(s.css, urls...)
		return nil
	}
}

// StaticRoot sets the initial directory static assets are served from.
func StaticRoot(dir string) Option {
	return func(s *Server) error { return s.SetStaticRoot(dir) }
}

// InitialMarkdown renders the given markdown before the first client connects.
func InitialMarkdown(text string) Option {
	return func(s *Server) error {
		s.initial = text
		return nil
	}
}

// ExternalRenderer pipes markdown through the given command instead of the built-in renderer.  The
// command receives markdown on stdin and must write HTML to stdout.
func ExternalRenderer(command string) Option {
	return func(s *Server) error {
		s.renderer = command
		return nil
	}
}

// A Server holds the preview state and implements the HTTP surface of the viewer.
type Server struct {
	theme    string
	css      []string
	initial  string
	renderer string
	markdown goldmark.Markdown
	viewerJS []byte

	mu      sync.RWMutex
	html    string
	root    string
	events  *sse.Server
	socksMu sync.Mutex
	socks   map[chan []byte]struct{}
}

// Render converts markdown to HTML, stores it as the current content and pushes it to every
// connected viewer.
func (s *Server) Render(text string) error {
	html, err := s.renderHTML(text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.html = html
	s.mu.Unlock()
	payload, err := json.Marshal(html)
	if err != nil {
		return err
	}
	return s.publish(`content`, payload)
}

// Reload tells every connected viewer to reload the page, used when static assets change out from
// under the rendered markdown.
func (s *Server) Reload() error {
	return s.publish(`reload`, []byte(`{}`))
}

// SetStaticRoot changes the directory static assets are served from.  The directory must exist.
func (s *Server) SetStaticRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf(`%w while changing static root`, err)
	}
	if !info.IsDir() {
		return fmt.Errorf(`static root %q is not a directory`, dir)
	}
	s.mu.Lock()
	s.root = dir
	s.mu.Unlock()
	return nil
}

// StaticRoot returns the directory static assets are currently served from.
func (s *Server) StaticRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// HTML returns the currently rendered content.
func (s *Server) HTML() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.html
}

// PreviewMux registers the viewer routes, implementing the hook.Mux interface.
func (s *Server) PreviewMux(mux *http.ServeMux) {
	mux.HandleFunc(`GET /{$}`, s.servePage)
	mux.HandleFunc(`GET /viewer.js`, s.serveViewerJS)
	mux.Handle(`GET /events`, s.events)
	mux.HandleFunc(`GET /ws`, s.serveSocket)
	mux.HandleFunc(`GET /`, s.serveStatic)
}

func (s *Server) renderHTML(text string) (string, error) {
	if s.renderer != `` {
		fields := strings.Fields(s.renderer)
		if len(fields) == 0 {
			return ``, fmt.Errorf(`empty external renderer command`)
		}
		cmd := exec.Command(fields[0], fields[1:]...)
		cmd.Stdin = strings.NewReader(text)
		out, err := cmd.Output()
		if err != nil {
			return ``, fmt.Errorf(`%w while running external renderer %q`, err, fields[0])
		}
		return string(out), nil
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return ``, fmt.Errorf(`%w while rendering markdown`, err)
	}
	return buf.String(), nil
}

// publish fans an event out to SSE sessions and websocket clients.  Websocket clients that cannot
// keep up are skipped rather than stalling the dispatch loop.
func (s *Server) publish(event string, data []byte) error {
	msg := &sse.Message{Type: sse.Type(event)}
	msg.AppendData(string(data))
	err := s.events.Publish(msg)

	frame, merr := json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{event, data})
	if merr != nil {
		return merr
	}
	s.socksMu.Lock()
	for ch := range s.socks {
		select {
		case ch <- frame:
		default:
		}
	}
	s.socksMu.Unlock()
	return err
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := viewerPage.Execute(&buf, struct {
		Theme string
		CSS   []string
		HTML  template.HTML
	}{s.theme, s.css, template.HTML(s.HTML())})
	if err != nil {
		hog.For(r).Error().Err(err).Msg(`viewer page error`)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(`Content-Type`, `text/html; charset=utf-8`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) serveViewerJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(`Content-Type`, `text/javascript; charset=utf-8`)
	_, _ = w.Write(s.viewerJS)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	root := s.StaticRoot()
	if root == `` {
		http.NotFound(w, r)
		return
	}
	http.FileServer(http.Dir(root)).ServeHTTP(w, r)
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		hog.For(r).Warn().Err(err).Msg(`websocket accept failed`)
		return
	}
	defer func() { _ = c.CloseNow() }()
	ctx := c.CloseRead(r.Context())

	ch := make(chan []byte, 8)
	s.socksMu.Lock()
	s.socks[ch] = struct{}{}
	s.socksMu.Unlock()
	defer func() {
		s.socksMu.Lock()
		delete(s.socks, ch)
		s.socksMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-ch:
			if err := c.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		}
	}
}

const viewerSrc = `(() => {
	const content = document.getElementById('content');
	const apply = (html) => {
		content.innerHTML = html;
		if (window.hljs) {
			document.querySelectorAll('pre code').forEach((el) => hljs.highlightElement(el));
		}
	};
	const events = new EventSource('/events');
	events.addEventListener('content', (ev) => apply(JSON.parse(ev.data)));
	events.addEventListener('reload', () => location.reload());
})();
`

var viewerPage = template.Must(template.New(`viewer`).Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Markdown Preview</title>
<link rel="stylesheet" href="https://cdnjs.cloudflare.com/ajax/libs/highlight.js/11.9.0/styles/{{.Theme}}.min.css">
{{- range .CSS}}
<link rel="stylesheet" href="{{.}}">
{{- end}}
<script src="https://cdnjs.cloudflare.com/ajax/libs/highlight.js/11.9.0/highlight.min.js"></script>
<script src="/viewer.js" defer></script>
</head>
<body>
<article id="content" class="markdown-body">{{.HTML}}</article>
</body>
</html>
`))
