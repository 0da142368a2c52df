package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
	"golang.org/x/sync/errgroup"

	"github.com/mdlift/composer-go/composer"
	"github.com/mdlift/composer-go/composer/frame"
	"github.com/mdlift/composer-go/composer/local"
	"github.com/mdlift/composer-go/composer/rpc"
	"github.com/mdlift/composer-go/composer/tailscale"
	"github.com/mdlift/composer-go/composer/www"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "serve", Use: "Serves a live markdown preview driven by RPC notifications", Fn: runServe, Parser: parser.New(
			parser.String(&browserCmd, "browser", "b", "Browser command to open instead of the platform default"),
			parser.String(&theme, "highlight-theme", "t", "The highlight.js theme for code blocks (default: github)"),
			parser.String(&customCSS, "custom-css", "c", "Comma separated stylesheet URLs for the rendered markdown"),
			parser.String(&rendererCmd, "renderer", "r", "External command that renders markdown from stdin to HTML on stdout"),
			parser.String(&format, "format", "f", "RPC frame format, \"msgpack\" or \"json\" (default: msgpack)"),
			parser.String(&workingDir, "working-directory", "d", "The directory static files are served out of"),
			parser.String(&configPath, "config", "C", "Path to a TOML file with defaults for these flags"),
		), Settings: zugzug.Settings{
			{Var: &noAutoOpen, Name: `NO_AUTO_OPEN`,
				Use: "Don't open the web browser automatically"},
			{Var: &watchAssets, Name: `WATCH`,
				Use: "Reload viewers when files under the static root change"},
			{Var: &rpcListen, Name: `RPC_LISTEN`,
				Use: "Accept RPC over TCP at this address instead of stdin; the bound port is printed to stdout"},

			{Var: &listenNetwork, Name: `LISTEN_NETWORK`,
				Use: "Listening network for the viewer address (default: \"tcp\")"},
			{Var: &listenAddress, Name: `LISTEN_ADDRESS`,
				Use: "Listening address for viewers (default: an ephemeral loopback port)"},

			{Var: &tailscaleHostname, Name: `TAILSCALE_HOSTNAME`,
				Use: "Specifies the hostname on your Tailscale network"},
			{Var: &tailscaleFunnel, Name: `TAILSCALE_FUNNEL`,
				Use: "Enables internet access via a Tailscale funnel"},
			{Var: &tailscaleListen, Name: `TAILSCALE_LISTEN`,
				Use: "Listening address for viewers from your Tailscale network (default: \":443\" or \":80\")"},
			{Var: &tailscaleDir, Name: `TAILSCALE_DIR`,
				Use: "State directory for Tailscale"},
			{Var: &noTailscaleTLS, Name: `NO_TAILSCALE_TLS`,
				Use: "Disables TLS for Tailscale"},
		}},
	}...)
}

func runServe(ctx context.Context) error {
	if err := applyFileConfig(configPath); err != nil {
		return err
	}
	if format == `` {
		format = `msgpack`
	}
	decoder, err := frame.New(format)
	if err != nil {
		return err
	}

	viewerOptions := []www.Option{www.HighlightTheme(theme)}
	for _, url := range strings.Split(customCSS, `,`) {
		if url = strings.TrimSpace(url); url != `` {
			viewerOptions = append(viewerOptions, www.CSS(url))
		}
	}
	if workingDir != `` {
		viewerOptions = append(viewerOptions, www.StaticRoot(workingDir))
	}
	if rendererCmd != `` {
		viewerOptions = append(viewerOptions, www.ExternalRenderer(rendererCmd))
	}
	if args := parser.Args(ctx); len(args) > 0 {
		initial, err := os.ReadFile(args[0])
		if err != nil {
			return errors.WithStack(err)
		}
		viewerOptions = append(viewerOptions, www.InitialMarkdown(string(initial)))
	}

	options := []composer.Option{composer.Viewer(viewerOptions...)}
	if watchAssets {
		options = append(options, composer.Watch())
	}
	listenOption, err := listenOptions()
	if err != nil {
		return err
	}
	options = append(options, listenOption...)

	cfg, err := composer.New(options...)
	if err != nil {
		return err
	}
	p, err := cfg.Start(ctx)
	if err != nil {
		return err
	}

	if !noAutoOpen {
		if browserCmd != `` {
			err = p.OpenBrowserWith(browserCmd)
		} else {
			err = p.OpenBrowser()
		}
		if err != nil {
			_ = p.Shutdown()
			return err
		}
	}

	var group errgroup.Group
	group.Go(func() error { <-p.Done(); return p.Err() })
	group.Go(func() error {
		defer func() { _ = p.Shutdown() }()
		if rpcListen != `` {
			return serveRPC(ctx, rpcListen, decoder, p)
		}
		session := rpc.New(decoder, p, rpc.Browser(browserCmd))
		return errors.WithStack(session.Run(ctx, os.Stdin))
	})
	return group.Wait()
}

// serveRPC accepts RPC connections one at a time, the way an editor plugin drives this tool: it
// binds, learns the port from stdout and reconnects as needed.  Sessions run strictly one after
// another; a clean hangup moves on to the next connection, any session failure is fatal.
func serveRPC(ctx context.Context, address string, decoder frame.Decoder, backend rpc.Backend) error {
	var lcf net.ListenConfig
	lr, err := lcf.Listen(ctx, `tcp`, address)
	if err != nil {
		return errors.WithStack(err)
	}
	defer lr.Close()
	go func() {
		<-ctx.Done()
		_ = lr.Close()
	}()

	_, port, err := net.SplitHostPort(lr.Addr().String())
	if err != nil {
		return errors.WithStack(err)
	}
	hog.From(ctx).Info().Stringer(`address`, lr.Addr()).Msg(`listening for RPC connections`)
	fmt.Println(port)

	for {
		conn, err := lr.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithStack(err)
		}
		hog.From(ctx).Info().Stringer(`remote`, conn.RemoteAddr()).Msg(`RPC connection accepted`)
		session := rpc.New(decoder, backend, rpc.Browser(browserCmd))
		err = session.Run(ctx, conn)
		_ = conn.Close()
		if err != nil {
			return errors.WithStack(err)
		}
	}
}

func listenOptions() ([]composer.Option, error) {
	var tailscaleOptions []tailscale.Option
	useTailscale := false
	if tailscaleFunnel {
		if noTailscaleTLS {
			return nil, errors.New("Tailscale funnel requires TLS")
		}
		if tailscaleListen != `` {
			return nil, errors.New("You cannot combine TAILSCALE_FUNNEL with TAILSCALE_LISTEN")
		}
		tailscaleListen = `:443`
		useTailscale = true
		tailscaleOptions = append(tailscaleOptions, tailscale.Funnel())
	} else if tailscaleListen != `` {
		useTailscale = true
	}
	if tailscaleHostname != `` {
		useTailscale = true
		tailscaleOptions = append(tailscaleOptions, tailscale.Hostname(tailscaleHostname))
	}
	if useTailscale {
		if noTailscaleTLS {
			if tailscaleListen == `` {
				tailscaleListen = `:80`
			}
			tailscaleOptions = append(tailscaleOptions, tailscale.NoTLS())
		} else if tailscaleListen == `` {
			tailscaleListen = `:443`
		}
		if tailscaleDir != `` {
			tailscaleOptions = append(tailscaleOptions, tailscale.Dir(tailscaleDir))
		}
		return []composer.Option{tailscale.Preview(tailscaleListen, tailscaleOptions...)}, nil
	}

	if listenAddress == `` {
		return nil, nil // composer defaults to an ephemeral loopback port
	}
	if listenNetwork == `` {
		listenNetwork = `tcp`
	}
	return []composer.Option{local.Preview(local.Listen(listenNetwork, listenAddress))}, nil
}

var (
	browserCmd  string
	theme       string
	customCSS   string
	rendererCmd string
	format      string
	workingDir  string
	configPath  string

	noAutoOpen  bool
	watchAssets bool
	rpcListen   string

	listenNetwork string
	listenAddress string

	tailscaleFunnel   bool
	tailscaleHostname string
	tailscaleListen   string
	tailscaleDir      string
	noTailscaleTLS    bool
)
