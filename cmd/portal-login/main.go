// Command portal-login signs in to VIADOCS from a terminal and stores the
// issued token in a local file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cli/browser"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/authclient"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/config"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/tokenstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &app{
		stdin:        bufio.NewReader(os.Stdin),
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		readPassword: terminalPassword,
		openURL:      browser.OpenURL,
		clock:        loginflow.SystemClock{},
	}
	os.Exit(cli.run(ctx, os.Args[1:]))
}

type app struct {
	stdin        *bufio.Reader
	stdout       io.Writer
	stderr       io.Writer
	readPassword func(prompt string, out io.Writer, in *bufio.Reader) (string, error)
	openURL      func(url string) error
	clock        loginflow.Clock
	configOpts   []config.Option
}

type options struct {
	endpoint  string
	email     string
	tokenFile string
	homeURL   string
	open      bool
}

func (a *app) run(ctx context.Context, args []string) int {
	cfg, err := config.Load(ctx, a.configOpts...)
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: %v\n", err)
		return 1
	}

	opts, err := a.parseFlags(cfg, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger, err := observability.NewLogger(cfg.Log.Level,
		observability.WithService("viadocs-portal-login"),
		observability.WithOutput(zapcore.AddSync(a.stderr)),
	)
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	client, err := authclient.NewClient(opts.endpoint, authclient.WithTimeout(cfg.Auth.Timeout))
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: %v\n", err)
		return 1
	}
	tokens, err := tokenstore.NewFile(opts.tokenFile)
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: %v\n", err)
		return 1
	}

	if opts.email == "" {
		opts.email, err = a.prompt("Email address: ")
		if err != nil {
			fmt.Fprintf(a.stderr, "portal-login: read email: %v\n", err)
			return 1
		}
	}
	password, err := a.readPassword("Password: ", a.stdout, a.stdin)
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: read password: %v\n", err)
		return 1
	}

	arrived := make(chan string, 1)
	navigator := &loginflow.DelayedNavigator{
		Clock: a.clock,
		Navigate: func(destination string) {
			arrived <- destination
		},
	}
	defer navigator.Cancel()

	flow, err := loginflow.New(loginflow.Dependencies{
		Authenticator: client,
		Tokens:        tokens,
		Notifier:      colorNotifier{out: a.stdout},
		Navigator:     navigator,
	},
		loginflow.WithHomePath(opts.homeURL),
		loginflow.WithRedirectDelay(cfg.Flow.RedirectDelay),
		loginflow.WithLogger(logger.Named("loginflow")),
	)
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: %v\n", err)
		return 1
	}
	flow.SetEmail(opts.email)
	flow.SetPassword(password)

	result, err := flow.Submit(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "portal-login: %v\n", err)
		return 1
	}
	if !result.Succeeded() {
		logger.Debug("login failed", zap.String("outcome", result.Outcome.String()), zap.Error(result.Err))
		return 1
	}

	select {
	case destination := <-arrived:
		fmt.Fprintf(a.stdout, "Token saved to %s\n", tokens.Path())
		fmt.Fprintf(a.stdout, "Continue at %s\n", destination)
		if opts.open && a.openURL != nil {
			if err := a.openURL(destination); err != nil {
				logger.Warn("open browser failed", zap.Error(err))
			}
		}
		return 0
	case <-ctx.Done():
		// The token is already stored; only the hand-off was interrupted.
		return 0
	}
}

func (a *app) parseFlags(cfg config.Config, args []string) (options, error) {
	fs := flag.NewFlagSet("portal-login", flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	opts := options{}
	fs.StringVar(&opts.endpoint, "endpoint", cfg.Auth.Endpoint, "auth service login endpoint")
	fs.StringVar(&opts.email, "email", "", "account email (prompted when empty)")
	fs.StringVar(&opts.tokenFile, "token-file", cfg.CLI.TokenFile, "file the token is stored in")
	fs.StringVar(&opts.homeURL, "home-url", defaultHomeURL(cfg), "page announced after sign in")
	fs.BoolVar(&opts.open, "open", cfg.CLI.OpenBrowser, "open the home page in a browser after sign in")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.email = strings.TrimSpace(opts.email)
	return opts, nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.stdout, label)
	line, err := a.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// defaultHomeURL points at the portal served from the configured address.
func defaultHomeURL(cfg config.Config) string {
	host := cfg.Server.Address
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + cfg.Flow.HomePath
}

// terminalPassword reads without echo when stdin is a terminal and falls back
// to a plain line otherwise, e.g. when piped.
func terminalPassword(prompt string, out io.Writer, in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(out, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type colorNotifier struct {
	out io.Writer
}

func (n colorNotifier) Notify(_ context.Context, toast loginflow.Toast) {
	var c *color.Color
	switch toast.Tone {
	case loginflow.ToneSuccess:
		c = color.New(color.FgGreen, color.Bold)
	case loginflow.ToneError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}
	_, _ = c.Fprintln(n.out, toast.Message)
}
