package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// Options configures credential acquisition.
type Options struct {
	// ClientSecretJSON is the OAuth client secret downloaded from the Google console.
	ClientSecretJSON []byte
	// Scopes defaults to full Drive access.
	Scopes []string
	// Store caches tokens between invocations.
	Store *TokenStore
	// User selects the cached credential inside Store.
	User string
	// ListenAddr is the loopback address of the callback receiver.
	ListenAddr string
	// OpenBrowser launches the system browser on the authorization URL.
	OpenBrowser bool
	// Prompt receives the authorization URL and instructions (default os.Stderr).
	Prompt io.Writer
	// Input, when set, accepts a pasted code or redirect URL as an alternative to the
	// loopback callback. Callers pass os.Stdin only when it is a terminal.
	Input io.Reader
	Logger *slog.Logger
}

func (o Options) scopes() []string {
	if len(o.Scopes) == 0 {
		return []string{drive.DriveScope}
	}

	return o.Scopes
}

func (o Options) user() string {
	if o.User == "" {
		return "user"
	}

	return o.User
}

func (o Options) prompt() io.Writer {
	if o.Prompt == nil {
		return os.Stderr
	}

	return o.Prompt
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}

	return o.Logger
}

// Config parses the client secret into an OAuth2 configuration.
func Config(opts Options) (*oauth2.Config, error) {
	if len(opts.ClientSecretJSON) == 0 {
		return nil, fmt.Errorf("client secret JSON is empty")
	}

	cfg, err := google.ConfigFromJSON(opts.ClientSecretJSON, opts.scopes()...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return cfg, nil
}

// GetClient returns an HTTP client authorized for Google Drive. A cached token is
// reused when it is still valid or refreshable; otherwise the authorization code
// flow runs and its result is cached.
func GetClient(ctx context.Context, opts Options) (*http.Client, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	cfg, err := Config(opts)
	if err != nil {
		return nil, err
	}

	ts, err := TokenSource(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	return oauth2.NewClient(ctx, ts), nil
}

// TokenSource loads or acquires a token and wraps it so refreshed tokens are written
// back to the store.
func TokenSource(ctx context.Context, cfg *oauth2.Config, opts Options) (oauth2.TokenSource, error) {
	log := opts.logger()
	user := opts.user()

	tok, err := opts.Store.Load(user)

	switch {
	case errors.Is(err, ErrNoToken):
		log.Info("No cached credential, starting authorization", "token_dir", opts.Store.Dir())

		tok, err = acquire(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !tok.Valid() && tok.RefreshToken == "":
		log.Info("Cached credential expired and cannot be refreshed, re-authorizing")

		tok, err = acquire(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
	default:
		log.Debug("Using cached credential", "path", opts.Store.Path(user), "expiry", tok.Expiry)
	}

	return &persistingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		store:  opts.Store,
		user:   user,
		last:   tok,
		logger: log,
	}, nil
}

func acquire(ctx context.Context, cfg *oauth2.Config, opts Options) (*oauth2.Token, error) {
	tok, err := Authorize(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	if err := opts.Store.Save(opts.user(), tok); err != nil {
		return nil, err
	}

	return tok, nil
}

// Authorize runs the installed-application authorization code flow with offline
// access and returns the exchanged token. It does not touch the store.
func Authorize(ctx context.Context, cfg *oauth2.Config, opts Options) (*oauth2.Token, error) {
	recv, err := NewLoopbackReceiver(opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback receiver: %w", err)
	}

	defer func() {
		_ = recv.Close()
	}()

	flowCfg := *cfg
	flowCfg.RedirectURL = recv.RedirectURL()

	state := uuid.NewString()
	authURL := flowCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	out := opts.prompt()
	_, _ = fmt.Fprintf(out, "Open the following URL in a browser to authorize Google Drive access:\n\n  %s\n\n", authURL)

	if opts.OpenBrowser {
		if err := openBrowser(authURL); err != nil {
			opts.logger().Debug("Could not open browser", "error", err)
		}
	}

	var pasted chan codeResult

	if opts.Input != nil {
		pasted = make(chan codeResult, 1)
		_, _ = fmt.Fprintln(out, "Waiting for the browser redirect. If it cannot reach this machine, paste the redirected URL here:")

		go func() {
			pasted <- readPastedCode(opts.Input, state)
		}()
	}

	code, err := recv.WaitForCode(ctx, state, pasted)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	tok, err := flowCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}

	return tok, nil
}

// persistingTokenSource writes every newly minted token back to the store.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  *TokenStore
	user   string
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	if p.last != nil && p.last.AccessToken == tok.AccessToken {
		return tok, nil
	}

	if err := p.store.Save(p.user, tok); err != nil {
		p.logger.Warn("Failed to cache refreshed token", "error", err)
	} else {
		p.logger.Debug("Cached refreshed token", "expiry", tok.Expiry)
	}

	p.last = tok

	return tok, nil
}

// Status describes the cached credential for a user.
type Status struct {
	Path        string
	Cached      bool
	Expiry      time.Time
	Expired     bool
	Refreshable bool
}

// TokenStatus inspects the cache without contacting Google.
func TokenStatus(store *TokenStore, user string) (*Status, error) {
	st := &Status{Path: store.Path(user)}

	tok, err := store.Load(user)
	if errors.Is(err, ErrNoToken) {
		return st, nil
	}

	if err != nil {
		return nil, err
	}

	st.Cached = true
	st.Expiry = tok.Expiry
	st.Expired = !tok.Valid()
	st.Refreshable = tok.RefreshToken != ""

	return st, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
