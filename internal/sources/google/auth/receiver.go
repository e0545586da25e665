package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CallbackPath is where the authorization server redirects the browser.
const CallbackPath = "/Callback"

var (
	// ErrStateMismatch means the redirect did not carry the state we issued.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrAccessDenied means the user or the server rejected the authorization request.
	ErrAccessDenied = errors.New("authorization denied")
)

type codeResult struct {
	code string
	err  error
}

// LoopbackReceiver accepts the authorization code redirect on a local port.
type LoopbackReceiver struct {
	listener net.Listener
}

// NewLoopbackReceiver binds addr ("127.0.0.1:0" picks a free port).
func NewLoopbackReceiver(addr string) (*LoopbackReceiver, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &LoopbackReceiver{listener: ln}, nil
}

// RedirectURL is the redirect URI to register in the authorization request.
func (r *LoopbackReceiver) RedirectURL() string {
	port := r.listener.Addr().(*net.TCPAddr).Port

	return fmt.Sprintf("http://localhost:%d%s", port, CallbackPath)
}

// Close releases the listening socket. Safe to call after WaitForCode.
func (r *LoopbackReceiver) Close() error {
	err := r.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// WaitForCode serves the callback until a code with the expected state arrives, a
// code is delivered on pasted, or ctx ends.
func (r *LoopbackReceiver) WaitForCode(ctx context.Context, state string, pasted <-chan codeResult) (string, error) {
	results := make(chan codeResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, req *http.Request) {
		res := parseCallback(req.URL.Query(), state)

		if res.err != nil {
			http.Error(w, "Authorization failed: "+res.err.Error(), http.StatusBadRequest)
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, "Received verification code. You may now close this window.\n")
		}

		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var code string

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(r.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server failed: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = srv.Shutdown(shutdownCtx)
		}()

		var res codeResult

		select {
		case res = <-results:
		case res = <-pasted:
		case <-gCtx.Done():
			return gCtx.Err()
		}

		if res.err != nil {
			return res.err
		}

		code = res.code

		return nil
	})

	if err := g.Wait(); err != nil {
		return "", err
	}

	return code, nil
}

func parseCallback(q url.Values, state string) codeResult {
	if e := q.Get("error"); e != "" {
		return codeResult{err: fmt.Errorf("%w: %s", ErrAccessDenied, e)}
	}

	if q.Get("state") != state {
		return codeResult{err: ErrStateMismatch}
	}

	code := q.Get("code")
	if code == "" {
		return codeResult{err: fmt.Errorf("callback carried no authorization code")}
	}

	return codeResult{code: code}
}

// readPastedCode reads one line from in. The line may be the bare code or the full
// redirect URL copied from a browser that could not reach the loopback receiver.
func readPastedCode(in io.Reader, state string) codeResult {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return codeResult{err: fmt.Errorf("failed to read authorization code: %w", err)}
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return codeResult{err: fmt.Errorf("empty authorization code")}
	}

	if strings.Contains(line, "://") || strings.HasPrefix(line, CallbackPath) {
		u, err := url.Parse(line)
		if err != nil {
			return codeResult{err: fmt.Errorf("failed to parse redirect URL: %w", err)}
		}

		return parseCallback(u.Query(), state)
	}

	return codeResult{code: line}
}
