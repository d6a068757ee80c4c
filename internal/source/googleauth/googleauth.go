// Package googleauth builds authenticated Google API clients from an
// installed-app credentials file and a cached token file.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scopes cover both download phases so one token serves Gmail and Drive.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
	drive.DriveScope,
}

var (
	ErrCredentialsNotFound = errors.New("credentials file not found")
	ErrTokenNotFound       = errors.New("no cached token, run `diary auth` first")
)

// Options locate the credentials and token files.
type Options struct {
	CredentialsFile string
	TokenFile       string
	// Endpoint overrides the API base URL. Used by tests.
	Endpoint string
	// HTTPClient replaces the OAuth client entirely. Used by tests.
	HTTPClient *http.Client
}

// Config reads the OAuth client configuration from the credentials file.
func Config(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, credentialsFile)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a cached token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, path)
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// ClientOptions returns the options for gmail.NewService or drive.NewService.
// The cached token is refreshed as needed and rewritten when it changes.
func ClientOptions(ctx context.Context, opts Options) ([]option.ClientOption, error) {
	var out []option.ClientOption
	if opts.Endpoint != "" {
		out = append(out, option.WithEndpoint(opts.Endpoint))
	}
	if opts.HTTPClient != nil {
		return append(out, option.WithHTTPClient(opts.HTTPClient)), nil
	}

	cfg, err := Config(opts.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	src := &savingSource{
		base: cfg.TokenSource(ctx, tok),
		path: opts.TokenFile,
		last: tok.AccessToken,
	}
	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))
	return append(out, option.WithHTTPClient(client)), nil
}

// savingSource persists refreshed tokens.
type savingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// Authorize runs the installed-app flow: it listens on a loopback port,
// prints the consent URL to w and exchanges the returned code for a token,
// which is saved to tokenFile.
func Authorize(ctx context.Context, cfg *oauth2.Config, tokenFile string, w io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}
	defer ln.Close()

	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())
	state := fmt.Sprintf("diary-%d", os.Getpid())

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(rw, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			errs <- fmt.Errorf("authorization denied: %s", e)
			fmt.Fprintln(rw, "Authorization failed, you can close this window.")
			return
		}
		codes <- q.Get("code")
		fmt.Fprintln(rw, "Authorization complete, you can close this window.")
	})}
	go srv.Serve(ln)
	defer srv.Close()

	fmt.Fprintf(w, "Open this URL in your browser to authorize access:\n\n%s\n\n",
		cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := SaveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}
