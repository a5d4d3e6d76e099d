// Package auth provides Spotify OAuth2 authentication with token caching.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/earshot-fm/earshot/internal/config"
)

const (
	// redirectURI uses explicit IPv4 loopback as required by Spotify for
	// locally-registered applications.
	redirectURI     = "http://127.0.0.1:8080/callback"
	callbackTimeout = 2 * time.Minute
)

var (
	// ErrMissingCredentials is returned when the client id or secret is unset.
	ErrMissingCredentials = errors.New("missing Spotify client id or secret")

	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// Authenticator handles Spotify OAuth2 authentication.
type Authenticator struct {
	auth  *spotifyauth.Authenticator
	cache *TokenCache
}

// New creates an Authenticator from the Spotify config section.
// Returns ErrMissingCredentials when the client id or secret is unset.
func New(cfg *config.Spotify) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	var cache *TokenCache
	if cfg.TokenPath != "" {
		cache = NewTokenCache(cfg.TokenPath)
	} else {
		var err error
		cache, err = DefaultTokenCache()
		if err != nil {
			return nil, fmt.Errorf("creating token cache: %w", err)
		}
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserLibraryModify,
		),
	)

	return &Authenticator{auth: auth, cache: cache}, nil
}

// Authenticate returns an authenticated Spotify client, preferring a
// cached token and falling back to the full browser OAuth flow.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	token, err := a.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cached token: %w", err)
	}

	if token != nil {
		// oauth2 refreshes transparently; verify with a cheap API call.
		client := spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true))
		if _, err := client.CurrentUser(ctx); err == nil {
			if refreshed, err := client.Token(); err == nil && refreshed.AccessToken != token.AccessToken {
				_ = a.cache.Save(refreshed)
			}
			return client, nil
		}
		fmt.Println("Cached token invalid, starting new authentication...")
	}

	return a.runOAuthFlow(ctx)
}

// runOAuthFlow performs the full OAuth authorization code flow.
func (a *Authenticator) runOAuthFlow(ctx context.Context) (*spotify.Client, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		a.handleCallback(w, r, state, tokenCh, errCh)
	})
	server := &http.Server{
		Addr:    "127.0.0.1:8080",
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	fmt.Println("\nTo authenticate, open this URL in your browser:")
	fmt.Println(a.auth.AuthURL(state))
	fmt.Println("\nWaiting for authentication...")

	var token *oauth2.Token
	select {
	case token = <-tokenCh:
	case err := <-errCh:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-time.After(callbackTimeout):
		_ = server.Shutdown(ctx)
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		_ = server.Shutdown(ctx)
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := a.cache.Save(token); err != nil {
		// Auth succeeded; a failed cache write only costs a re-login later.
		fmt.Printf("Warning: failed to cache token: %v\n", err)
	}

	return spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true)), nil
}

// handleCallback processes the OAuth callback from Spotify.
func (a *Authenticator) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, tokenCh chan<- *oauth2.Token, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		errCh <- ErrStateMismatch
		return
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		errCh <- fmt.Errorf("spotify auth error: %s", errMsg)
		return
	}

	token, err := a.auth.Token(r.Context(), expectedState, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		errCh <- fmt.Errorf("exchanging code for token: %w", err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Authentication Successful!</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	tokenCh <- token
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	return a.cache.Delete()
}
