// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// =============================================================================
// SIGN-IN FLOW
// =============================================================================

// FlowState tracks where the sign-in dance currently is.
type FlowState int

const (
	StateUnauthenticated FlowState = iota
	StateCodeReceived
	StateAuthenticated
)

var (
	ErrMissingClientID = errors.New("google client id is not configured")
	ErrSignInDenied    = errors.New("sign-in was denied by the provider")
	ErrStateMismatch   = errors.New("oauth state parameter mismatch")
)

// Scopes requested at sign-in: identity plus read-only access to the
// document store and document contents.
var signInScopes = []string{
	"openid",
	"email",
	"profile",
	drive.DriveReadonlyScope,
	docs.DocumentsReadonlyScope,
}

// Flow drives the browser-based Google sign-in: it builds the consent
// URL, collects the authorization code on a loopback callback server,
// exchanges the code with the backend (which holds the client secret),
// and hands the resulting tokens to the token Manager.
type Flow struct {
	oauth        oauth2.Config
	callbackAddr string
	backendURL   string
	httpClient   *http.Client
	manager      *Manager
	store        *store.Store

	mu    sync.Mutex
	state FlowState
}

// NewFlow validates configuration and builds a sign-in flow. A missing
// client ID is a configuration error that blocks sign-in entirely.
func NewFlow(clientID string, callbackPort int, backendURL string, mgr *Manager, st *store.Store) (*Flow, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	return &Flow{
		oauth: oauth2.Config{
			ClientID:    clientID,
			Endpoint:    google.Endpoint,
			RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/auth/callback", callbackPort),
			Scopes:      signInScopes,
		},
		callbackAddr: fmt.Sprintf("127.0.0.1:%d", callbackPort),
		backendURL:   backendURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		manager:      mgr,
		store:        st,
	}, nil
}

// State returns the current flow state.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s FlowState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// AuthURL builds the provider authorization URL with offline access and
// forced consent, so a refresh token is always issued.
func (f *Flow) AuthURL(state string) string {
	return f.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// SignIn runs the whole flow: opens the browser to the consent page,
// waits for the loopback callback, and exchanges the code. It blocks
// until the user completes or denies consent, or ctx expires.
func (f *Flow) SignIn(ctx context.Context) (*model.User, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	code, err := f.collectCode(ctx, state)
	if err != nil {
		f.setState(StateUnauthenticated)
		return nil, err
	}
	f.setState(StateCodeReceived)

	user, err := f.ExchangeCode(ctx, code)
	if err != nil {
		f.setState(StateUnauthenticated)
		return nil, err
	}
	f.setState(StateAuthenticated)
	return user, nil
}

// callbackResult is what the loopback handler reports back.
type callbackResult struct {
	code string
	err  error
}

// collectCode serves the loopback callback until one code or error
// arrives, then shuts the server down.
func (f *Flow) collectCode(ctx context.Context, state string) (string, error) {
	listener, err := net.Listen("tcp", f.callbackAddr)
	if err != nil {
		return "", fmt.Errorf("failed to bind callback port: %w", err)
	}

	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get("/auth/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusForbidden)
			results <- callbackResult{err: fmt.Errorf("%w: %s", ErrSignInDenied, q.Get("error"))}
		case q.Get("state") != state:
			http.Error(w, "Invalid request.", http.StatusBadRequest)
			results <- callbackResult{err: ErrStateMismatch}
		default:
			fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
			results <- callbackResult{code: q.Get("code")}
		}
	})

	server := &http.Server{Handler: r}
	go server.Serve(listener)
	defer server.Shutdown(context.Background())

	url := f.AuthURL(state)
	fmt.Printf("\n  %s\n\n", url)
	openBrowser(url)

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exchangeResponse is the backend's answer to POST /auth/google.
type exchangeResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	IDToken      string      `json:"id_token,omitempty"`
	User         *model.User `json:"user,omitempty"`
}

// ExchangeCode trades the one-time authorization code for tokens via the
// backend, persists the user profile, and starts the refresh schedule
// with the nominal one-hour lifetime when none is reported.
func (f *Flow) ExchangeCode(ctx context.Context, code string) (*model.User, error) {
	body, _ := json.Marshal(map[string]string{
		"code":         code,
		"redirect_uri": f.oauth.RedirectURL,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.backendURL+"/auth/google", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("code exchange failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var parsed exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, errors.New("code exchange returned no access token")
	}

	user := parsed.User
	if user == nil && parsed.IDToken != "" {
		user = userFromIDToken(parsed.IDToken)
	}
	if user != nil {
		if data, err := json.Marshal(user); err == nil {
			f.store.Put(store.KeyUser, string(data))
		}
	}

	expiresIn := time.Duration(parsed.ExpiresIn) * time.Second
	if parsed.ExpiresIn <= 0 {
		expiresIn = NominalTokenLifetime
	}
	f.manager.SaveTokens(parsed.AccessToken, parsed.RefreshToken, expiresIn)
	return user, nil
}

// userFromIDToken pulls profile claims out of the ID token. The backend
// already verified the token's signature; this is a display-only decode.
func userFromIDToken(idToken string) *model.User {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil
	}
	user := &model.User{}
	if v, ok := claims["sub"].(string); ok {
		user.ID = v
	}
	if v, ok := claims["email"].(string); ok {
		user.Email = v
	}
	if v, ok := claims["name"].(string); ok {
		user.Name = v
	}
	if v, ok := claims["picture"].(string); ok {
		user.Picture = v
	}
	if user.Email == "" && user.ID == "" {
		return nil
	}
	return user
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// openBrowser launches the system browser; failure is not fatal because
// the URL is also printed for manual copy-paste.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
