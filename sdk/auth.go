package sdk

import (
	"context"
	"net/http"
)

// AuthAPI covers the session endpoints. Login, Register and Refresh store
// the returned token pair on the client; Logout clears it.
type AuthAPI struct {
	c *Client
}

// Login exchanges credentials for a session
func (a *AuthAPI) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := Dispatch[Session](ctx, a.c, http.MethodPost, "/auth/login",
		Credentials{Email: email, Password: password}, &RequestOptions{NoQueue: true})
	if err != nil {
		return nil, err
	}
	a.c.SetTokens(resp.Data.AccessToken, resp.Data.RefreshToken)
	return &resp.Data, nil
}

// Register creates an account and starts a session for it
func (a *AuthAPI) Register(ctx context.Context, r Registration) (*Session, error) {
	resp, err := Dispatch[Session](ctx, a.c, http.MethodPost, "/auth/register", r, &RequestOptions{NoQueue: true})
	if err != nil {
		return nil, err
	}
	a.c.SetTokens(resp.Data.AccessToken, resp.Data.RefreshToken)
	return &resp.Data, nil
}

// Refresh trades the stored refresh token for a new pair. The dispatcher
// never refreshes on its own; callers decide when to, typically after an
// IsUnauthorized error.
func (a *AuthAPI) Refresh(ctx context.Context) (*Session, error) {
	_, refresh, ok := a.c.Tokens()
	if !ok || refresh == "" {
		return nil, ErrNoSession
	}

	body := map[string]string{"refreshToken": refresh}
	resp, err := Dispatch[Session](ctx, a.c, http.MethodPost, "/auth/refresh", body, &RequestOptions{NoQueue: true})
	if err != nil {
		return nil, err
	}
	a.c.SetTokens(resp.Data.AccessToken, resp.Data.RefreshToken)
	return &resp.Data, nil
}

// Logout ends the session on the backend and clears the stored tokens.
// Tokens are cleared even when the call fails.
func (a *AuthAPI) Logout(ctx context.Context) error {
	defer a.c.ClearTokens()
	if !a.c.Authenticated() {
		return nil
	}
	_, err := Dispatch[struct{}](ctx, a.c, http.MethodPost, "/auth/logout", nil, &RequestOptions{NoQueue: true})
	return err
}

// Me returns the account behind the stored token
func (a *AuthAPI) Me(ctx context.Context) (*User, error) {
	resp, err := Dispatch[User](ctx, a.c, http.MethodGet, "/auth/me", nil, &RequestOptions{SkipCache: true})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
