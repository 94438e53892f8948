package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/visionfy/visionfy/internal/client"
	"github.com/visionfy/visionfy/internal/config"
	"github.com/visionfy/visionfy/internal/gallery"
)

// keySession holds the stored token pair next to the gallery collections.
const keySession = "visionfy_session"

var errNotLoggedIn = errors.New("not logged in, run `visionfy login` first")

// app is the state every command shares: the local store, the gallery
// cache on top of it and an API client.
type app struct {
	storage *gallery.SQLiteStorage
	cache   *gallery.Cache
	api     *client.Client
}

func openApp(cfg *config.ClientConfig) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	storage, err := gallery.OpenSQLite(filepath.Join(cfg.DataDir, "local.db"))
	if err != nil {
		return nil, err
	}
	return &app{
		storage: storage,
		cache:   gallery.NewCache(storage, nil),
		api:     client.New(cfg.APIURL, cfg.Timeout),
	}, nil
}

func (a *app) Close() error {
	return a.storage.Close()
}

func (a *app) saveSession(ctx context.Context, tokens *client.TokenPair) error {
	b, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return a.storage.SetItem(ctx, keySession, string(b))
}

func (a *app) loadSession(ctx context.Context) (*client.TokenPair, error) {
	raw, ok, err := a.storage.GetItem(ctx, keySession)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotLoggedIn
	}
	var tokens client.TokenPair
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, errNotLoggedIn
	}
	return &tokens, nil
}

// authed runs call with the stored access token. On 401 it rotates the
// refresh token once and retries.
func authed[T any](ctx context.Context, a *app, call func() (T, error)) (T, error) {
	var zero T
	tokens, err := a.loadSession(ctx)
	if err != nil {
		return zero, err
	}
	a.api.SetToken(tokens.AccessToken)

	out, err := call()
	if !client.IsUnauthorized(err) {
		return out, err
	}

	slog.Debug("access token rejected, refreshing")
	next, rerr := a.api.Refresh(ctx, tokens.RefreshToken)
	if rerr != nil {
		_ = a.storage.RemoveItem(ctx, keySession)
		return zero, errNotLoggedIn
	}
	if err := a.saveSession(ctx, next); err != nil {
		return zero, err
	}
	a.api.SetToken(next.AccessToken)
	return call()
}
