// Package extension connects to a local bridge of a browser wallet extension.
// The bridge exposes the extension calls (installed check, address, network,
// sign and submit) over HTTP.
package extension

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/ledger"
	"github.com/xrpracing/racegarage/pkg/signer"
)

type (
	Bridge struct {
		baseURL string
		http    *http.Client
		l       *log.Logger
	}
	Option func(*Bridge)

	AccountAddress struct {
		Address   string `json:"address"`
		PublicKey string `json:"publicKey,omitempty"`
	}

	envelope struct {
		Type   string          `json:"type"`
		Result json.RawMessage `json:"result"`
	}
)

const typeReject = "reject"

var ErrNotInstalled = errors.New("wallet extension is not installed")

func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) {
		b.http = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		b.l = l
	}
}

func NewBridge(baseURL string, opts ...Option) *Bridge {
	ret := &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		l:       log.Default().Named("extension"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Installed reports whether the extension answers. An unreachable bridge
// is reported as not installed.
func (b *Bridge) Installed(ctx context.Context) (bool, error) {
	var res struct {
		IsInstalled bool `json:"isInstalled"`
	}
	if err := b.call(ctx, http.MethodGet, "/status", nil, &res); err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			b.l.Debug("extension bridge not reachable", log.ErrorField(err))
			return false, nil
		}
		return false, err
	}
	return res.IsInstalled, nil
}

func (b *Bridge) Address(ctx context.Context) (*AccountAddress, error) {
	var res AccountAddress
	if err := b.call(ctx, http.MethodGet, "/address", nil, &res); err != nil {
		return nil, err
	}
	if res.Address == "" {
		return nil, errs.ErrUserRejected
	}
	return &res, nil
}

func (b *Bridge) Network(ctx context.Context) (string, error) {
	var res struct {
		Network string `json:"network"`
		Name    string `json:"name"`
	}
	if err := b.call(ctx, http.MethodGet, "/network", nil, &res); err != nil {
		return "", err
	}
	if res.Network != "" {
		return res.Network, nil
	}
	return res.Name, nil
}

// SignAndSubmit asks the extension to autofill, sign and submit tx.
// A declined request yields errs.ErrUserRejected.
func (b *Bridge) SignAndSubmit(ctx context.Context, tx ledger.Tx) (*signer.Result, error) {
	var res struct {
		Hash         string `json:"hash"`
		EngineResult string `json:"engine_result"`
	}
	if err := b.call(ctx, http.MethodPost, "/sign", map[string]any{"transaction": tx}, &res); err != nil {
		return nil, err
	}
	if res.Hash == "" {
		return nil, errs.ErrUserRejected
	}
	code := res.EngineResult
	if code == "" {
		code = ledger.ResultSuccess
	}
	b.l.Debug("extension submitted transaction", log.String("hash", res.Hash), log.String("code", code))
	return &signer.Result{Hash: res.Hash, Code: code}, nil
}

func (b *Bridge) call(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("extension: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("extension: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("extension: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("extension: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound && path == "/status" {
		return nil // old bridges lack /status; target stays "not installed"
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("extension: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("extension: decode response: %w", err)
	}
	if env.Type == typeReject {
		return errs.ErrUserRejected
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, target); err != nil {
		return fmt.Errorf("extension: decode result: %w", err)
	}
	return nil
}
