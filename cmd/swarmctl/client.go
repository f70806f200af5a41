package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssd-technologies/swarmgov/internal/agent"
)

// APIError is an error response from swarmd.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Client talks to swarmd, signing mutating requests with the agent key.
type Client struct {
	baseURL string
	key     ed25519.PrivateKey
	http    *http.Client
}

func newClient(baseURL string, key ed25519.PrivateKey) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// get fetches path into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post sends a signed request with body encoded as JSON.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		if c.key == nil {
			return errors.New("no agent key loaded")
		}
		agent.SignRequest(req, c.key, raw)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// defaultKeyPath is ~/.swarmgov/agent.key.
func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agent.key"
	}
	return filepath.Join(home, ".swarmgov", "agent.key")
}

// loadKey reads an Ed25519 seed from path.
func loadKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no key at %s (run 'swarmctl keygen')", path)
		}
		return nil, fmt.Errorf("read key: %w", err)
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("key %s: want %d bytes, got %d", path, ed25519.SeedSize, len(data))
	}
	return ed25519.NewKeyFromSeed(data), nil
}

// generateKey writes a fresh seed to path. An existing key is kept unless
// force is set.
func generateKey(path string, force bool) (ed25519.PrivateKey, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("key %s already exists (use --force to replace)", path)
		}
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, priv.Seed(), 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	return priv, nil
}

func identityOf(priv ed25519.PrivateKey) string {
	return agent.IdentityFromPublicKey(priv.Public().(ed25519.PublicKey))
}
