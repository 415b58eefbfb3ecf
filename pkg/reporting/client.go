// Copyright 2025 Ditto Network
//
// Package reporting implements C11: challenge-response operator auth
// against the reporting service, token refresh, and report submission
// with retry-with-backoff on transient failures.

package reporting

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

type tokens struct {
	access  string
	refresh string
}

// Client is the reporting service's HTTP client, holding the current
// bearer token pair and the operator identity used to sign challenges.
type Client struct {
	baseURL    string
	httpClient *http.Client
	privateKey *ecdsa.PrivateKey
	address    string

	mu             sync.Mutex
	tok            tokens
	refreshFailures int
}

// New builds a Client. privateKeyHex is the operator's hex-encoded
// secp256k1 key (EXECUTOR_PRIVATE_KEY); address is its derived hex
// address (EXECUTOR_ADDRESS), kept separately so callers that only need
// the address (self-report suppression) need not parse the key.
func New(baseURL, privateKeyHex, address string) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("reporting: parse operator key: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		privateKey: key,
		address:    address,
	}, nil
}

// Address returns the operator's own address, used by callers to suppress
// self-reports (§4.10 step 5).
func (c *Client) Address() string {
	return c.address
}

// EnsureAuth registers to obtain a token pair when none is held yet; an
// existing pair is left as it is.
func (c *Client) EnsureAuth(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok.access != "" {
		return nil
	}
	return c.register(ctx)
}

// RefreshToken is invoked periodically by the scheduler's background
// ticker (§4.9) to keep the bearer token from expiring under low request
// volume.
func (c *Client) RefreshToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx)
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type registerResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// register runs the full challenge-response bootstrap: fetch a nonce,
// sign it with the operator key, exchange the signature for a token
// pair. Caller must hold c.mu.
func (c *Client) register(ctx context.Context) error {
	var nonce nonceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/operator/nonce", map[string]string{"address": c.address}, &nonce); err != nil {
		return fmt.Errorf("reporting: fetch nonce: %w", err)
	}

	sig, err := c.sign(nonce.Nonce)
	if err != nil {
		return err
	}

	var reg registerResponse
	body := map[string]string{"address": c.address, "nonce": nonce.Nonce, "signature": sig}
	if err := c.doJSON(ctx, http.MethodPost, "/operator/register", body, &reg); err != nil {
		return fmt.Errorf("reporting: register: %w", err)
	}

	c.tok = tokens{access: reg.Access, refresh: reg.Refresh}
	c.refreshFailures = 0
	return nil
}

// refresh exchanges the current refresh token for a new pair. Caller
// must hold c.mu.
func (c *Client) refresh(ctx context.Context) error {
	var reg registerResponse
	body := map[string]string{"refreshToken": c.tok.refresh}
	err := c.doJSONWithHeader(ctx, http.MethodPost, "/operator/refresh-token", body, &reg, "Authorization", "Bearer "+c.tok.access)
	if err != nil {
		c.refreshFailures++
		if c.refreshFailures >= 2 {
			c.refreshFailures = 0
			return c.register(ctx)
		}
		return fmt.Errorf("reporting: refresh token: %w", err)
	}
	c.tok = tokens{access: reg.Access, refresh: reg.Refresh}
	c.refreshFailures = 0
	return nil
}

func (c *Client) sign(nonce string) (string, error) {
	digest := crypto.Keccak256([]byte(nonce))
	sig, err := crypto.Sign(digest, c.privateKey)
	if err != nil {
		return "", fmt.Errorf("reporting: sign nonce: %w", err)
	}
	return "0x" + fmt.Sprintf("%x", sig), nil
}

// Report is the payload submitted for one chain's simulated or executed
// outcome.
type Report struct {
	ContentHash string                    `json:"content_hash"`
	Performer   string                    `json:"performer"`
	Result      workflow.PerChainResult   `json:"result"`
}

// SubmitReport POSTs one chain's result. Callers are responsible for
// deciding whether to suppress self-reports; this method always sends.
func (c *Client) SubmitReport(ctx context.Context, doc *workflow.Document, result workflow.PerChainResult) error {
	if err := c.EnsureAuth(ctx); err != nil {
		return err
	}
	report := Report{ContentHash: doc.ContentHash, Performer: c.address, Result: result}
	return c.doAuthenticated(ctx, http.MethodPost, "/operator/submit-report", report, nil)
}

// doAuthenticated attaches the current bearer token, retries once on 401
// after a token refresh, and retries transient network/5xx errors up to
// maxRetries times with exponential backoff.
func (c *Client) doAuthenticated(ctx context.Context, method, path string, body, out any) error {
	var lastErr error
	backoff := initialBackoff
	refreshed := false

	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.mu.Lock()
		token := c.tok.access
		c.mu.Unlock()

		status, err := c.doJSONStatus(ctx, method, path, body, out, "Authorization", "Bearer "+token)
		if err == nil {
			return nil
		}

		if status == http.StatusUnauthorized && !refreshed {
			refreshed = true
			c.mu.Lock()
			refreshErr := c.refresh(ctx)
			c.mu.Unlock()
			if refreshErr != nil {
				return refreshErr
			}
			continue
		}

		if !isTransient(status, err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("reporting: %s %s failed after retries: %w", method, path, lastErr)
}

func isTransient(status int, err error) bool {
	if status >= 500 {
		return true
	}
	return status == 0 && err != nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doJSONStatus(ctx, method, path, body, out)
	return err
}

func (c *Client) doJSONWithHeader(ctx context.Context, method, path string, body, out any, headerKey, headerVal string) error {
	_, err := c.doJSONStatus(ctx, method, path, body, out, headerKey, headerVal)
	return err
}

func (c *Client) doJSONStatus(ctx context.Context, method, path string, body, out any, headers ...string) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("reporting: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("reporting: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
