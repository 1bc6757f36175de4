// Package management implements the typed HTTP client the agent uses to
// talk to its paired console: pairing, heartbeat, policy/input/credential
// fetch, and bulk event submission.
package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
)

const (
	apiVersion         = "v2.0"
	defaultTimeout     = 30 * time.Second
	defaultMaxBodyByte = 1 << 20 // 1MiB
	errorBodyLimit     = 32 << 10
)

// Config configures a Client.
type Config struct {
	// BaseURL is the console URL (will be normalized).
	BaseURL string
	// APIKey is sent as "Authorization: Bearer <APIKey>".
	APIKey string
	// UserAgent defaults to "reflexsoar-agent/<Version>" when empty.
	UserAgent string
	// Version is substituted into the default UserAgent.
	Version string
	// HTTPClient overrides the client used to execute requests.
	HTTPClient *http.Client
	// Timeout is applied to HTTPClient when it is nil or has no timeout set.
	Timeout time.Duration
	// MaxBodyBytes caps response bodies read into memory.
	MaxBodyBytes int64
	// Logger receives warnings for fail-soft network errors.
	Logger *logging.Logger
}

// Client wraps an *http.Client with the console's bearer-auth headers and
// typed endpoint methods. All calls fail-soft on networking errors: they
// log and return a nil response rather than propagating the transport
// error, matching ManagementConnection.call_api's try/except shape.
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	httpClient   *http.Client
	maxBodyBytes int64
	logger       *logging.Logger
}

// New constructs a Client from cfg.
func New(cfg Config) (*Client, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("management: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if httpClient.Timeout == 0 {
		clone := *httpClient
		clone.Timeout = timeout
		httpClient = &clone
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		version := cfg.Version
		if version == "" {
			version = "0.0.1"
		}
		userAgent = "reflexsoar-agent/" + version
	}

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyByte
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewFromEnv("management")
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		userAgent:    userAgent,
		httpClient:   httpClient,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}, nil
}

// SetAPIKey replaces the bearer token used for subsequent requests. Used
// after Pair returns a fresh token.
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// apiResponse is the decoded envelope returned by callAPI.
type apiResponse struct {
	StatusCode int
	Body       map[string]interface{}
}

// callAPI issues a JSON request against <baseURL>/api/<version>/<endpoint>.
// Networking errors are logged and reported as (nil, nil): the caller sees
// no response and no error, matching the original's fail-soft call_api.
func (c *Client) callAPI(ctx context.Context, method, endpoint string, payload interface{}) (*apiResponse, error) {
	url := joinPath(c.baseURL, fmt.Sprintf("api/%s/%s", apiVersion, strings.TrimLeft(endpoint, "/")))

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("management: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("management: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("management: request failed")
		return nil, nil
	}
	defer resp.Body.Close()

	raw, truncated, readErr := readAllWithLimit(resp.Body, c.maxBodyBytes)
	if readErr != nil {
		c.logger.WithError(readErr).WithField("endpoint", endpoint).Warn("management: read response failed")
		return nil, nil
	}
	if truncated {
		c.logger.WithField("endpoint", endpoint).Warn("management: response body truncated")
	}

	result := &apiResponse{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &result.Body); err != nil {
			c.logger.WithError(err).WithField("endpoint", endpoint).Warn("management: decode response failed")
			return result, nil
		}
	}
	return result, nil
}

// Pair exchanges payload with POST /api/v2.0/agent, updating the client's
// bearer token to the returned token on success.
func (c *Client) Pair(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	resp, err := c.callAPI(ctx, http.MethodPost, "agent", payload)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	switch resp.StatusCode {
	case http.StatusOK:
		if token, ok := resp.Body["token"].(string); ok {
			c.apiKey = token
		}
		return resp.Body, nil
	case http.StatusConflict:
		return nil, agenterrors.ErrConsoleAlreadyPaired
	case http.StatusInternalServerError:
		return nil, agenterrors.ErrPairingUnreachable
	default:
		return nil, fmt.Errorf("management: pair failed with status %d", resp.StatusCode)
	}
}

// Heartbeat sends POST /api/v2.0/agent/heartbeat/<agentID>.
func (c *Client) Heartbeat(ctx context.Context, agentID string, body map[string]interface{}) (map[string]interface{}, error) {
	resp, err := c.callAPI(ctx, http.MethodPost, "agent/heartbeat/"+agentID, body)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, agenterrors.ErrHeartbeatFailed
	}
	return resp.Body, nil
}

// GetPolicy fetches GET /api/v2.0/agent/<agentID> and returns its "policy"
// key, or nil when absent.
func (c *Client) GetPolicy(ctx context.Context, agentID string) (map[string]interface{}, error) {
	resp, err := c.callAPI(ctx, http.MethodGet, "agent/"+agentID, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	policy, ok := resp.Body["policy"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	return policy, nil
}

// GetInputs fetches GET /api/v2.0/agent/inputs.
func (c *Client) GetInputs(ctx context.Context) ([]interface{}, error) {
	resp, err := c.callAPI(ctx, http.MethodGet, "agent/inputs", nil)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	inputs, ok := resp.Body["inputs"].([]interface{})
	if !ok {
		return nil, nil
	}
	return inputs, nil
}

// GetDetections fetches GET /api/v2.0/agent/detections, returning the
// raw rule documents under its "detections" key.
func (c *Client) GetDetections(ctx context.Context) ([]interface{}, error) {
	resp, err := c.callAPI(ctx, http.MethodGet, "agent/detections", nil)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	rules, ok := resp.Body["detections"].([]interface{})
	if !ok {
		return nil, nil
	}
	return rules, nil
}

// GetInputCredentials fetches the username and decrypted secret for credID
// in two sequential calls, matching spec.md §4.C.
func (c *Client) GetInputCredentials(ctx context.Context, credID string) (username, secret string, err error) {
	userResp, err := c.callAPI(ctx, http.MethodGet, fmt.Sprintf("agent/credential/%s/username", credID), nil)
	if err != nil {
		return "", "", err
	}
	if userResp != nil && userResp.StatusCode == http.StatusOK {
		if u, ok := userResp.Body["username"].(string); ok {
			username = u
		}
	}

	secretResp, err := c.callAPI(ctx, http.MethodGet, fmt.Sprintf("agent/credential/%s/secret", credID), nil)
	if err != nil {
		return username, "", err
	}
	if secretResp != nil && secretResp.StatusCode == http.StatusOK {
		if s, ok := secretResp.Body["secret"].(string); ok {
			secret = s
		}
	}
	return username, secret, nil
}

// BulkEvents POSTs a batch of already-serialized events to
// /api/v2.0/event/_bulk. Returns true on success.
func (c *Client) BulkEvents(ctx context.Context, events []json.RawMessage) (bool, error) {
	resp, err := c.callAPI(ctx, http.MethodPost, "event/_bulk", map[string]interface{}{"events": events})
	if err != nil {
		return false, err
	}
	if resp == nil {
		return false, nil
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
