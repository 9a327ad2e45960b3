package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// ErrConflict is wrapped by errors for requests refused because of the
// server's current state (not running, running during install).
var ErrConflict = errors.New("conflict")

// Client talks to a craftvisor daemon.
type Client struct {
	baseURL string
	client  *http.Client
	long    *http.Client // no timeout, for installs
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 30 * time.Second,
	}
}

func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if config.TLS != nil || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
		long:    &http.Client{Transport: transport},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, c.client, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Start launches the server and returns the status right after spawning.
func (c *Client) Start(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, c.client, http.MethodPost, "/start", nil, &st)
	return st, err
}

func (c *Client) Stop(ctx context.Context) (StopResult, error) {
	var res StopResult
	err := c.do(ctx, c.client, http.MethodPost, "/stop", nil, &res)
	return res, err
}

func (c *Client) Restart(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, c.long, http.MethodPost, "/restart", nil, &st)
	return st, err
}

// Kill reports whether a process was running.
func (c *Client) Kill(ctx context.Context) (bool, error) {
	var out struct {
		Killed bool `json:"killed"`
	}
	err := c.do(ctx, c.client, http.MethodPost, "/kill", nil, &out)
	return out.Killed, err
}

// Command sends one console line to the running server.
func (c *Client) Command(ctx context.Context, command string) error {
	return c.do(ctx, c.client, http.MethodPost, "/command", map[string]string{"command": command}, nil)
}

// Logs returns buffered console lines; tail <= 0 returns all of them.
func (c *Client) Logs(ctx context.Context, tail int) ([]string, error) {
	path := "/logs"
	if tail > 0 {
		path += "?tail=" + strconv.Itoa(tail)
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.do(ctx, c.client, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

func (c *Client) Whitelist(ctx context.Context) ([]WhitelistEntry, error) {
	var out []WhitelistEntry
	err := c.do(ctx, c.client, http.MethodGet, "/whitelist", nil, &out)
	return out, err
}

// WhitelistAdd reports false when the player was already listed.
func (c *Client) WhitelistAdd(ctx context.Context, name string) (bool, error) {
	var out struct {
		Added bool `json:"added"`
	}
	err := c.do(ctx, c.client, http.MethodPost, "/whitelist", map[string]string{"name": name}, &out)
	return out.Added, err
}

func (c *Client) WhitelistRemove(ctx context.Context, name string) error {
	return c.do(ctx, c.client, http.MethodDelete, "/whitelist/"+url.PathEscape(name), nil, nil)
}

func (c *Client) Properties(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, c.client, http.MethodGet, "/properties", nil, &out)
	return out, err
}

// SetProperties replaces server.properties with props.
func (c *Client) SetProperties(ctx context.Context, props map[string]string) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, c.client, http.MethodPut, "/properties", props, &out)
	return out, err
}

// Install downloads a new server jar. It is not bound by Config.Timeout.
func (c *Client) Install(ctx context.Context, req InstallRequest) (string, error) {
	var out struct {
		Filename string `json:"filename"`
	}
	err := c.do(ctx, c.long, http.MethodPost, "/install", req, &out)
	return out.Filename, err
}

// SetMemory changes the heap size used from the next start.
func (c *Client) SetMemory(ctx context.Context, mem string) error {
	return c.do(ctx, c.client, http.MethodPut, "/settings/memory", map[string]string{"memoryAllocation": mem}, nil)
}

func (c *Client) Resources(ctx context.Context) (Resources, error) {
	var out Resources
	err := c.do(ctx, c.client, http.MethodGet, "/resources", nil, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []HistoryEvent
	err := c.do(ctx, c.client, http.MethodGet, path, nil, &out)
	return out, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 explicit opt-in
		return tlsConfig, nil
	}
	t := config.TLS
	if t.ServerName != "" {
		tlsConfig.ServerName = t.ServerName
	}
	if t.CACert != "" {
		if err := loadCACert(tlsConfig, t.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	if t.ClientCert != "" && t.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

// do sends body as JSON when non-nil and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrConflict, errorResp.Error)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
