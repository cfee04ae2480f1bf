// Package exotel talks to the Exotel telephony API: placing outbound calls
// through the Connect API and speaking the media-stream websocket protocol.
package exotel

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// UnknownCallSID is reported when a successful placement response carries no <Sid>.
const UnknownCallSID = "unknown"

const defaultSubdomain = "api.exotel.com"

// Config configures the Exotel client. Missing credentials are reported by
// Connect, not New, so a misconfigured server still boots and answers health checks.
type Config struct {
	AccountSID string
	APIKey     string
	APIToken   string
	CallerID   string // ExoPhone; dialled first as the bot leg
	Subdomain  string // e.g. "api.exotel.com" or "api.in.exotel.com"
	BaseURL    string // overrides Subdomain, used by tests
	HTTPClient *http.Client
}

type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		sub := cfg.Subdomain
		if sub == "" {
			sub = defaultSubdomain
		}
		baseURL = "https://" + sub
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ConfigurationError reports provider settings that must be present before
// any request is attempted.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "exotel: missing configuration: " + strings.Join(e.Missing, ", ")
}

// UpstreamError is a non-200 response from the Connect API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Exotel API error (%d): %s", e.StatusCode, e.Body)
}

// IsConfigurationError reports whether err is (or wraps) a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Validate returns a *ConfigurationError naming every missing setting.
func (c *Client) Validate() error {
	var missing []string
	if c.cfg.APIKey == "" {
		missing = append(missing, "EXOTEL_API_KEY")
	}
	if c.cfg.APIToken == "" {
		missing = append(missing, "EXOTEL_API_TOKEN")
	}
	if c.cfg.AccountSID == "" {
		missing = append(missing, "EXOTEL_SID")
	}
	if c.cfg.CallerID == "" {
		missing = append(missing, "EXOTEL_PHONE_NUMBER")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// ConnectResult is the outcome of a successful placement.
type ConnectResult struct {
	CallSID  string
	SIDFound bool
}

// Connect places a two-leg call: Exotel rings the bot's ExoPhone first and,
// once the bot leg answers, bridges the customer number `to`.
// The request is never retried; a duplicate call is worse than a failed one.
func (c *Client) Connect(ctx context.Context, to string) (*ConnectResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect", c.baseURL, url.PathEscape(c.cfg.AccountSID))

	data := url.Values{}
	data.Set("From", c.cfg.CallerID)
	data.Set("To", to)
	data.Set("CallerId", c.cfg.CallerID)
	data.Set("CallType", "trans")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	sid := ExtractCallSID(body)
	if sid == "" {
		return &ConnectResult{CallSID: UnknownCallSID}, nil
	}
	return &ConnectResult{CallSID: sid, SIDFound: true}, nil
}

// ExtractCallSID returns the text of the first <Sid> element, or "" if the
// body has none. Parse errors after the element has been seen are ignored.
func ExtractCallSID(body []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Sid" {
			continue
		}
		var sid string
		if err := dec.DecodeElement(&sid, &start); err != nil {
			return ""
		}
		return strings.TrimSpace(sid)
	}
}
