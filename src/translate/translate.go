package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// LocalMarker tags text that was returned untranslated.
	LocalMarker = "[local]"

	MaxTimeout     = 10 * time.Second
	maxBodyBytes   = 1 << 20
	probeText      = "hello"
	probeExpect    = "你好"
	destinationKey = "destination-text"
)

type Provider string

const (
	ProviderPrimary   Provider = "remote-primary"
	ProviderSecondary Provider = "remote-secondary"
	ProviderLocal     Provider = "local-only"
)

// Providers lists the selectable backends in display order.
func Providers() []Provider {
	return []Provider{ProviderPrimary, ProviderSecondary, ProviderLocal}
}

func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary", string(ProviderPrimary):
		return ProviderPrimary, nil
	case "secondary", string(ProviderSecondary):
		return ProviderSecondary, nil
	case "local", string(ProviderLocal):
		return ProviderLocal, nil
	default:
		return "", fmt.Errorf("unknown translation provider %q", s)
	}
}

// Direction selects the language pair. ToTarget is English to Chinese.
type Direction int

const (
	ToTarget Direction = iota
	ToSource
)

func (d Direction) String() string {
	if d == ToSource {
		return "to-source"
	}
	return "to-target"
}

// Languages returns the sl/dl codes sent to the remote service.
func (d Direction) Languages() (source, dest string) {
	if d == ToSource {
		return "zh-cn", "en"
	}
	return "en", "zh-cn"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "to-target", "zh", "zh-cn", "en-zh":
		return ToTarget, nil
	case "to-source", "en", "zh-en":
		return ToSource, nil
	default:
		return ToTarget, fmt.Errorf("unknown direction %q", s)
	}
}

// Result is always usable: remote text on success, the wrapped original otherwise.
type Result struct {
	Text     string   `json:"text"`
	Provider Provider `json:"provider"`
	Fallback bool     `json:"fallback"`
}

// Fallback wraps text as an untranslated local result.
func Fallback(text string, p Provider) Result {
	return Result{Text: LocalMarker + "\n" + text, Provider: p, Fallback: true}
}

type Config struct {
	PrimaryURL   string
	SecondaryURL string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	endpoints map[Provider]string
	timeout   time.Duration
	http      *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoints: map[Provider]string{
			ProviderPrimary:   strings.TrimSpace(cfg.PrimaryURL),
			ProviderSecondary: strings.TrimSpace(cfg.SecondaryURL),
		},
		timeout: timeout,
		http:    hc,
	}
}

// Translate never fails: blank input gives an empty Result, and any remote
// problem degrades to Fallback.
func (c *Client) Translate(ctx context.Context, text string, dir Direction, p Provider) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Provider: p}
	}

	endpoint := c.endpoints[p]
	if p == ProviderLocal || endpoint == "" {
		return Fallback(text, p)
	}

	translated, err := c.fetch(ctx, endpoint, text, dir)
	if err != nil {
		log.Printf("Translate: %s failed, using local fallback: %v", p, err)
		return Fallback(text, p)
	}
	return Result{Text: translated, Provider: p}
}

// Probe translates a fixed word and checks the expected answer comes back.
func (c *Client) Probe(ctx context.Context, p Provider) bool {
	res := c.Translate(ctx, probeText, ToTarget, p)
	return !res.Fallback && strings.Contains(res.Text, probeExpect)
}

func (c *Client) fetch(ctx context.Context, endpoint, text string, dir Direction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	sl, dl := dir.Languages()
	q := u.Query()
	q.Set("sl", sl)
	q.Set("dl", dl)
	q.Set("text", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	raw, ok := payload[destinationKey]
	if !ok {
		return "", fmt.Errorf("response has no %s field", destinationKey)
	}
	var translated string
	if err := json.Unmarshal(raw, &translated); err != nil {
		return "", fmt.Errorf("%s is not a string: %w", destinationKey, err)
	}
	if strings.TrimSpace(translated) == "" {
		return "", fmt.Errorf("empty %s", destinationKey)
	}
	return translated, nil
}
