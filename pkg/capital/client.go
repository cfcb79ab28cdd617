// Package capital is a Go client for the Capital.com REST trading API.
// It covers session handling (CST + X-SECURITY-TOKEN), price history,
// account balance, position create/close, and deal confirmation — the
// endpoints the trading engine needs.
//
// Usage example:
//
//	c := capital.NewClient(capital.Config{APIKey: "key", Demo: true})
//	sess, err := c.CreateSession("identifier", "password")
//	if err != nil { log.Fatal(err) }
//	ref, err := c.CreatePosition(sess, capital.CreatePositionRequest{
//	    Epic: "GOLD", Direction: "BUY", Size: 1, OrderType: "MARKET",
//	})
package capital

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	demoRoot = "https://demo-api-capital.backend-capital.com"
	liveRoot = "https://api-capital.backend-capital.com"
)

var routes = map[string]string{
	"session":   "/api/v1/session",
	"ping":      "/api/v1/ping",
	"accounts":  "/api/v1/accounts",
	"prices":    "/api/v1/prices/",   // + epic
	"positions": "/api/v1/positions", // POST create, GET list
	"position":  "/api/v1/positions/", // + dealId (DELETE close)
	"confirms":  "/api/v1/confirms/", // + dealReference
}

// ErrAuth is returned when the venue rejects credentials or the session
// tokens are missing/expired. Trading must not be attempted past this.
var ErrAuth = errors.New("capital: authentication failed")

// ErrConfirmNotFound is returned when a deal confirmation is not (yet)
// available for a reference. Callers must treat the order outcome as
// unknown, not failed.
var ErrConfirmNotFound = errors.New("capital: confirmation not found")

// APIError is a non-2xx response from the venue.
type APIError struct {
	Status    int
	ErrorCode string `json:"errorCode"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("capital: status %d (%s)", e.Status, e.ErrorCode)
}

// Session holds the per-login security tokens sent on every request.
type Session struct {
	CST           string
	SecurityToken string
}

// Config configures the client.
type Config struct {
	APIKey     string
	Demo       bool
	BaseURL    string        // overrides Demo/live roots when set (tests)
	Timeout    time.Duration // default 10s
	TOTPSecret string        // optional second factor at login
}

// Client is the REST client. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	totpSecret string
	httpClient *http.Client

	// SessionExpiryHook is invoked on 401 responses, if set.
	SessionExpiryHook func()
}

// NewClient creates a client from the config.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Demo {
			base = demoRoot
		} else {
			base = liveRoot
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		totpSecret: cfg.TOTPSecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the API root in use.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) headers(req *http.Request, sess *Session) {
	req.Header.Set("X-CAP-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sess != nil {
		req.Header.Set("CST", sess.CST)
		req.Header.Set("X-SECURITY-TOKEN", sess.SecurityToken)
	}
}

// do issues a request and decodes the JSON body into out (unless nil).
// Returns the raw response for header access.
func (c *Client) do(method, path string, sess *Session, payload, out interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("capital: marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("capital: create request: %w", err)
	}
	c.headers(req, sess)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capital: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("capital: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return resp, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return resp, apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("capital: decode response: %w", err)
		}
	}
	return resp, nil
}

// ---- Session ----

type sessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	TOTP       string `json:"totp,omitempty"`
}

// CreateSession logs in and returns the security tokens from the response
// headers. Missing tokens are an auth failure even on HTTP 200.
func (c *Client) CreateSession(identifier, password string) (Session, error) {
	payload := sessionRequest{Identifier: identifier, Password: password}
	if c.totpSecret != "" {
		code, err := totp.GenerateCode(c.totpSecret, time.Now())
		if err != nil {
			return Session{}, fmt.Errorf("capital: generate totp: %w", err)
		}
		payload.TOTP = code
	}

	resp, err := c.do(http.MethodPost, routes["session"], nil, payload, nil)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		CST:           resp.Header.Get("CST"),
		SecurityToken: resp.Header.Get("X-SECURITY-TOKEN"),
	}
	if sess.CST == "" || sess.SecurityToken == "" {
		return Session{}, fmt.Errorf("%w: missing session tokens in response", ErrAuth)
	}
	return sess, nil
}

// Ping keeps the session alive.
func (c *Client) Ping(sess Session) error {
	_, err := c.do(http.MethodGet, routes["ping"], &sess, nil, nil)
	return err
}

// ---- Accounts ----

// Balance is the funds snapshot of one account.
type Balance struct {
	Balance    float64 `json:"balance"`
	Deposit    float64 `json:"deposit"`
	ProfitLoss float64 `json:"profitLoss"`
	Available  float64 `json:"available"`
}

// Account is one trading account.
type Account struct {
	AccountID string  `json:"accountId"`
	Name      string  `json:"accountName"`
	Preferred bool    `json:"preferred"`
	Balance   Balance `json:"balance"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Accounts lists the user's trading accounts.
func (c *Client) Accounts(sess Session) ([]Account, error) {
	var out accountsResponse
	if _, err := c.do(http.MethodGet, routes["accounts"], &sess, nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// PreferredBalance returns the balance of the preferred account, falling
// back to the first account.
func (c *Client) PreferredBalance(sess Session) (float64, error) {
	accounts, err := c.Accounts(sess)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("capital: no accounts returned")
	}
	for _, a := range accounts {
		if a.Preferred {
			return a.Balance.Balance, nil
		}
	}
	return accounts[0].Balance.Balance, nil
}

// ---- Prices ----

// PricePoint is a bid/ask pair within a historical candle.
type PricePoint struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Candle is one historical OHLC candle in venue format.
type Candle struct {
	SnapshotTime string     `json:"snapshotTime"`
	OpenPrice    PricePoint `json:"openPrice"`
	HighPrice    PricePoint `json:"highPrice"`
	LowPrice     PricePoint `json:"lowPrice"`
	ClosePrice   PricePoint `json:"closePrice"`
}

// MidClose returns the bid/ask midpoint of the candle close.
func (cd *Candle) MidClose() float64 {
	return (cd.ClosePrice.Bid + cd.ClosePrice.Ask) / 2
}

// snapshotTimeLayout is the venue's candle timestamp format (UTC, no
// zone designator).
const snapshotTimeLayout = "2006-01-02T15:04:05"

// Time parses the candle's snapshot timestamp.
func (cd *Candle) Time() (time.Time, error) {
	return time.Parse(snapshotTimeLayout, cd.SnapshotTime)
}

// PriceHistory is the response of the prices endpoint.
type PriceHistory struct {
	Prices []Candle `json:"prices"`
}

// MidCloses returns the midpoint closes, oldest first.
func (h *PriceHistory) MidCloses() []float64 {
	closes := make([]float64, 0, len(h.Prices))
	for _, p := range h.Prices {
		closes = append(closes, p.MidClose())
	}
	return closes
}

// MidClosesSince returns the midpoint closes of candles at or after
// cutoff, oldest first. Candles with unparsable timestamps are skipped:
// a close whose age is unknown must not seed an indicator.
func (h *PriceHistory) MidClosesSince(cutoff time.Time) []float64 {
	closes := make([]float64, 0, len(h.Prices))
	for _, p := range h.Prices {
		ts, err := p.Time()
		if err != nil || ts.Before(cutoff) {
			continue
		}
		closes = append(closes, p.MidClose())
	}
	return closes
}

// Prices fetches up to max historical candles for the epic at the given
// resolution (e.g. "MINUTE_5").
func (c *Client) Prices(sess Session, epic, resolution string, max int) (*PriceHistory, error) {
	path := fmt.Sprintf("%s%s?resolution=%s&max=%d", routes["prices"], epic, resolution, max)
	var out PriceHistory
	if _, err := c.do(http.MethodGet, path, &sess, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Prices) == 0 {
		return nil, fmt.Errorf("capital: no price data returned for %s", epic)
	}
	return &out, nil
}

// ---- Positions ----

// CreatePositionRequest is the order submission payload. Stop and profit
// levels are omitted entirely when nil — the venue treats an explicit
// zero as a level.
type CreatePositionRequest struct {
	Epic           string   `json:"epic"`
	Direction      string   `json:"direction"` // BUY or SELL
	Size           float64  `json:"size"`
	OrderType      string   `json:"orderType"` // MARKET
	CurrencyCode   string   `json:"currencyCode,omitempty"`
	ForceOpen      bool     `json:"forceOpen"`
	GuaranteedStop bool     `json:"guaranteedStop"`
	StopLevel      *float64 `json:"stopLevel,omitempty"`
	ProfitLevel    *float64 `json:"profitLevel,omitempty"`
}

type dealReferenceResponse struct {
	DealReference string `json:"dealReference"`
}

// CreatePosition submits an order and returns the provisional deal
// reference. The authoritative outcome comes from Confirm.
func (c *Client) CreatePosition(sess Session, req CreatePositionRequest) (string, error) {
	var out dealReferenceResponse
	if _, err := c.do(http.MethodPost, routes["positions"], &sess, req, &out); err != nil {
		return "", err
	}
	if out.DealReference == "" {
		return "", fmt.Errorf("capital: submission accepted but no dealReference returned")
	}
	return out.DealReference, nil
}

// ClosePosition requests the close of an open position by deal id and
// returns the close's deal reference for confirmation.
func (c *Client) ClosePosition(sess Session, dealID string) (string, error) {
	var out dealReferenceResponse
	if _, err := c.do(http.MethodDelete, routes["position"]+dealID, &sess, nil, &out); err != nil {
		return "", err
	}
	return out.DealReference, nil
}

// OpenPosition is one venue-held position from the positions list.
type OpenPosition struct {
	Position struct {
		DealID    string  `json:"dealId"`
		Direction string  `json:"direction"`
		Size      float64 `json:"size"`
		Level     float64 `json:"level"`
		StopLevel float64 `json:"stopLevel"`
	} `json:"position"`
	Market struct {
		Epic string `json:"epic"`
	} `json:"market"`
}

type positionsResponse struct {
	Positions []OpenPosition `json:"positions"`
}

// OpenPositions lists the venue's view of open positions. Used by the
// operator reconciliation path after an unknown order outcome.
func (c *Client) OpenPositions(sess Session) ([]OpenPosition, error) {
	var out positionsResponse
	if _, err := c.do(http.MethodGet, routes["positions"], &sess, nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// ---- Confirmation ----

// Confirmation is the venue's authoritative resolution of a submitted
// deal reference.
type Confirmation struct {
	DealID        string  `json:"dealId"`
	DealReference string  `json:"dealReference"`
	DealStatus    string  `json:"dealStatus"` // ACCEPTED or REJECTED
	Status        string  `json:"status"`     // OPEN, CLOSED, ...
	Level         float64 `json:"level"`      // fill price
	Size          float64 `json:"size"`
	Direction     string  `json:"direction"`
	RejectReason  string  `json:"rejectReason"`
}

// Accepted reports whether the deal filled.
func (cf *Confirmation) Accepted() bool { return cf.DealStatus == "ACCEPTED" }

// Confirm fetches the confirmation for a deal reference. A 404 maps to
// ErrConfirmNotFound: the outcome is unknown, not failed.
func (c *Client) Confirm(sess Session, dealReference string) (*Confirmation, error) {
	var out Confirmation
	if _, err := c.do(http.MethodGet, routes["confirms"]+dealReference, &sess, nil, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrConfirmNotFound, dealReference)
		}
		return nil, err
	}
	return &out, nil
}
