// Package rit talks to the RIT Client REST API and its quote feed.
package rit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/news"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxRetries = 3

// Conversion names the lease tickers that create and redeem the composite.
// Legs are the basket instruments a creation consumes.
type Conversion struct {
	Creation   string
	Redemption string
	Legs       []string
}

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Conversion        Conversion
}

// Case is the simulation clock.
type Case struct {
	Name           string `json:"name"`
	Period         int    `json:"period"`
	Tick           int    `json:"tick"`
	TicksPerPeriod int    `json:"ticks_per_period"`
	Status         string `json:"status"`
}

type Security struct {
	Ticker   string  `json:"ticker"`
	Type     string  `json:"type"`
	Position float64 `json:"position"`
	Last     float64 `json:"last"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
	Currency string  `json:"currency"`
	Size     int     `json:"size,omitempty"`
}

// Quote converts the venue row into the decision engine's view.
func (s Security) Quote() models.Quote {
	return models.Quote{
		Ticker:     s.Ticker,
		Bid:        s.Bid,
		Ask:        s.Ask,
		Last:       s.Last,
		Position:   int(s.Position),
		Currency:   s.Currency,
		Multiplier: s.Size,
	}
}

type lease struct {
	ID     int    `json:"id"`
	Ticker string `json:"ticker"`
}

// APIError is a non-2xx venue response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rit api status %d", e.Status)
	}
	return fmt.Sprintf("rit api status %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	limiter    *rate.Limiter
	conversion Conversion
	logger     *logrus.Logger

	mu     sync.Mutex
	leases map[string]int
}

func NewClient(cfg Config, auth Authenticator, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		auth:       auth,
		limiter:    rate.NewLimiter(limit, burst),
		conversion: cfg.Conversion,
		logger:     logger,
		leases:     make(map[string]int),
	}
}

func (c *Client) GetCase(ctx context.Context) (Case, error) {
	var out Case
	err := c.do(ctx, http.MethodGet, "/v1/case", nil, &out)
	return out, err
}

func (c *Client) GetSecurities(ctx context.Context) ([]Security, error) {
	var out []Security
	err := c.do(ctx, http.MethodGet, "/v1/securities", nil, &out)
	return out, err
}

// GetSnapshot returns a snapshot of exactly ids at the current tick. Any
// transport failure or missing instrument yields ErrDataUnavailable.
func (c *Client) GetSnapshot(ctx context.Context, ids []string) (models.Snapshot, error) {
	cs, err := c.GetCase(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	secs, err := c.GetSecurities(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", models.ErrDataUnavailable, err)
	}
	quotes := make([]models.Quote, 0, len(secs))
	for _, s := range secs {
		quotes = append(quotes, s.Quote())
	}
	return models.NewSnapshot(cs.Tick, quotes).Subset(ids)
}

// GetNews returns news items oldest first.
func (c *Client) GetNews(ctx context.Context) ([]news.Item, error) {
	var items []news.Item
	if err := c.do(ctx, http.MethodGet, "/v1/news", nil, &items); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (c *Client) NewsVolatilities(ctx context.Context) ([]float64, error) {
	items, err := c.GetNews(ctx)
	if err != nil {
		return nil, err
	}
	return news.Volatilities(items), nil
}

// SubmitOrder places one order. Venue refusals come back as
// *models.RejectedError.
func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) error {
	q := url.Values{}
	q.Set("ticker", req.Ticker)
	q.Set("type", string(req.Type))
	q.Set("quantity", strconv.Itoa(req.Quantity))
	q.Set("action", string(req.Side))
	if req.Type == models.OrderTypeLimit {
		q.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}

	err := c.do(ctx, http.MethodPost, "/v1/orders", q, nil)
	if err == nil {
		c.logger.WithFields(logrus.Fields{
			"ticker":   req.Ticker,
			"side":     req.Side,
			"quantity": req.Quantity,
		}).Debug("Order accepted")
		return nil
	}
	return rejection(req.Ticker, err)
}

// SubmitConversion runs the creation lease (fromBasket) or the redemption
// lease for qty units of instrument.
func (c *Client) SubmitConversion(ctx context.Context, fromBasket bool, instrument string, qty int) error {
	ticker := c.conversion.Redemption
	from := []string{instrument}
	if fromBasket {
		ticker = c.conversion.Creation
		from = c.conversion.Legs
	}
	if ticker == "" {
		return rejection(instrument, errors.New("no conversion lease configured"))
	}

	id, err := c.lease(ctx, ticker)
	if err != nil {
		return rejection(instrument, err)
	}

	q := url.Values{}
	for i, t := range from {
		n := strconv.Itoa(i + 1)
		q.Set("from"+n, t)
		q.Set("quantity"+n, strconv.Itoa(qty))
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/leases/%d", id), q, nil); err != nil {
		return rejection(instrument, err)
	}
	c.logger.WithFields(logrus.Fields{
		"lease":       ticker,
		"instrument":  instrument,
		"quantity":    qty,
		"from_basket": fromBasket,
	}).Info("Conversion submitted")
	return nil
}

// lease returns the id of the held lease for ticker, leasing it first when
// needed.
func (c *Client) lease(ctx context.Context, ticker string) (int, error) {
	c.mu.Lock()
	id, ok := c.leases[ticker]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var held []lease
	if err := c.do(ctx, http.MethodGet, "/v1/leases", nil, &held); err != nil {
		return 0, err
	}
	found := false
	for _, l := range held {
		if l.Ticker == ticker {
			id, found = l.ID, true
			break
		}
	}
	if !found {
		var l lease
		q := url.Values{"ticker": {ticker}}
		if err := c.do(ctx, http.MethodPost, "/v1/leases", q, &l); err != nil {
			return 0, err
		}
		id = l.ID
	}

	c.mu.Lock()
	c.leases[ticker] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return err
		}
		if c.auth != nil {
			if err := c.auth.AddAuthHeaders(req); err != nil {
				return err
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s response: %w", path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			wait := retryAfter(body)
			c.logger.WithFields(logrus.Fields{
				"path": path,
				"wait": wait.String(),
			}).Warn("Rate limited by venue")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(body, apiErr)
			return apiErr
		}
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}
}

func retryAfter(body []byte) time.Duration {
	var v struct {
		Wait float64 `json:"wait"`
	}
	if err := json.Unmarshal(body, &v); err != nil || v.Wait <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(v.Wait * float64(time.Second))
}

func rejection(ticker string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &models.RejectedError{Ticker: ticker, Reason: apiErr.Message}
	}
	return &models.RejectedError{Ticker: ticker, Reason: err.Error()}
}
