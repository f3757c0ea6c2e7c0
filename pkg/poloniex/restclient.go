package poloniex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"chartfeed/internal/market"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrNoCredentials is returned by trading calls on a client without API keys.
var ErrNoCredentials = errors.New("poloniex: api key and secret are required")

type Options struct {
	PublicURL  string
	TradingURL string
	Timeout    time.Duration
	// RateLimit is the number of requests per second shared by all calls.
	RateLimit float64
	APIKey    string
	APISecret string
}

type RESTClient struct {
	publicURL  string
	tradingURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	apiSecret  string

	nonceMu   sync.Mutex
	lastNonce int64
}

func NewRESTClient(opts Options) *RESTClient {
	if opts.PublicURL == "" {
		opts.PublicURL = DefaultPublicURL
	}
	if opts.TradingURL == "" {
		opts.TradingURL = DefaultTradingURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &RESTClient{
		publicURL:  strings.TrimRight(opts.PublicURL, "/"),
		tradingURL: strings.TrimRight(opts.TradingURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
	}
}

// HasCredentials reports whether trading calls can be signed.
func (c *RESTClient) HasCredentials() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// ChartData fetches candles of the given width for pair over [start, end].
func (c *RESTClient) ChartData(ctx context.Context, pair string, freq time.Duration,
	start, end time.Time) ([]market.Candle, error) {
	period, err := ParsePeriod(freq)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("command", "returnChartData")
	q.Set("currencyPair", pair)
	q.Set("period", strconv.FormatInt(period.APIValue, 10))
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))

	var rows []ChartRow
	if err := c.public(ctx, q, &rows); err != nil {
		return nil, err
	}
	return ParseChartRows(rows), nil
}

// Ticker fetches the 24h ticker of every pair.
func (c *RESTClient) Ticker(ctx context.Context) (map[string]market.Ticker, error) {
	q := url.Values{}
	q.Set("command", "returnTicker")

	var raw map[string]TickerRow
	if err := c.public(ctx, q, &raw); err != nil {
		return nil, err
	}
	return ParseTickerRows(raw), nil
}

// Markets lists the coins traded against each primary currency.
func (c *RESTClient) Markets(ctx context.Context) (map[string][]string, error) {
	tickers, err := c.Ticker(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]string, 0, len(tickers))
	for pair := range tickers {
		pairs = append(pairs, pair)
	}
	return market.GroupMarkets(pairs), nil
}

// Balances fetches the complete balance of every currency on the account.
func (c *RESTClient) Balances(ctx context.Context) (map[string]market.Balance, error) {
	var raw map[string]BalanceRow
	if err := c.private(ctx, "returnCompleteBalances", url.Values{}, &raw); err != nil {
		return nil, err
	}
	return ParseBalanceRows(raw)
}

// PlaceOrder places a limit order of amount units of the pair's coin at price.
func (c *RESTClient) PlaceOrder(ctx context.Context, pair string, side market.Side,
	price, amount decimal.Decimal) (market.OrderResult, error) {
	if !price.IsPositive() || !amount.IsPositive() {
		return market.OrderResult{}, fmt.Errorf("price and amount must be positive")
	}
	form := url.Values{}
	form.Set("currencyPair", pair)
	form.Set("rate", price.String())
	form.Set("amount", amount.String())

	var resp OrderResponse
	if err := c.private(ctx, string(side), form, &resp); err != nil {
		return market.OrderResult{}, err
	}
	return resp.toResult(pair, side)
}

func (c *RESTClient) public(ctx context.Context, q url.Values, out any) error {
	endpoint := c.publicURL + "?" + q.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *RESTClient) private(ctx context.Context, command string, form url.Values, out any) error {
	if !c.HasCredentials() {
		return ErrNoCredentials
	}
	form.Set("command", command)
	form.Set("nonce", strconv.FormatInt(c.nonce(), 10))
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tradingURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Sign", Sign(c.apiSecret, body))
	return c.do(req, out)
}

func (c *RESTClient) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if apiErr := errorBody(body); apiErr != nil {
		return apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poloniex error: status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// nonce is strictly increasing across calls, as the trading API requires.
func (c *RESTClient) nonce() int64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := time.Now().UnixMicro()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret, body string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
