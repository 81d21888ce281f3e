package geckoterminal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/breaker"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/ratelimit"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/retry"
)

// Client is the real upstream HTTP client. It holds a single shared
// *http.Client for the process lifetime (scoped acquisition with guaranteed
// release on Close), and routes every request through
// the shared rate limiter, circuit breaker, and retry policy before issuing
// it.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *ratelimit.Limiter
	breaker     *breaker.Breaker
	retryPolicy retry.Policy
}

// NewClient constructs a Client sharing limiter and br across every call;
// both are constructed once at startup and injected.
func NewClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, br *breaker.Breaker, retryPolicy retry.Policy) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		limiter:     limiter,
		breaker:     br,
		retryPolicy: retryPolicy,
	}
}

// Close releases the client's idle connections. Present so callers can
// treat Client like any other scoped resource with a guaranteed release.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// get issues one GET request, retried per c.retryPolicy, through the rate
// limiter and circuit breaker, decoding the JSON body into out on success
// and classifying any failure into the shared error taxonomy.
func (c *Client) get(ctx context.Context, endpointKey, path string, query url.Values, out any) error {
	return retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		return c.attempt(ctx, endpointKey, path, query, out)
	})
}

// attempt issues a single GET request through the rate limiter and circuit
// breaker, without retrying.
func (c *Client) attempt(ctx context.Context, endpointKey, path string, query url.Values, out any) error {
	ok, err := c.breaker.Allow()
	if !ok {
		return err
	}

	if err := c.limiter.Wait(ctx, endpointKey); err != nil {
		c.breaker.RecordResult(err)
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cerr := errs.Wrap(errs.KindConfiguration, "geckoterminal", endpointKey, err)
		c.breaker.RecordResult(cerr)
		return cerr
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		cerr := classifyTransportError(endpointKey, err)
		c.breaker.RecordResult(cerr)
		return cerr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.NotifyRateLimited(endpointKey, time.Duration(retryAfter*float64(time.Second)))
		cerr := errs.New(errs.KindRateLimit, "geckoterminal", endpointKey, "429 from upstream").WithRetryAfter(retryAfter)
		c.breaker.RecordResult(cerr)
		return cerr
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		cerr := errs.New(errs.KindAuthentication, "geckoterminal", endpointKey, fmt.Sprintf("status %d", resp.StatusCode))
		c.breaker.RecordResult(cerr)
		return cerr
	}
	if resp.StatusCode >= 500 {
		cerr := errs.New(errs.KindServerError, "geckoterminal", endpointKey, fmt.Sprintf("status %d", resp.StatusCode))
		c.breaker.RecordResult(cerr)
		return cerr
	}
	if resp.StatusCode >= 400 {
		cerr := errs.New(errs.KindValidation, "geckoterminal", endpointKey, fmt.Sprintf("status %d", resp.StatusCode))
		c.breaker.RecordResult(cerr)
		return cerr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			cerr := errs.Wrap(errs.KindParsing, "geckoterminal", endpointKey, err)
			c.breaker.RecordResult(cerr)
			return cerr
		}
	}
	c.breaker.RecordResult(nil)
	return nil
}

func classifyTransportError(endpointKey string, err error) *errs.Error {
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return errs.Wrap(errs.KindTimeout, "geckoterminal", endpointKey, err)
	}
	return errs.Wrap(errs.KindConnection, "geckoterminal", endpointKey, err)
}

func parseRetryAfter(v string) float64 {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t).Seconds()
	}
	return 0
}

func (c *Client) ListNetworks(ctx context.Context) ([]NetworkDTO, error) {
	var body struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.get(ctx, "list_networks", "/networks", nil, &body); err != nil {
		return nil, err
	}
	out := make([]NetworkDTO, 0, len(body.Data))
	for _, d := range body.Data {
		out = append(out, NetworkDTO{ID: d.ID, Name: d.Attributes.Name})
	}
	return out, nil
}

func (c *Client) ListDexes(ctx context.Context, network string) ([]DexDTO, error) {
	var body struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/networks/%s/dexes", network)
	if err := c.get(ctx, "list_dexes", path, nil, &body); err != nil {
		return nil, err
	}
	out := make([]DexDTO, 0, len(body.Data))
	for _, d := range body.Data {
		out = append(out, DexDTO{ID: d.ID, Name: d.Attributes.Name})
	}
	return out, nil
}

func (c *Client) TopPools(ctx context.Context, network string) ([]PoolDTO, error) {
	path := fmt.Sprintf("/networks/%s/pools", network)
	return c.fetchPools(ctx, "top_pools", path, nil)
}

func (c *Client) TopPoolsForDex(ctx context.Context, network, dex string) ([]PoolDTO, error) {
	path := fmt.Sprintf("/networks/%s/dexes/%s/pools", network, dex)
	return c.fetchPools(ctx, "top_pools_for_dex", path, nil)
}

func (c *Client) MultiPools(ctx context.Context, network string, ids []string) ([]PoolDTO, error) {
	path := fmt.Sprintf("/networks/%s/pools/multi/%s", network, strings.Join(ids, ","))
	return c.fetchPools(ctx, "multi_pools", path, nil)
}

func (c *Client) NewPools(ctx context.Context, network string, page int) ([]PoolDTO, error) {
	path := fmt.Sprintf("/networks/%s/new_pools", network)
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	return c.fetchPools(ctx, "new_pools", path, q)
}

func (c *Client) fetchPools(ctx context.Context, endpointKey, path string, query url.Values) ([]PoolDTO, error) {
	var body struct {
		Data []poolResource `json:"data"`
	}
	if err := c.get(ctx, endpointKey, path, query, &body); err != nil {
		return nil, err
	}
	out := make([]PoolDTO, 0, len(body.Data))
	for _, d := range body.Data {
		out = append(out, d.toDTO())
	}
	return out, nil
}

func (c *Client) PoolByAddress(ctx context.Context, network, address string) (*PoolDTO, error) {
	path := fmt.Sprintf("/networks/%s/pools/%s", network, address)
	var body struct {
		Data poolResource `json:"data"`
	}
	if err := c.get(ctx, "pool_by_address", path, nil, &body); err != nil {
		return nil, err
	}
	dto := body.Data.toDTO()
	return &dto, nil
}

func (c *Client) OHLCV(ctx context.Context, network, poolAddress string, tf Timeframe, params OHLCVParams) ([]CandleDTO, error) {
	path := fmt.Sprintf("/networks/%s/pools/%s/ohlcv/%s", network, poolAddress, tf)
	q := url.Values{}
	if params.Aggregate > 0 {
		q.Set("aggregate", strconv.Itoa(params.Aggregate))
	}
	if params.BeforeTimestamp > 0 {
		q.Set("before_timestamp", strconv.FormatInt(params.BeforeTimestamp, 10))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Currency != "" {
		q.Set("currency", params.Currency)
	}
	if params.IncludeEmptyIntervals {
		q.Set("include_empty_intervals", "true")
	}
	if params.Token != "" {
		q.Set("token", params.Token)
	}

	var body struct {
		Data struct {
			Attributes struct {
				OHLCVList [][6]float64 `json:"ohlcv_list"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.get(ctx, "ohlcv", path, q, &body); err != nil {
		return nil, err
	}
	out := make([]CandleDTO, 0, len(body.Data.Attributes.OHLCVList))
	for _, row := range body.Data.Attributes.OHLCVList {
		out = append(out, CandleDTO{
			TimestampUnix: int64(row[0]),
			Open:          row[1],
			High:          row[2],
			Low:           row[3],
			Close:         row[4],
			VolumeUSD:     row[5],
		})
	}
	return out, nil
}

func (c *Client) Trades(ctx context.Context, network, poolAddress string, params TradesParams) ([]TradeDTO, error) {
	path := fmt.Sprintf("/networks/%s/pools/%s/trades", network, poolAddress)
	q := url.Values{}
	if params.MinVolumeUSD > 0 {
		q.Set("trade_volume_in_usd_greater_than", strconv.FormatFloat(params.MinVolumeUSD, 'f', -1, 64))
	}
	var body struct {
		Data []struct {
			ID         string   `json:"id"`
			Attributes TradeDTO `json:"attributes"`
		} `json:"data"`
	}
	if err := c.get(ctx, "trades", path, q, &body); err != nil {
		return nil, err
	}
	out := make([]TradeDTO, 0, len(body.Data))
	for _, d := range body.Data {
		t := d.Attributes
		t.ID = d.ID
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) TokenInfo(ctx context.Context, network, address string) (*TokenDTO, error) {
	path := fmt.Sprintf("/networks/%s/tokens/%s/info", network, address)
	var body struct {
		Data struct {
			ID         string   `json:"id"`
			Attributes TokenDTO `json:"attributes"`
		} `json:"data"`
	}
	if err := c.get(ctx, "token_info", path, nil, &body); err != nil {
		return nil, err
	}
	tok := body.Data.Attributes
	tok.ID = body.Data.ID
	tok.Network = network
	return &tok, nil
}

// poolResource mirrors the JSON:API-shaped pool resource the upstream
// returns; toDTO flattens it into the plain PoolDTO collectors consume.
type poolResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name              string  `json:"name"`
		Address           string  `json:"address"`
		ReserveUSD        float64 `json:"reserve_in_usd,string"`
		Volume24h         float64 `json:"volume_usd_24h,string"`
		BaseTokenPriceUSD float64 `json:"base_token_price_usd,string"`
		CreatedAt         string  `json:"pool_created_at"`
	} `json:"attributes"`
	Relationships struct {
		Dex struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"dex"`
		BaseToken struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"base_token"`
		QuoteToken struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"quote_token"`
	} `json:"relationships"`
}

func (p poolResource) toDTO() PoolDTO {
	return PoolDTO{
		ID:                p.ID,
		Address:           p.Attributes.Address,
		Name:              p.Attributes.Name,
		DexID:             p.Relationships.Dex.Data.ID,
		BaseToken:         TokenDTO{ID: p.Relationships.BaseToken.Data.ID},
		QuoteToken:        TokenDTO{ID: p.Relationships.QuoteToken.Data.ID},
		ReserveUSD:        p.Attributes.ReserveUSD,
		Volume24h:         p.Attributes.Volume24h,
		BaseTokenPriceUSD: p.Attributes.BaseTokenPriceUSD,
		CreatedAt:         p.Attributes.CreatedAt,
	}
}
