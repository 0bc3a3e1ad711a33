package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/httputil"
	"github.com/wonny/portfolioviz/pkg/logger"
)

// Cache is the optional response cache (pkg/redis.Cache satisfies it)
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Client reads portfolios and series from the remote portfolio backend
// ⭐ SSOT: 백엔드 URL 규칙과 응답 형식은 여기서만 다룸
type Client struct {
	baseURL string
	http    *httputil.Client
	logger  *logger.Logger

	group    singleflight.Group
	cache    Cache
	cacheTTL time.Duration
}

var (
	_ contracts.SeriesFetcher   = (*Client)(nil)
	_ contracts.PortfolioLister = (*Client)(nil)
)

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  log.Component("backend"),
	}
}

// WithCache enables the response cache for series payloads
func (c *Client) WithCache(cache Cache, ttl time.Duration) *Client {
	c.cache = cache
	c.cacheTTL = ttl
	return c
}

// BaseURL returns the configured backend root
func (c *Client) BaseURL() string { return c.baseURL }

// PortfoliosURL builds GET /portfolios/
func PortfoliosURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/portfolios/"
}

// ValuesURL builds GET /portfolio/{id}/value?from=&to=
func ValuesURL(baseURL string, p contracts.Params) string {
	return seriesURL(baseURL, p, "value")
}

// WeightsURL builds GET /portfolio/{id}/weights?from=&to=
func WeightsURL(baseURL string, p contracts.Params) string {
	return seriesURL(baseURL, p, "weights")
}

func seriesURL(baseURL string, p contracts.Params, resource string) string {
	q := url.Values{}
	q.Set("from", p.Start.String())
	q.Set("to", p.End.String())

	return fmt.Sprintf("%s/portfolio/%s/%s?%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(string(p.PortfolioID)),
		resource,
		q.Encode(),
	)
}

type portfoliosResponse struct {
	Instances *[]contracts.Portfolio `json:"instances"`
}

type valuesResponse struct {
	Values *[]contracts.ValuePoint `json:"values"`
}

type weightsResponse struct {
	Weights *[]contracts.WeightRecord `json:"weights"`
}

// Ping checks that the backend answers GET /ping/
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/ping/")
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping backend: %w", &httputil.StatusError{URL: c.baseURL + "/ping/", StatusCode: resp.StatusCode})
	}
	return nil
}

// ListPortfolios fetches the portfolio list
func (c *Client) ListPortfolios(ctx context.Context) ([]contracts.Portfolio, error) {
	var resp portfoliosResponse
	if err := c.getJSON(ctx, PortfoliosURL(c.baseURL), &resp); err != nil {
		return nil, err
	}
	if resp.Instances == nil {
		return nil, fmt.Errorf("%w: portfolios response without instances", contracts.ErrMalformed)
	}
	return *resp.Instances, nil
}

// FetchValues fetches the value series for p
func (c *Client) FetchValues(ctx context.Context, p contracts.Params) ([]contracts.ValuePoint, error) {
	u := ValuesURL(c.baseURL, p)

	v, err := c.shared(ctx, u, func(ctx context.Context) (interface{}, error) {
		var resp valuesResponse
		err := c.cached(ctx, u, &resp, func() error {
			if resp.Values == nil {
				return fmt.Errorf("%w: value response without values", contracts.ErrMalformed)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return *resp.Values, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]contracts.ValuePoint), nil
}

// FetchWeights fetches the weight series for p
func (c *Client) FetchWeights(ctx context.Context, p contracts.Params) ([]contracts.WeightRecord, error) {
	u := WeightsURL(c.baseURL, p)

	v, err := c.shared(ctx, u, func(ctx context.Context) (interface{}, error) {
		var resp weightsResponse
		err := c.cached(ctx, u, &resp, func() error {
			if resp.Weights == nil {
				return fmt.Errorf("%w: weight response without weights", contracts.ErrMalformed)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return *resp.Weights, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]contracts.WeightRecord), nil
}

// shared collapses identical in-flight GETs. The shared call runs detached from the
// caller's cancellation (the HTTP timeout still bounds it) so one caller leaving does
// not fail the others; the caller itself returns as soon as its own ctx is done.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.WithField("url", key).Debug("Shared in-flight backend request")
		}
		return res.Val, res.Err
	}
}

// cached consults the response cache before hitting the backend. check validates the
// decoded dest; only payloads that pass it are written to the cache, and a cached
// payload that fails it is evicted and fetched again.
func (c *Client) cached(ctx context.Context, u string, dest interface{}, check func() error) error {
	if c.cache == nil {
		if err := c.getJSON(ctx, u, dest); err != nil {
			return err
		}
		return check()
	}

	found, err := c.cache.Get(ctx, u, dest)
	if err != nil {
		c.logger.WithError(err).WithField("url", u).Warn("Response cache read failed")
	}
	if found {
		if err := check(); err == nil {
			return nil
		}
		c.logger.WithField("url", u).Warn("Evicting invalid cached response")
		if err := c.cache.Delete(ctx, u); err != nil {
			c.logger.WithError(err).WithField("url", u).Warn("Response cache delete failed")
		}
	}

	if err := c.getJSON(ctx, u, dest); err != nil {
		return err
	}
	if err := check(); err != nil {
		return err
	}

	if err := c.cache.Set(ctx, u, dest, c.cacheTTL); err != nil {
		c.logger.WithError(err).WithField("url", u).Warn("Response cache write failed")
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, dest interface{}) error {
	err := c.http.GetJSON(ctx, u, dest)
	if err == nil {
		return nil
	}

	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) || errors.Is(err, contracts.ErrMalformed) {
		return err
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", contracts.ErrMalformed, err)
	}
	return fmt.Errorf("GET %s: %w", u, err)
}
