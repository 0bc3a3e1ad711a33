package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolioviz/internal/backend/backendtest"
	"github.com/wonny/portfolioviz/internal/backend/cache"
	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/config"
	"github.com/wonny/portfolioviz/pkg/date"
	"github.com/wonny/portfolioviz/pkg/httputil"
	"github.com/wonny/portfolioviz/pkg/logger"
)

func newTestClient(baseURL string) *Client {
	log := logger.NewNop()
	return NewClient(baseURL, httputil.New(config.BackendConfig{Timeout: 5 * time.Second}, log), log)
}

func params(id, from, to string) contracts.Params {
	return contracts.Params{
		PortfolioID: contracts.PortfolioID(id),
		Start:       date.MustParse(from),
		End:         date.MustParse(to),
	}
}

func seededServer() *backendtest.Server {
	srv := backendtest.New()
	srv.AddPortfolio(
		contracts.Portfolio{ID: "1", Name: "portafolio 1"},
		[]contracts.ValuePoint{
			{Date: date.MustParse("2022-01-01"), Amount: 1000},
			{Date: date.MustParse("2022-01-02"), Amount: 1010},
			{Date: date.MustParse("2022-01-03"), Amount: 990},
		},
		[]contracts.WeightRecord{
			contracts.NewWeightRecord(date.MustParse("2022-01-01"), "A", 0.6, "B", 0.4),
			contracts.NewWeightRecord(date.MustParse("2022-01-02"), "A", 0.55, "B", 0.45),
		},
	)
	srv.AddPortfolio(contracts.Portfolio{ID: "2", Name: "portafolio 2"}, nil, nil)
	return srv
}

func TestURLs(t *testing.T) {
	p := params("1", "2022-01-01", "2022-03-15")

	assert.Equal(t, "http://localhost:8000/portfolios/", PortfoliosURL("http://localhost:8000/"))
	assert.Equal(t, "http://localhost:8000/portfolio/1/value?from=2022-01-01&to=2022-03-15", ValuesURL("http://localhost:8000", p))
	assert.Equal(t, "http://localhost:8000/portfolio/1/weights?from=2022-01-01&to=2022-03-15", WeightsURL("http://localhost:8000/", p))

	odd := params("a b/c", "2022-01-01", "2022-01-01")
	assert.Equal(t, "http://h/portfolio/a%20b%2Fc/value?from=2022-01-01&to=2022-01-01", ValuesURL("http://h", odd))
}

func TestListPortfolios(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	list, err := newTestClient(srv.URL).ListPortfolios(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, contracts.Portfolio{ID: "1", Name: "portafolio 1"}, list[0])
}

func TestFetchValues(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	client := newTestClient(srv.URL)

	values, err := client.FetchValues(context.Background(), params("1", "2022-01-02", "2022-01-03"))
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, 1010.0, values[0].Amount)

	single, err := client.FetchValues(context.Background(), params("1", "2022-01-02", "2022-01-02"))
	require.NoError(t, err)
	assert.Len(t, single, 1, "start == end is a valid single-point range")

	empty, err := client.FetchValues(context.Background(), params("2", "2022-01-01", "2022-01-03"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFetchWeights(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	weights, err := newTestClient(srv.URL).FetchWeights(context.Background(), params("1", "2022-01-01", "2022-01-31"))
	require.NoError(t, err)
	require.Len(t, weights, 2)
	assert.Equal(t, []string{"A", "B"}, weights[0].Keys)
}

func TestFetchUnknownPortfolio(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchValues(context.Background(), params("99", "2022-01-01", "2022-01-31"))

	var statusErr *httputil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchMalformed(t *testing.T) {
	srv := seededServer()
	defer srv.Close()
	srv.Break("value")
	srv.Break("weights")

	client := newTestClient(srv.URL)

	_, err := client.FetchValues(context.Background(), params("1", "2022-01-01", "2022-01-31"))
	assert.True(t, errors.Is(err, contracts.ErrMalformed), "got %v", err)

	_, err = client.FetchWeights(context.Background(), params("1", "2022-01-01", "2022-01-31"))
	assert.True(t, errors.Is(err, contracts.ErrMalformed), "got %v", err)
}

func TestFetchTransportError(t *testing.T) {
	srv := seededServer()
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).FetchValues(context.Background(), params("1", "2022-01-01", "2022-01-31"))
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	assert.NoError(t, newTestClient(srv.URL).Ping(context.Background()))
	assert.Error(t, newTestClient(srv.URL+"/nowhere").Ping(context.Background()))
}

func TestSharedInFlightRequests(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Write([]byte(`{"values":[{"date":"2022-01-01","amount":"5.5"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	p := params("1", "2022-01-01", "2022-01-01")

	var wg sync.WaitGroup
	results := make([][]contracts.ValuePoint, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = client.FetchValues(context.Background(), p)
		}(i)
	}

	// let the three callers join the same flight before answering
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, 5.5, r[0].Amount)
	}
}

func TestCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"values":[]}`))
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL).FetchValues(ctx, params("1", "2022-01-01", "2022-01-01"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResponseCache(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	client := newTestClient(srv.URL).WithCache(cache.NewMemory(logger.NewNop()), time.Minute)
	p := params("1", "2022-01-01", "2022-01-31")

	first, err := client.FetchValues(context.Background(), p)
	require.NoError(t, err)
	before := srv.Requests()

	second, err := client.FetchValues(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, before, srv.Requests(), "second fetch served from cache")
	assert.Equal(t, first, second)
}

func TestResponseCache_Weights(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	client := newTestClient(srv.URL).WithCache(cache.NewMemory(logger.NewNop()), time.Minute)
	p := params("1", "2022-01-01", "2022-01-31")

	first, err := client.FetchWeights(context.Background(), p)
	require.NoError(t, err)
	second, err := client.FetchWeights(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first, second, "key order survives the cache round trip")
	assert.Equal(t, []string{"A", "B"}, second[0].Keys)
}

func TestResponseCache_SkipsMalformedPayload(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt64(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"values":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"values":[{"date":"2022-01-01","amount":1000}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL).WithCache(cache.NewMemory(logger.NewNop()), time.Minute)
	p := params("1", "2022-01-01", "2022-01-31")

	_, err := client.FetchValues(context.Background(), p)
	require.True(t, errors.Is(err, contracts.ErrMalformed), "got %v", err)

	// the backend recovered; the same tuple must reach it again
	values, err := client.FetchValues(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []contracts.ValuePoint{{Date: date.MustParse("2022-01-01"), Amount: 1000}}, values)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))

	// and the good payload is now cached
	_, err = client.FetchValues(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestResponseCache_EvictsInvalidEntry(t *testing.T) {
	srv := seededServer()
	defer srv.Close()

	mem := cache.NewMemory(logger.NewNop())
	client := newTestClient(srv.URL).WithCache(mem, time.Minute)
	p := params("1", "2022-01-01", "2022-01-31")

	u := WeightsURL(srv.URL, p)
	require.NoError(t, mem.Set(context.Background(), u, map[string]interface{}{"weights": nil}, time.Minute))

	weights, err := client.FetchWeights(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, weights, 2)
	assert.Equal(t, int64(1), srv.Requests(), "invalid entry replaced by a backend fetch")

	_, err = client.FetchWeights(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), srv.Requests())
}
