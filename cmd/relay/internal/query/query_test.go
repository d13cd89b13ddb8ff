package query_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/relay/internal/query"
	"github.com/shok8899/hq11/cmd/relay/internal/store"
	"github.com/shok8899/hq11/cmd/relay/internal/symbols"
	"github.com/shok8899/hq11/pkg/config"
	"github.com/shok8899/hq11/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seeded() (*store.Store, *query.Service) {
	s := store.New()
	s.Upsert("BTCUSD", models.PriceRecord{Symbol: "BTCUSD", Bid: "27000.00000000", Ask: "27000.00001000", Volume: "1", CapturedAtMillis: 1})
	s.Upsert("ETHUSD", models.PriceRecord{Symbol: "ETHUSD", Bid: "1650.00000000", Ask: "1650.00001000", Volume: "2", CapturedAtMillis: 2})
	return s, query.NewService(s, symbols.NewNormalizer(config.DefaultMapping))
}

func TestService_ListSymbols(t *testing.T) {
	_, svc := seeded()
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, svc.ListSymbols())

	empty := query.NewService(store.New(), nil)
	assert.Equal(t, []string{}, empty.ListSymbols())
}

func TestService_GetPrice(t *testing.T) {
	_, svc := seeded()

	rec, ok := svc.GetPrice("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, "27000.00000000", rec.Bid)

	viaUpstream, ok := svc.GetPrice("BTCUSDT")
	require.True(t, ok, "upstream identifiers should resolve through the normalizer")
	assert.Equal(t, rec, viaUpstream)

	_, ok = svc.GetPrice("UNKNOWN")
	assert.False(t, ok)
}

func TestService_GetPrices_SkipsUnknown(t *testing.T) {
	_, svc := seeded()
	got := svc.GetPrices([]string{"ETHUSDT", "NOPE", "BTCUSD"})
	require.Len(t, got, 2)
	assert.Equal(t, "ETHUSD", got[0].Symbol)
	assert.Equal(t, "BTCUSD", got[1].Symbol)
}

func newRouter(svc *query.Service, rl config.RateLimitConfig) *gin.Engine {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("relay_subscribers 0\n"))
	})
	return query.NewRouter(query.NewHandler(svc, zap.NewNop(), metrics), rl)
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5555"
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Symbols(t *testing.T) {
	_, svc := seeded()
	w := get(t, newRouter(svc, config.RateLimitConfig{}), "/symbols")

	require.Equal(t, http.StatusOK, w.Code)
	var syms []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &syms))
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, syms)
}

func TestHandler_Price(t *testing.T) {
	_, svc := seeded()
	r := newRouter(svc, config.RateLimitConfig{})

	w := get(t, r, "/price/btcusd")
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.PriceRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "BTCUSD", rec.Symbol)
	assert.Equal(t, "27000.00001000", rec.Ask)
	assert.Contains(t, w.Body.String(), `"timestamp":1`)

	w = get(t, r, "/price/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Symbol not found"}`, w.Body.String())
}

func TestHandler_Prices(t *testing.T) {
	_, svc := seeded()
	r := newRouter(svc, config.RateLimitConfig{})

	var all []models.PriceRecord
	w := get(t, r, "/api/v1/prices")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	var some []models.PriceRecord
	w = get(t, r, "/api/v1/prices?symbols=ethusdt,,unknown")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &some))
	require.Len(t, some, 1)
	assert.Equal(t, "ETHUSD", some[0].Symbol)
}

func TestHandler_EmptyStoreReturnsEmptyArrays(t *testing.T) {
	svc := query.NewService(store.New(), nil)
	r := newRouter(svc, config.RateLimitConfig{})

	assert.Equal(t, "[]", get(t, r, "/symbols").Body.String())
	assert.Equal(t, "[]", get(t, r, "/api/v1/prices").Body.String())
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	_, svc := seeded()
	r := newRouter(svc, config.RateLimitConfig{})

	w := get(t, r, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","symbols":2}`, w.Body.String())

	w = get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relay_subscribers")
}

func TestHandler_RateLimit(t *testing.T) {
	_, svc := seeded()
	r := newRouter(svc, config.RateLimitConfig{Enabled: true, QPS: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, get(t, r, "/symbols").Code)
	assert.Equal(t, http.StatusOK, get(t, r, "/symbols").Code)

	w := get(t, r, "/symbols")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	other := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	r.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code, "limits are per client IP")
}
