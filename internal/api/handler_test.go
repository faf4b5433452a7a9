package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/shipping-rates/internal/calculator"
	"github.com/eugenenazirov/shipping-rates/internal/carrier"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router  http.Handler
	clock   *controllableClock
	carrier *carrier.Static
	store   *settings.Store
}

func defaultQuotes() []carrier.RateQuote {
	return []carrier.RateQuote{
		{ServiceCode: "1", ServiceName: "Priority Mail", Price: 560},
		{ServiceCode: "3", ServiceName: "Priority Mail Express", Price: 999},
	}
}

func newTestEnv(t *testing.T, opts ...RouterOption) *testEnv {
	t.Helper()

	store := settings.NewStore()
	client := carrier.NewStatic("usps", carrier.USPSServiceCodes, defaultQuotes()...)
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	logger := zaptest.NewLogger(t)

	registry := calculator.NewCarrierRegistry(client, store, logger, calculator.Variants())
	handler := NewHandler(registry, store, shipment.NewBuilder(store, units.Imperial), WithClock(clock.Now))
	opts = append([]RouterOption{WithLogging(false), WithRateLimit(0, 0)}, opts...)

	return &testEnv{
		router:  NewRouter(handler, logger, opts...),
		clock:   clock,
		carrier: client,
		store:   store,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body []byte
	switch p := payload.(type) {
	case nil:
	case string:
		body = []byte(p)
	default:
		var err error
		if body, err = json.Marshal(p); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func testOrder() map[string]any {
	return map[string]any{
		"id": "R100",
		"lineItems": []map[string]any{
			{"sku": "MUG", "quantity": 2, "weight": "1"},
			{"sku": "TEE", "quantity": 2, "weight": 2},
		},
		"shipAddress":   map[string]any{"zipcode": "20814", "country": "US"},
		"stockLocation": map[string]any{"zipcode": "10001", "country": "US"},
	}
}

type quoteBody struct {
	Method struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"method"`
	Available bool `json:"available"`
	Price     *struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"price"`
	Package struct {
		Weight string `json:"weight"`
		Unit   string `json:"unit"`
		Items  int    `json:"items"`
	} `json:"package"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var body T
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeBody[struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}](t, rec)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", env.clock.Now(), body.Timestamp)
	}
}

type settingsBody struct {
	Units          string    `json:"units"`
	WeightUnit     string    `json:"weightUnit"`
	UnitMultiplier string    `json:"unitMultiplier"`
	HandlingFee    int64     `json:"handlingFee"`
	Currency       string    `json:"currency"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Message        string    `json:"message"`
}

func TestGetSettingsReturnsDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeBody[settingsBody](t, rec)
	if body.Units != "imperial" || body.WeightUnit != "oz" || body.UnitMultiplier != "1" || body.HandlingFee != 0 || body.Currency != "USD" {
		t.Fatalf("unexpected default settings: %+v", body)
	}
	if !body.UpdatedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", env.clock.Now(), body.UpdatedAt)
	}
}

func TestPutSettingsSwapsSettings(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Advance(time.Minute)

	rec := env.do(t, http.MethodPut, "/api/settings", map[string]any{"handlingFee": 100, "currency": "usd"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[settingsBody](t, rec)
	if body.HandlingFee != 100 || body.Currency != "USD" || body.Units != "imperial" {
		t.Fatalf("unexpected settings after update: %+v", body)
	}
	if body.Message == "" {
		t.Fatalf("expected confirmation message")
	}
	if !body.UpdatedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected updatedAt to move to %s, got %s", env.clock.Now(), body.UpdatedAt)
	}
	if env.store.Current().HandlingFee != 100 {
		t.Fatalf("expected store to hold the new fee")
	}

	rec = env.do(t, http.MethodPost, "/api/quote", map[string]any{"method": "usps_express_mail", "order": testOrder()})
	quote := decodeBody[quoteBody](t, rec)
	if quote.Price == nil || quote.Price.Amount != "10.99" {
		t.Fatalf("expected fee to apply to later quotes, got %+v", quote.Price)
	}
}

func TestPutSettingsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{name: "malformed json", payload: "{"},
		{name: "unknown units", payload: map[string]any{"units": "stones"}},
		{name: "zero multiplier", payload: map[string]any{"unitMultiplier": "0"}},
		{name: "negative fee", payload: map[string]any{"handlingFee": -5}},
		{name: "bad currency", payload: map[string]any{"currency": "dollars"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPut, "/api/settings", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			cur := env.store.Current()
			if cur.Units != units.Imperial || !cur.UnitMultiplier.Equal(settings.Default().UnitMultiplier) || cur.HandlingFee != 0 || cur.Currency != "USD" {
				t.Fatalf("expected settings to stay unchanged, got %+v", cur)
			}
		})
	}
}

func TestShippingMethodsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/shipping-methods", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeBody[struct {
		Methods []struct {
			Key           string `json:"key"`
			Name          string `json:"name"`
			ServiceCode   string `json:"serviceCode"`
			International bool   `json:"international"`
		} `json:"methods"`
	}](t, rec)
	if len(body.Methods) != len(calculator.Variants()) {
		t.Fatalf("expected %d methods, got %d", len(calculator.Variants()), len(body.Methods))
	}
	for _, m := range body.Methods {
		if m.Key == "usps_express_mail" && (m.ServiceCode != "dom:3" || m.Name != "USPS Express Mail") {
			t.Fatalf("unexpected express mail entry: %+v", m)
		}
	}
}

func TestQuoteReturnsPrice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/quote", map[string]any{"method": "usps_express_mail", "order": testOrder()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[quoteBody](t, rec)
	if !body.Available || body.Price == nil {
		t.Fatalf("expected a price, got %+v", body)
	}
	if body.Price.Amount != "9.99" || body.Price.Currency != "USD" {
		t.Fatalf("expected 9.99 USD, got %+v", body.Price)
	}
	if body.Package.Weight != "6" || body.Package.Unit != "oz" || body.Package.Items != 2 {
		t.Fatalf("unexpected package summary: %+v", body.Package)
	}
	if body.Method.Key != "usps_express_mail" {
		t.Fatalf("unexpected method %+v", body.Method)
	}
}

func TestQuoteReportsAbsentRate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/quote", map[string]any{"method": "usps_media_mail", "order": testOrder()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeBody[quoteBody](t, rec)
	if body.Available || body.Price != nil {
		t.Fatalf("expected no price for an unquoted method, got %+v", body)
	}
}

func TestQuoteErrorMapping(t *testing.T) {
	emptyOrder := testOrder()
	emptyOrder["lineItems"] = []any{}

	noCountry := testOrder()
	noCountry["shipAddress"] = map[string]any{"zipcode": "20814"}

	noOrigin := testOrder()
	noOrigin["stockLocation"] = map[string]any{"zipcode": "10001"}

	badItem := testOrder()
	badItem["lineItems"] = []map[string]any{{"quantity": 0, "weight": "1"}}

	tests := []struct {
		name       string
		payload    any
		carrierErr error
		wantStatus int
		wantError  string
	}{
		{name: "malformed json", payload: "not json", wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "missing method", payload: map[string]any{"order": testOrder()}, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "unknown method", payload: map[string]any{"method": "pigeon", "order": testOrder()}, wantStatus: http.StatusNotFound, wantError: "Unknown shipping method"},
		{name: "empty order", payload: map[string]any{"method": "usps_express_mail", "order": emptyOrder}, wantStatus: http.StatusBadRequest, wantError: "Invalid order"},
		{name: "missing destination", payload: map[string]any{"method": "usps_express_mail", "order": noCountry}, wantStatus: http.StatusBadRequest, wantError: "Invalid order"},
		{name: "missing origin", payload: map[string]any{"method": "usps_express_mail", "order": noOrigin}, wantStatus: http.StatusBadRequest, wantError: "Invalid order"},
		{name: "invalid line item", payload: map[string]any{"method": "usps_express_mail", "order": badItem}, wantStatus: http.StatusBadRequest, wantError: "Invalid order"},
		{name: "carrier unavailable", payload: map[string]any{"method": "usps_express_mail", "order": testOrder()}, carrierErr: carrier.ErrCarrierUnavailable, wantStatus: http.StatusBadGateway, wantError: "Carrier unavailable"},
		{name: "malformed response", payload: map[string]any{"method": "usps_express_mail", "order": testOrder()}, carrierErr: carrier.ErrMalformedResponse, wantStatus: http.StatusBadGateway, wantError: "Malformed carrier response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.carrier.Err = tt.carrierErr

			rec := env.do(t, http.MethodPost, "/api/quote", tt.payload)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if body := decodeBody[errorBody](t, rec); body.Error != tt.wantError {
				t.Fatalf("expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestQuoteInvalidUnitConfiguration(t *testing.T) {
	store := settings.NewStore()
	broken := settings.Default()
	broken.Units = "stones"

	client := carrier.NewStatic("usps", carrier.USPSServiceCodes, defaultQuotes()...)
	logger := zaptest.NewLogger(t)
	registry := calculator.NewCarrierRegistry(client, store, logger, calculator.Variants())
	handler := NewHandler(registry, store, shipment.NewBuilder(settings.Static(broken), units.Imperial))
	router := NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))

	payload, _ := json.Marshal(map[string]any{"method": "usps_express_mail", "order": testOrder()})
	req := httptest.NewRequest(http.MethodPost, "/api/quote", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if client.Calls() != 0 {
		t.Fatalf("expected no carrier call, got %d", client.Calls())
	}
}

func TestShippingRatesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/shipping-rates", map[string]any{"order": testOrder()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[struct {
		Rates []struct {
			Method struct {
				Key string `json:"key"`
			} `json:"method"`
			Price struct {
				Amount string `json:"amount"`
			} `json:"price"`
		} `json:"rates"`
	}](t, rec)

	want := map[string]string{
		"usps_priority_mail": "5.60",
		"usps_express_mail":  "9.99",
	}
	if len(body.Rates) != len(want) {
		t.Fatalf("expected %d rates, got %+v", len(want), body.Rates)
	}
	for _, r := range body.Rates {
		if want[r.Method.Key] != r.Price.Amount {
			t.Fatalf("unexpected rate for %s: %s", r.Method.Key, r.Price.Amount)
		}
	}
}

func TestShippingRatesFailsWholeCallOnCarrierError(t *testing.T) {
	env := newTestEnv(t)
	env.carrier.Err = carrier.ErrCarrierUnavailable

	rec := env.do(t, http.MethodPost, "/api/shipping-rates", map[string]any{"order": testOrder()})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
}

// settingsSwappingCarrier updates the store's handling fee while a lookup is
// in flight.
type settingsSwappingCarrier struct {
	*carrier.Static
	store *settings.Store
	fee   int64
}

func (c *settingsSwappingCarrier) FindRates(ctx context.Context, pkg shipment.Package) (*carrier.RateResponse, error) {
	next := c.store.Current()
	next.HandlingFee = c.fee
	if _, err := c.store.Swap(next); err != nil {
		return nil, err
	}
	return c.Static.FindRates(ctx, pkg)
}

func TestRequestsPriceAgainstOneSettingsSnapshot(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   map[string]any
	}{
		{name: "quote", target: "/api/quote", body: map[string]any{"method": "usps_express_mail", "order": testOrder()}},
		{name: "shipping rates", target: "/api/shipping-rates", body: map[string]any{"order": testOrder()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := settings.NewStore()
			initial := store.Current()
			initial.HandlingFee = 100
			if _, err := store.Swap(initial); err != nil {
				t.Fatalf("swap: %v", err)
			}

			client := &settingsSwappingCarrier{
				Static: carrier.NewStatic("usps", carrier.USPSServiceCodes, defaultQuotes()...),
				store:  store,
				fee:    50000,
			}
			logger := zaptest.NewLogger(t)
			registry := calculator.NewCarrierRegistry(client, store, logger, calculator.Variants())
			handler := NewHandler(registry, store, shipment.NewBuilder(store, units.Imperial))
			env := &testEnv{router: NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))}

			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if !bytes.Contains(rec.Body.Bytes(), []byte(`"10.99"`)) {
				t.Fatalf("expected express mail priced with the fee in effect at request start, got %s", rec.Body.String())
			}
			if store.Current().HandlingFee != 50000 {
				t.Fatalf("expected the store to have been updated mid-request")
			}
		})
	}
}
