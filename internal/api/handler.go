package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/shipping-rates/internal/calculator"
	"github.com/eugenenazirov/shipping-rates/internal/money"
	"github.com/eugenenazirov/shipping-rates/internal/settings"
	"github.com/eugenenazirov/shipping-rates/internal/shipment"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

const maxRequestBytes = 1 << 20

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler wires the rate pipeline and the settings store into HTTP handlers.
type Handler struct {
	registry *calculator.Registry
	settings *settings.Store
	builder  *shipment.Builder

	clock func() time.Time

	mu                sync.Mutex
	settingsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler. builder must read its settings from store.
func NewHandler(registry *calculator.Registry, store *settings.Store, builder *shipment.Builder, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		settings: store,
		builder:  builder,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.settingsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	updatedAt := h.settingsUpdatedAt
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, newSettingsResponse(h.settings.Current(), updatedAt, ""))
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.settings.Current()
	if req.Units != nil {
		system, err := units.Parse(*req.Units)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
			return
		}
		next.Units = system
	}
	if req.UnitMultiplier != nil {
		next.UnitMultiplier = *req.UnitMultiplier
	}
	if req.HandlingFee != nil {
		next.HandlingFee = *req.HandlingFee
	}
	if req.Currency != nil {
		next.Currency = *req.Currency
	}

	stored, err := h.settings.Swap(next)
	if err != nil {
		writeRateError(w, err)
		return
	}
	h.settingsUpdatedAt = h.clock()

	writeJSON(w, http.StatusOK, newSettingsResponse(stored, h.settingsUpdatedAt, "Settings updated successfully"))
}

func (h *Handler) handleShippingMethods(w http.ResponseWriter, _ *http.Request) {
	methods := h.registry.Methods()
	resp := methodsResponse{Methods: make([]methodResponse, 0, len(methods))}
	for _, m := range methods {
		resp.Methods = append(resp.Methods, newMethodResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "method is required")
		return
	}

	calc, err := h.registry.Get(req.Method)
	if err != nil {
		writeRateError(w, err)
		return
	}

	snapshot := h.builder.Settings()
	pkg, err := h.builder.BuildWith(req.Order, snapshot)
	if err != nil {
		writeRateError(w, err)
		return
	}

	start := time.Now()
	price, ok, err := calc.Compute(settings.NewContext(r.Context(), snapshot), pkg)
	if err != nil {
		writeRateError(w, err)
		return
	}

	resp := quoteResponse{
		Method:            newMethodResponse(calc.Variant()),
		Available:         ok,
		Package:           newPackageResponse(pkg),
		CalculationTimeMs: time.Since(start).Milliseconds(),
	}
	if ok {
		resp.Price = &price
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleShippingRates(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snapshot := h.builder.Settings()
	pkg, err := h.builder.BuildWith(req.Order, snapshot)
	if err != nil {
		writeRateError(w, err)
		return
	}

	start := time.Now()
	priced, err := h.registry.ComputeAll(settings.NewContext(r.Context(), snapshot), pkg)
	if err != nil {
		writeRateError(w, err)
		return
	}

	resp := ratesResponse{
		Rates:             make([]rateResponse, 0, len(priced)),
		Package:           newPackageResponse(pkg),
		CalculationTimeMs: time.Since(start).Milliseconds(),
	}
	for _, p := range priced {
		resp.Rates = append(resp.Rates, rateResponse{Method: newMethodResponse(p.Method), Price: p.Price})
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

type settingsRequest struct {
	Units          *string          `json:"units"`
	UnitMultiplier *decimal.Decimal `json:"unitMultiplier"`
	HandlingFee    *int64           `json:"handlingFee"`
	Currency       *string          `json:"currency"`
}

type settingsResponse struct {
	Units          units.System    `json:"units"`
	WeightUnit     string          `json:"weightUnit"`
	UnitMultiplier decimal.Decimal `json:"unitMultiplier"`
	HandlingFee    int64           `json:"handlingFee"`
	Currency       string          `json:"currency"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Message        string          `json:"message,omitempty"`
}

func newSettingsResponse(s settings.Settings, updatedAt time.Time, message string) settingsResponse {
	return settingsResponse{
		Units:          s.Units,
		WeightUnit:     s.Units.WeightUnit(),
		UnitMultiplier: s.UnitMultiplier,
		HandlingFee:    s.HandlingFee,
		Currency:       s.Currency,
		UpdatedAt:      updatedAt,
		Message:        message,
	}
}

type methodResponse struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	ServiceCode   string `json:"serviceCode"`
	International bool   `json:"international"`
}

func newMethodResponse(v calculator.Variant) methodResponse {
	return methodResponse{
		Key:           v.Key,
		Name:          v.ServiceName(),
		ServiceCode:   v.ServiceCode,
		International: v.International,
	}
}

type methodsResponse struct {
	Methods []methodResponse `json:"methods"`
}

type packageResponse struct {
	Weight decimal.Decimal `json:"weight"`
	Unit   string          `json:"unit"`
	Items  int             `json:"items"`
}

func newPackageResponse(pkg shipment.Package) packageResponse {
	return packageResponse{
		Weight: pkg.Weight,
		Unit:   pkg.Units.WeightUnit(),
		Items:  len(pkg.Items),
	}
}

type quoteRequest struct {
	Method string         `json:"method"`
	Order  shipment.Order `json:"order"`
}

type quoteResponse struct {
	Method            methodResponse  `json:"method"`
	Available         bool            `json:"available"`
	Price             *money.Money    `json:"price,omitempty"`
	Package           packageResponse `json:"package"`
	CalculationTimeMs int64           `json:"calculationTimeMs"`
}

type ratesRequest struct {
	Order shipment.Order `json:"order"`
}

type rateResponse struct {
	Method methodResponse `json:"method"`
	Price  money.Money    `json:"price"`
}

type ratesResponse struct {
	Rates             []rateResponse  `json:"rates"`
	Package           packageResponse `json:"package"`
	CalculationTimeMs int64           `json:"calculationTimeMs"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
