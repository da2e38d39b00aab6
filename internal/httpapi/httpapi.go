package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/service"
	"github.com/floradistro/websitev2-sub022/internal/store"
)

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	metricsEnabled bool
	loginLimiter   *attemptLimiter
	csrfSecret     []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, metricsEnabled bool) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigin:  allowedOrigin,
		metricsEnabled: metricsEnabled,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
		csrfSecret:     csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)
	if a.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/api/v1/registers", a.requireAuth(a.handleRegisters, "cashier", "manager"))
	mux.HandleFunc("/api/v1/registers/claim", a.requireAuth(a.handleRegisterClaim, "cashier", "manager"))
	mux.HandleFunc("/api/v1/registers/", a.requireAuth(a.handleRegisterActions, "manager"))

	mux.HandleFunc("/api/v1/sessions", a.requireAuth(a.handleSessionList, "cashier", "manager"))
	mux.HandleFunc("/api/v1/sessions/open", a.requireAuth(a.handleSessionOpen, "cashier", "manager"))
	mux.HandleFunc("/api/v1/sessions/", a.requireAuth(a.handleSessionActions, "cashier", "manager"))

	mux.HandleFunc("/api/v1/inventory", a.requireAuth(a.handleInventory, "cashier", "manager"))
	mux.HandleFunc("/api/v1/inventory/movements", a.requireAuth(a.handleMovements, "cashier", "manager"))
	mux.HandleFunc("/api/v1/inventory/initialize", a.requireAuth(a.handleInventoryInitialize, "manager"))
	mux.HandleFunc("/api/v1/inventory/adjust", a.requireAuth(a.handleInventoryAdjust, "manager"))
	mux.HandleFunc("/api/v1/inventory/transfer", a.requireAuth(a.handleInventoryTransfer, "manager"))

	mux.HandleFunc("/api/v1/purchase-orders", a.requireAuth(a.handlePurchaseOrders, "manager"))
	mux.HandleFunc("/api/v1/purchase-orders/", a.requireAuth(a.handlePurchaseOrderActions, "manager"))
	mux.HandleFunc("/api/v1/purchase-order-items/", a.requireAuth(a.handlePurchaseOrderItemActions, "manager"))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "manager"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeErrorKind(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeErrorKind(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeErrorKind(w, http.StatusForbidden, "forbidden", errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeErrorKind(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeErrorKind(w, http.StatusUnauthorized, "unauthorized", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Login and register claim are excluded because devices call them before any
// CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/registers/claim",
}

// checkCSRF enforces CSRF token validation for state-changing methods (POST/PUT/PATCH).
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeErrorKind(w, http.StatusForbidden, "forbidden", errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleRegisters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		registers, err := a.service.ListRegisters(r.Context(), r.URL.Query().Get("location_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"registers": registers})
	case http.MethodPost:
		actor, ok := service.ActorFromContext(r.Context())
		if !ok || actor.Role != "manager" {
			writeErrorKind(w, http.StatusForbidden, "forbidden", errors.New("forbidden role"))
			return
		}

		var req domain.RegisterCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}

		register, err := a.service.CreateRegister(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"register": register})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRegisterClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RegisterClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = clientKey(r)
	}

	result, err := a.service.ClaimRegister(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRegisterActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/registers/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/status") {
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("invalid register action path"))
		return
	}
	registerID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/status")
	registerID = strings.TrimSpace(strings.Trim(registerID, "/"))
	if registerID == "" {
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("register id required"))
		return
	}

	var req domain.RegisterStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}

	register, err := a.service.SetRegisterStatus(r.Context(), registerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"register": register})
}

func (a *API) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	sessions, err := a.service.ListSessions(r.Context(), r.URL.Query().Get("location_id"), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req domain.SessionOpenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}

		result, err := a.service.OpenSession(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, result)
	case http.MethodGet:
		registerID := strings.TrimSpace(r.URL.Query().Get("register_id"))
		sess, err := a.service.GetOpenSessionByRegister(r.Context(), registerID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/sessions/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("session id required"))
		return
	}

	sessionID, action, hasAction := strings.Cut(tail, "/")
	if !hasAction {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sess, err := a.service.GetSession(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	switch action {
	case "sale":
		var req domain.SaleAccrualRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}
		result, err := a.service.RecordSale(r.Context(), sessionID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "refund":
		var req domain.ReversalAccrualRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}
		result, err := a.service.RecordRefund(r.Context(), sessionID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "void":
		var req domain.ReversalAccrualRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}
		result, err := a.service.RecordVoid(r.Context(), sessionID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "close":
		var req domain.SessionCloseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}
		result, err := a.service.CloseSession(r.Context(), sessionID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("unknown session action"))
	}
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	productID := strings.TrimSpace(r.URL.Query().Get("product_id"))
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	if productID != "" {
		snap, err := a.service.GetInventory(r.Context(), productID, locationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"inventory": snap})
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000)
	snaps, err := a.service.ListInventory(r.Context(), locationID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": snaps})
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	movements, err := a.service.ListMovements(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("product_id")),
		strings.TrimSpace(r.URL.Query().Get("location_id")),
		limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleInventoryInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.InventoryInitializeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}

	result, err := a.service.InitializeInventory(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleInventoryAdjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.InventoryAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}

	result, err := a.service.AdjustInventory(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleInventoryTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.InventoryTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}

	result, err := a.service.TransferInventory(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePurchaseOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		orders, err := a.service.ListPurchaseOrders(r.Context(), r.URL.Query().Get("location_id"), r.URL.Query().Get("status"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
	case http.MethodPost:
		var req domain.PurchaseOrderCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorKind(w, http.StatusBadRequest, "validation", err)
			return
		}

		po, err := a.service.CreatePurchaseOrder(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"purchase_order": po})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseOrderActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/purchase-orders/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("purchase order id required"))
		return
	}

	purchaseOrderID, action, hasAction := strings.Cut(tail, "/")
	if !hasAction {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		po, err := a.service.GetPurchaseOrder(r.Context(), purchaseOrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase_order": po})
		return
	}

	switch action {
	case "receiving-events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		events, err := a.service.ListReceivingEvents(r.Context(), purchaseOrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"receiving_events": events})
	case "submit":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		po, err := a.service.SubmitPurchaseOrder(r.Context(), purchaseOrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase_order": po})
	case "cancel":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		po, err := a.service.CancelPurchaseOrder(r.Context(), purchaseOrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase_order": po})
	default:
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("unknown purchase order action"))
	}
}

func (a *API) handlePurchaseOrderItemActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/purchase-order-items/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/receive") {
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("invalid purchase order item action path"))
		return
	}
	itemID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/receive")
	itemID = strings.TrimSpace(strings.Trim(itemID, "/"))
	if itemID == "" {
		writeErrorKind(w, http.StatusBadRequest, "validation", errors.New("purchase order item id required"))
		return
	}

	var req domain.ReceiveItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
		return
	}

	result, err := a.service.ReceivePurchaseOrderItem(r.Context(), itemID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeErrorKind(w, http.StatusMethodNotAllowed, "method_not_allowed", errors.New("method not allowed"))
}

// writeError maps the store error taxonomy onto HTTP statuses. Validation is
// the caller's fault, conflict covers idempotency and stock rejections,
// transient tells the client to retry, and anything unclassified is a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeErrorKind(w, http.StatusBadRequest, "validation", err)
	case errors.Is(err, store.ErrNotFound):
		writeErrorKind(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, store.ErrDebitExceedsStock):
		writeErrorKind(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, store.ErrConflict):
		writeErrorKind(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, store.ErrTransient):
		writeErrorKind(w, http.StatusServiceUnavailable, "transient", err)
	default:
		writeErrorKind(w, http.StatusInternalServerError, "internal", err)
	}
}

func writeErrorKind(w http.ResponseWriter, status int, kind string, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"kind":   kind,
			"reason": msg,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
