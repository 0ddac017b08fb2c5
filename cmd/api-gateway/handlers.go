package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/common/auth"
	"github.com/RescueLink/RescueLink/internal/common/config"
	"github.com/RescueLink/RescueLink/internal/common/logger"
	"github.com/RescueLink/RescueLink/internal/common/middleware"
	"github.com/RescueLink/RescueLink/internal/dispatch"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type handlers struct {
	cfg      *config.Config
	log      logger.Logger
	store    store.Store
	registry *dispatch.Registry
	matcher  *dispatch.Matcher
	ledger   *dispatch.Ledger
	linkage  *dispatch.Linkage
	breaker  *middleware.CircuitBreaker
	limiter  middleware.RateLimiter
}

type identityKey struct{}

func identityFrom(ctx context.Context) string {
	if v, ok := ctx.Value(identityKey{}).(string); ok {
		return v
	}
	return ""
}

// ---- 中间件 ----

func (h *handlers) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(r.Context()) {
			h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate 解析 Bearer token 并把账号 ID 放进 ctx。
// 注册/登录是公开路径；其余路径在鉴权开启时必须携带有效 token。
func (h *handlers) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			raw = strings.TrimSpace(raw[len("bearer "):])
		}
		if raw == "" {
			if h.cfg.Auth.Enabled {
				h.writeError(w, http.StatusUnauthorized, "missing authorization")
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		claims, err := auth.ParseAccessToken(h.cfg.Auth, raw)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ---- 健康检查 ----

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ---- 注册 / 登录 ----

type registerRequest struct {
	Role     string `json:"role"` // user / hospital / mechanic
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Aadhaar  string `json:"aadhaar"` // user / mechanic
	License  string `json:"license"` // hospital

	MedicalConditions  string `json:"medical_conditions"`
	MedicalCertificate string `json:"medical_certificate"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	kind := account.Kind(req.Role)
	if !kind.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name, email and password required")
		return
	}

	salt, err := account.GenerateSaltHex()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	hash, err := account.HashPassword(req.Password, salt)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid password")
		return
	}

	a := &account.Account{
		ID:                 uuid.NewString(),
		Kind:               kind,
		Name:               req.Name,
		Phone:              req.Phone,
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		Address:            req.Address,
		City:               req.City,
		MedicalConditions:  req.MedicalConditions,
		MedicalCertificate: req.MedicalCertificate,
		PasswordHash:       hash,
		PasswordSalt:       salt,
	}
	switch kind {
	case account.KindHospital:
		a.License = req.License
	default:
		a.Aadhaar = req.Aadhaar
	}

	if err := h.guarded(r.Context(), func() error {
		return h.store.SaveAccount(r.Context(), a)
	}); err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.accountPayload(a))
}

type loginRequest struct {
	AccountID string `json:"account_id"`
	Password  string `json:"password"`
}

// login 用账号 ID + 密码换 access token。
// 邮箱登录需要按 email 建索引查询，目前 core 的存储契约只按 ID 点读。
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	var a *account.Account
	err := h.guarded(r.Context(), func() error {
		var err error
		a, err = h.store.GetAccount(r.Context(), req.AccountID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	if !account.VerifyPassword(req.Password, a.PasswordSalt, a.PasswordHash) {
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := auth.GenerateAccessToken(h.cfg.Auth, a.ID, []string{string(a.Kind)}, 24*time.Hour)
	if err != nil {
		h.log.Errorf("generate token: %v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
		"account":    h.accountPayload(a),
	})
}

// ---- 求助 ----

type createEmergencyRequest struct {
	Domain      string  `json:"domain"` // medical / vehicle
	Type        string  `json:"type"`
	Location    string  `json:"location"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	VehicleType string  `json:"vehicle_type"`
	Description string  `json:"description"`
	Notes       string  `json:"notes"`
}

func (h *handlers) createEmergency(w http.ResponseWriter, r *http.Request) {
	var req createEmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	var created *emergency.Request
	err := h.guarded(r.Context(), func() error {
		var err error
		created, err = h.registry.Create(r.Context(), identityFrom(r.Context()), dispatch.CreateInput{
			Domain:      emergency.Domain(req.Domain),
			Type:        req.Type,
			Location:    req.Location,
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
			VehicleType: req.VehicleType,
			Description: req.Description,
			Notes:       req.Notes,
		})
		return err
	})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// listEmergencies ?domain=medical&view=pending|accepted|mine
func (h *handlers) listEmergencies(w http.ResponseWriter, r *http.Request) {
	domain := emergency.Domain(r.URL.Query().Get("domain"))
	view := r.URL.Query().Get("view")
	actor := identityFrom(r.Context())

	var (
		out []emergency.Request
		err error
	)
	switch view {
	case "accepted":
		err = h.guarded(r.Context(), func() error {
			var e error
			out, e = h.registry.ListAccepted(r.Context(), domain, actor)
			return e
		})
	case "mine":
		err = h.guarded(r.Context(), func() error {
			var e error
			out, e = h.registry.ListByRequester(r.Context(), actor)
			return e
		})
	default:
		err = h.guarded(r.Context(), func() error {
			var e error
			out, e = h.registry.ListPending(r.Context(), domain)
			return e
		})
	}
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getEmergency(w http.ResponseWriter, r *http.Request) {
	var got *emergency.Request
	err := h.guarded(r.Context(), func() error {
		var e error
		got, e = h.registry.Get(r.Context(), mux.Vars(r)["id"])
		return e
	})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, got)
}

func (h *handlers) cancelEmergency(w http.ResponseWriter, r *http.Request) {
	err := h.guarded(r.Context(), func() error {
		return h.registry.Cancel(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"])
	})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) acceptEmergency(w http.ResponseWriter, r *http.Request) {
	var got *emergency.Request
	err := h.guarded(r.Context(), func() error {
		var e error
		got, e = h.matcher.Accept(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"])
		return e
	})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, got)
}

func (h *handlers) declineEmergency(w http.ResponseWriter, r *http.Request) {
	var got *emergency.Request
	err := h.guarded(r.Context(), func() error {
		var e error
		got, e = h.registry.Decline(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"])
		return e
	})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, got)
}

// ---- 表单 ----

func (h *handlers) submitForm(w http.ResponseWriter, r *http.Request) {
	var in dispatch.FormInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	form, err := h.linkage.SubmitForm(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, form)
}

// getForm ?requester=<id>，受理医院读取发起人的表单。
func (h *handlers) getForm(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requester")
	if requester == "" {
		requester = identityFrom(r.Context())
	}
	form, err := h.linkage.Form(r.Context(), mux.Vars(r)["id"], requester)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	if form == nil {
		h.writeError(w, http.StatusNotFound, "form not submitted")
		return
	}
	h.writeJSON(w, http.StatusOK, form)
}

// ---- 容量 / 账号 ----

type adjustCapacityRequest struct {
	Unit  string `json:"unit"` // primary / secondary
	Delta int    `json:"delta"`
}

func (h *handlers) adjustCapacity(w http.ResponseWriter, r *http.Request) {
	var req adjustCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := h.ledger.Adjust(r.Context(), identityFrom(r.Context()), account.Unit(req.Unit), req.Delta)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.accountPayload(a))
}

func (h *handlers) myAccount(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r.Context())
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	a, err := h.ledger.Account(r.Context(), actor)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.accountPayload(a))
}

// accountPayload 账号的对外视图（不含口令散列）。
func (h *handlers) accountPayload(a *account.Account) map[string]any {
	out := map[string]any{
		"id":       a.ID,
		"role":     a.Kind,
		"name":     a.Name,
		"email":    a.Email,
		"phone":    a.Phone,
		"address":  a.Address,
		"city":     a.City,
		"verified": a.Verified,
	}
	if a.Kind.Responder() {
		primary, secondary := a.Kind.UnitNames()
		out[primary] = a.CapacityPrimary
		out[secondary] = a.CapacitySecondary
	}
	return out
}

// ---- 基础设施 ----

// guarded 用熔断器包住后端调用；熔断打开时立即失败。
// 业务分类错误（容量不足/已被处理等）不计入失败，只有后端错误会触发熔断。
func (h *handlers) guarded(ctx context.Context, fn func() error) error {
	var inner error
	err := h.breaker.Call(ctx, func() error {
		inner = fn()
		if errors.Is(inner, dispatch.ErrBackendUnavailable) {
			return inner
		}
		return nil
	})
	if inner != nil {
		return inner
	}
	if err != nil {
		// 熔断打开：没有调用后端，直接按不可用处理
		return fmt.Errorf("%w: %v", dispatch.ErrBackendUnavailable, err)
	}
	return nil
}

func (h *handlers) writeDispatchError(w http.ResponseWriter, err error) {
	var capErr *dispatch.CapacityError
	switch {
	case errors.As(err, &capErr):
		h.writeError(w, http.StatusConflict, capErr.Error())
	case errors.Is(err, dispatch.ErrNotAuthenticated):
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, dispatch.ErrAlreadyHandled):
		h.writeError(w, http.StatusConflict, "request already handled")
	case errors.Is(err, dispatch.ErrInvalidTransition), errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, dispatch.ErrDomainMismatch):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dispatch.ErrBackendUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "backend unavailable")
	default:
		h.log.Errorf("gateway error: %v", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, map[string]string{"error": msg})
}
