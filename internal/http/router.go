package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/service/auth"
	"github.com/macdonc2/llm-app-template/internal/service/rag"
	"github.com/macdonc2/llm-app-template/internal/service/summarize"
	"github.com/macdonc2/llm-app-template/internal/service/users"
	"github.com/macdonc2/llm-app-template/internal/ws"
)

// AuthService registers, logs in and authorizes users.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, auth.Token, error)
	Authorize(ctx context.Context, token string) (*domain.User, error)
}

// UserService manages profiles and approvals.
type UserService interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User, in users.UpdateInput) (*domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
	Pending(ctx context.Context, limit, offset int) ([]domain.User, error)
	Approve(ctx context.Context, id string) (*domain.User, error)
	Verify(ctx context.Context, id string) (*domain.User, error)
	View(user *domain.User) users.View
}

// RAGService answers from stored documents.
type RAGService interface {
	Query(ctx context.Context, user *domain.User, query string, topK int) (rag.Answer, error)
	Ingest(ctx context.Context, user *domain.User, texts []string) ([]int64, error)
}

// SummarizeService runs search summarization.
type SummarizeService interface {
	Summarize(ctx context.Context, user *domain.User, query string, topK int) (summarize.Summary, error)
}

// AgentService runs tool-calling agents.
type AgentService interface {
	Ask(ctx context.Context, user *domain.User, query string) (string, error)
}

// EventHub fans agent events out to stream subscribers.
type EventHub interface {
	Register(userID string, client ws.Subscriber)
	Unregister(userID string, client ws.Subscriber)
}

// Deps are the collaborators of the Router.
type Deps struct {
	Logger    *slog.Logger
	Auth      AuthService
	Users     UserService
	RAG       RAGService
	Summarize SummarizeService
	Agent     AgentService
	Events    EventHub
	Limiter   RateLimiter
	DBHealth  func(context.Context) error
	// TrustedProxies may set X-Forwarded-For. Empty means the peer
	// address is always the client.
	TrustedProxies []netip.Prefix
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      AuthService
	users     UserService
	rag       RAGService
	summarize SummarizeService
	agent     AgentService
	events    EventHub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error

	trustedProxies []netip.Prefix
	heartbeat      time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	agentRuns          *prometheus.CounterVec
}

const (
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      deps.Auth,
		users:     deps.Users,
		rag:       deps.RAG,
		summarize: deps.Summarize,
		agent:     deps.Agent,
		events:    deps.Events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:        deps.Limiter,
		dbHealth:       deps.DBHealth,
		trustedProxies: deps.TrustedProxies,
		heartbeat:      sseHeartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/{$}", r.audit("root", r.handleRoot))
	r.mux.HandleFunc("/", r.audit("not_found", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/auth/register", r.audit("register", r.limited("register", classRegister, r.handleRegister)))
	r.mux.HandleFunc("/auth/jwt/login", r.audit("login", r.limited("login", classLogin, r.handleLogin)))
	r.mux.HandleFunc("/token", r.audit("token", r.limited("token", classLogin, r.handleLogin)))

	r.mux.HandleFunc("/users/me", r.audit("users_me", r.authed("users_me", accessActive, classRead, r.handleMe)))
	r.mux.HandleFunc("/users/{id}", r.audit("users_get", r.authed("users_get", accessSuperuser, classRead, r.handleGetUser)))

	r.mux.HandleFunc("/admin/pending", r.audit("admin_pending", r.authed("admin_pending", accessSuperuser, classRead, r.handlePending)))
	r.mux.HandleFunc("/admin/users", r.audit("admin_users", r.authed("admin_users", accessSuperuser, classRead, r.handleListUsers)))
	r.mux.HandleFunc("/admin/approve/{id}", r.audit("admin_approve", r.authed("admin_approve", accessSuperuser, classWrite, r.handleApprove)))
	r.mux.HandleFunc("/admin/verify/{id}", r.audit("admin_verify", r.authed("admin_verify", accessSuperuser, classWrite, r.handleVerify)))
	r.mux.HandleFunc("/admin/documents", r.audit("admin_documents", r.authed("admin_documents", accessSuperuser, classAI, r.handleIngest)))

	r.mux.HandleFunc("/rag/query", r.audit("rag_query", r.authed("rag_query", accessVerified, classAI, r.handleRAGQuery)))
	r.mux.HandleFunc("/tavily/summarize", r.audit("tavily_summarize", r.authed("tavily_summarize", accessVerified, classAI, r.handleSummarize)))
	r.mux.HandleFunc("/agent/ask", r.audit("agent_ask", r.authed("agent_ask", accessVerified, classAI, r.handleAgentAsk)))
	r.mux.HandleFunc("/agent/events", r.audit("agent_events", r.stream("agent_events", r.handleAgentEvents)))
	r.mux.HandleFunc("/ws/agent", r.audit("ws_agent", r.stream("ws_agent", r.handleAgentWS)))
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := r.clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if user, ok := userFromContext(ctx); ok {
			fields = append(fields, "user_id", user.ID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
