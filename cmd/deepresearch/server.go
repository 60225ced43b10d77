package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/deepresearch/config"
	"github.com/BaSui01/deepresearch/internal/archive"
	"github.com/BaSui01/deepresearch/internal/server"
	"github.com/BaSui01/deepresearch/research"
	"github.com/BaSui01/deepresearch/types"
)

// =============================================================================
// 🖥️ HTTP API
// =============================================================================

const maxRequestBody = 1 << 20

// researcher 是 *research.Orchestrator 的 HTTP 视图。
type researcher interface {
	Run(ctx context.Context, conversation []types.Message) (*research.Result, error)
}

// runStore 是 *archive.Store 的只读视图。
type runStore interface {
	Get(ctx context.Context, runID string) (*archive.RunRecord, error)
	List(ctx context.Context, limit int) ([]archive.RunRecord, error)
}

// researchRequest 是 POST /v1/research 的请求体。question 与 messages 二选一。
type researchRequest struct {
	Question string          `json:"question,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`
}

func (r researchRequest) conversation() ([]types.Message, error) {
	if len(r.Messages) > 0 {
		for _, m := range r.Messages {
			if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
				return nil, errors.New("messages may only contain user and assistant turns")
			}
		}
		return r.Messages, nil
	}
	if q := strings.TrimSpace(r.Question); q != "" {
		return []types.Message{types.NewUserMessage(q)}, nil
	}
	return nil, errors.New("question or messages is required")
}

// researchResponse 是研究运行的对外视图。
type researchResponse struct {
	RunID        string           `json:"run_id"`
	Outcome      research.Outcome `json:"outcome"`
	Text         string           `json:"text"`
	Brief        string           `json:"research_brief,omitempty"`
	Notes        int              `json:"notes"`
	Iterations   int              `json:"iterations"`
	ReportTokens int              `json:"report_tokens,omitempty"`
	DurationMS   int64            `json:"duration_ms"`
}

func newResearchResponse(res *research.Result) researchResponse {
	return researchResponse{
		RunID:        res.RunID,
		Outcome:      res.Outcome,
		Text:         res.Text,
		Brief:        res.State.ResearchBrief,
		Notes:        len(res.State.Notes),
		Iterations:   res.Iterations,
		ReportTokens: res.ReportTokens,
		DurationMS:   res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}
}

// apiHandler 提供研究与归档查询接口。
type apiHandler struct {
	researcher researcher
	runs       runStore
	runTimeout time.Duration
	logger     *zap.Logger
}

func (h *apiHandler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /version", h.handleVersion)
	mux.HandleFunc("POST /v1/research", h.handleResearch)
	mux.HandleFunc("GET /v1/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", h.handleGetRun)
	return mux
}

func (h *apiHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func (h *apiHandler) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(types.ErrInvalidRequest), "malformed request body")
		return
	}
	conversation, err := req.conversation()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, string(types.ErrInvalidRequest), err.Error())
		return
	}

	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	res, err := h.researcher.Run(ctx, conversation)
	if err != nil {
		status, code := statusForError(err)
		h.logger.Warn("research request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
		writeJSONError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newResearchResponse(res))
}

func (h *apiHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSONError(w, http.StatusNotFound, "ARCHIVE_DISABLED", "run archive is not enabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeJSONError(w, http.StatusBadRequest, string(types.ErrInvalidRequest), "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	recs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": recs})
}

func (h *apiHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSONError(w, http.StatusNotFound, "ARCHIVE_DISABLED", "run archive is not enabled")
		return
	}
	rec, err := h.runs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "run not found")
		return
	}
	if err != nil {
		h.logger.Error("get run failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// statusForError 将编排错误映射为 HTTP 状态。
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(types.ErrUpstreamTimeout)
	case errors.Is(err, context.Canceled):
		return 499, "CANCELED"
	}
	switch code := types.GetErrorCode(err); code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest, string(code)
	case "":
		return http.StatusInternalServerError, string(types.ErrStageFailed)
	default:
		return http.StatusBadGateway, string(code)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// 🚀 服务生命周期
// =============================================================================

// Server 持有研究 API 与 /metrics 两个监听。
type Server struct {
	api     *server.Manager
	metrics *server.Manager
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewServer 组装中间件链与路由。
func NewServer(cfg *config.Config, handler *apiHandler, registry *prometheus.Registry, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	skip := []string{"/health", "/version"}

	chain := Chain(handler.routes(),
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		OTelTracing(),
		Auth(AuthConfig{
			APIKeys:   cfg.Server.APIKeys,
			JWTSecret: cfg.Server.JWTSecret,
			JWTIssuer: cfg.Server.JWTIssuer,
			SkipPaths: skip,
		}, logger),
		RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger),
	)

	s := &Server{
		api: server.NewManager("api", chain, server.Config{
			Addr:            cfg.Server.Addr,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     2 * cfg.Server.ReadTimeout,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, logger),
		cancel: cancel,
		logger: logger,
	}
	if cfg.Metrics.Addr != "" {
		s.metrics = newMetricsManager(cfg.Metrics.Addr, registry, logger)
	}
	return s
}

func newMetricsManager(addr string, registry *prometheus.Registry, logger *zap.Logger) *server.Manager {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	cfg := server.DefaultConfig()
	cfg.Addr = addr
	cfg.ShutdownTimeout = 5 * time.Second
	return server.NewManager("metrics", mux, cfg, logger)
}

// Start 非阻塞地启动两个监听。
func (s *Server) Start() error {
	if err := s.api.Start(); err != nil {
		return err
	}
	if s.metrics != nil {
		if err := s.metrics.Start(); err != nil {
			_ = s.api.Shutdown(context.Background())
			return err
		}
	}
	return nil
}

// Run 阻塞到 ctx 结束，然后关闭 API 与 /metrics。
func (s *Server) Run(ctx context.Context) error {
	defer s.cancel()
	err := s.api.Wait(ctx)
	if s.metrics != nil {
		if mErr := s.metrics.Shutdown(context.Background()); mErr != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(mErr))
		}
	}
	return err
}
