package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/deepresearch/internal/tlsutil"
	"github.com/BaSui01/deepresearch/llm"
	"github.com/BaSui01/deepresearch/llm/providers"
	"go.uber.org/zap"
)

// DefaultBaseURL 是 OpenRouter 的 OpenAI 兼容入口。
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds the configuration for an OpenAI-compatible backend.
type Config struct {
	// ProviderName is the identifier reported in errors and metrics.
	ProviderName string

	APIKey  string
	BaseURL string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 120s if zero.
	Timeout time.Duration

	// EndpointPath defaults to "/chat/completions" (appended to BaseURL).
	EndpointPath string

	// Headers are extra headers sent with every request, e.g. OpenRouter's
	// HTTP-Referer and X-Title.
	Headers map[string]string
}

// Provider talks to any backend that speaks the Chat Completions protocol.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openrouter"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.ProviderName }

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "nil request", HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
	}
	model := providers.ChooseModel(req, p.cfg.DefaultModel)
	if model == "" {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "no model specified", HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
	}

	body := providers.OpenAICompatRequest{
		Model:          model,
		Messages:       providers.ConvertMessagesToOpenAI(req.Messages),
		Tools:          providers.ConvertToolsToOpenAI(req.Tools),
		ResponseFormat: providers.ConvertResponseFormat(req.ResponseFormat),
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = providers.ConvertToolChoice(req.ToolChoice)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &llm.Error{
				Code: llm.ErrUpstreamTimeout, Message: ctx.Err().Error(),
				HTTPStatus: http.StatusGatewayTimeout, Provider: p.Name(),
			}
		}
		return nil, providers.TransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		p.logger.Warn("completion rejected",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrMalformedResponse, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	p.logger.Debug("completion done",
		zap.String("model", result.Model),
		zap.Int("choices", len(result.Choices)),
		zap.Duration("latency", time.Since(start)))
	return result, nil
}
