package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"binwatch/internal/types"
)

// DefaultSMSBaseURL is the CircuitDigest Cloud SMS endpoint.
const DefaultSMSBaseURL = "https://www.circuitdigest.cloud/send_sms"

// maxResponseBody caps how much of the gateway's reply is read and logged.
const maxResponseBody = 4 << 10

// SMSClientConfig holds the configuration for creating an SMSClient.
type SMSClientConfig struct {
	BaseURL    string
	TemplateID string
	APIKey     types.SecretString
	Logger     *slog.Logger
}

// TemplateVars are the substitution values of an SMS template.
type TemplateVars struct {
	Var1 string
	Var2 string
}

// SendResult is the gateway's reply to an accepted message. Body is
// informational only.
type SendResult struct {
	StatusCode int
	Body       string
}

// smsPayload is the JSON request body of the send endpoint.
type smsPayload struct {
	Mobiles string `json:"mobiles"`
	Var1    string `json:"var1"`
	Var2    string `json:"var2"`
}

// SMSClient sends templated SMS through the CircuitDigest Cloud API.
type SMSClient struct {
	base       *BaseClient
	baseURL    string
	templateID string
	apiKey     types.SecretString
	logger     *slog.Logger
}

// NewSMSClient creates an SMSClient on top of base.
func NewSMSClient(base *BaseClient, cfg SMSClientConfig) *SMSClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSMSBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SMSClient{
		base:       base,
		baseURL:    cfg.BaseURL,
		templateID: cfg.TemplateID,
		apiKey:     cfg.APIKey,
		logger:     cfg.Logger,
	}
}

// Send posts one templated message to recipient.
//
// Only HTTP 200 counts as accepted. Other statuses map to
// upstream_rate_limited (429), upstream_unavailable (5xx) or
// upstream_sms_rejected, with the status and body in the error details.
func (s *SMSClient) Send(ctx context.Context, recipient string, vars TemplateVars) (*SendResult, error) {
	endpoint, err := s.endpoint()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "invalid SMS base URL", err)
	}

	payload := smsPayload{Mobiles: recipient, Var1: vars.Var1, Var2: vars.Var2}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal SMS payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SMS request", err)
	}
	// The gateway expects the raw key, without a scheme.
	req.Header.Set("Authorization", s.apiKey.Unmask())
	req.Header.Set("Content-Type", "application/json")

	logged := payload
	logged.Mobiles = types.RedactPhone(recipient)
	s.logger.InfoContext(ctx, "sending sms",
		"endpoint", endpoint,
		"payload", logged,
		"request_id", types.GetRequestID(ctx),
	)

	resp, err := s.base.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "sms request failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		s.logger.DebugContext(ctx, "sms response body read failed", "status", resp.StatusCode, "error", err)
	}
	result := &SendResult{StatusCode: resp.StatusCode, Body: string(respBody)}

	if resp.StatusCode == http.StatusOK {
		s.logger.InfoContext(ctx, "sms accepted", "status", resp.StatusCode, "response", result.Body)
		return result, nil
	}

	s.logger.WarnContext(ctx, "sms not accepted", "status", resp.StatusCode, "response", result.Body)
	return nil, s.handleErrorResponse(result)
}

func (s *SMSClient) endpoint() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("ID", s.templateID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *SMSClient) handleErrorResponse(r *SendResult) *types.AppError {
	details := map[string]any{"status": r.StatusCode, "body": r.Body}
	switch {
	case r.StatusCode == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited, "SMS gateway rate limit exceeded", nil, details)
	case r.StatusCode >= 500:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable, "SMS gateway unavailable", nil, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamSMSRejected, "SMS gateway rejected the message", nil, details)
	}
}
