package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/telemetry"
)

// Token budgets per request kind.
const (
	queryMaxTokens    = 4000
	pipelineMaxTokens = 6000
	validateMaxTokens = 2000
)

// Service builds prompts, calls the Completer and parses its answers.
// Completer failures are returned to the caller; malformed answers are
// degraded into best-effort responses and only logged.
type Service struct {
	completer Completer
	logger    *slog.Logger
}

// New returns a Service on top of c.
func New(c Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{completer: c, logger: logger.With("component", "assistant")}
}

func (s *Service) complete(ctx context.Context, kind string, p Prompt) (string, error) {
	text, err := s.completer.Complete(ctx, p)
	telemetry.AssistantRequest(s.completer.Provider(), err)
	if err != nil {
		s.logger.Error("completion failed", "kind", kind, "provider", s.completer.Provider(), "error", err)
		return "", fmt.Errorf("%s completion: %w", kind, err)
	}
	return text, nil
}

// ProcessQuery answers a natural-language question. req.Schema should
// already hold the schemas of the target databases.
func (s *Service) ProcessQuery(ctx context.Context, req model.ProcessQueryRequest, apiKey string) (model.ProcessQueryResponse, error) {
	text, err := s.complete(ctx, "query", Prompt{
		System:    querySystem(req.Schema, req.Context),
		User:      queryUser(req.Query, req.DatabaseIDs),
		MaxTokens: queryMaxTokens,
		APIKey:    apiKey,
	})
	if err != nil {
		return model.ProcessQueryResponse{}, err
	}

	resp, err := ParseQueryResponse(text)
	if err != nil {
		s.logger.Warn("model response was not JSON, using fallback", "error", err)
	}
	return resp, nil
}

// GeneratePipeline designs an ETL pipeline from req.Source to req.Target.
func (s *Service) GeneratePipeline(ctx context.Context, req model.PipelineRequest, apiKey string) (model.ProcessQueryResponse, error) {
	text, err := s.complete(ctx, "pipeline", Prompt{
		System:    pipelineSystem(req.Schema),
		User:      pipelineUser(req),
		MaxTokens: pipelineMaxTokens,
		APIKey:    apiKey,
	})
	if err != nil {
		return model.ProcessQueryResponse{}, err
	}

	resp, err := ParsePipelineResponse(text)
	if err != nil {
		s.logger.Warn("pipeline response was not JSON, extracting numbered steps", "steps", len(resp.PipelineSteps))
	}
	return resp, nil
}

// ValidateQuery asks the model to review sql against schema.
func (s *Service) ValidateQuery(ctx context.Context, sql string, schema []model.SchemaInfo, apiKey string) (model.ValidationResult, error) {
	text, err := s.complete(ctx, "validate", Prompt{
		User:      validateUser(sql, schema),
		MaxTokens: validateMaxTokens,
		APIKey:    apiKey,
	})
	if err != nil {
		return model.ValidationResult{}, err
	}

	v, err := ParseValidation(text)
	if errors.Is(err, ErrMalformedResponse) {
		s.logger.Warn("validation response was not JSON")
	}
	return v, nil
}
