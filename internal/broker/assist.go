package broker

import (
	"context"
	"fmt"

	"github.com/promptelt/promptelt/internal/model"
)

// latestSchemas collects the latest snapshot schema of each id, skipping
// databases that have none.
func (b *Broker) latestSchemas(ids []int64) []model.SchemaInfo {
	out := make([]model.SchemaInfo, 0, len(ids))
	for _, id := range ids {
		if snap, ok := b.snapshots.Latest(id); ok {
			out = append(out, snap.Schema)
		}
	}
	return out
}

// ProcessNaturalLanguageQuery forwards req, with the latest schemas of its
// databases attached, to the assistant and wraps its answer unchanged.
func (b *Broker) ProcessNaturalLanguageQuery(ctx context.Context, req model.ProcessQueryRequest, apiKey string) model.Response {
	return b.run("process_query", func() (interface{}, error) {
		if b.assistant == nil {
			return nil, ErrAssistantUnavailable
		}
		req.Schema = b.latestSchemas(req.DatabaseIDs)
		resp, err := b.assistant.ProcessQuery(ctx, req, apiKey)
		if err != nil {
			return nil, fmt.Errorf("process natural language query: %w", err)
		}
		return resp, nil
	})
}

// GenerateETLPipeline asks the assistant for a pipeline design.
func (b *Broker) GenerateETLPipeline(ctx context.Context, req model.PipelineRequest, apiKey string) model.Response {
	return b.run("generate_pipeline", func() (interface{}, error) {
		if b.assistant == nil {
			return nil, ErrAssistantUnavailable
		}
		req.Schema = b.latestSchemas(req.DatabaseIDs)
		resp, err := b.assistant.GeneratePipeline(ctx, req, apiKey)
		if err != nil {
			return nil, fmt.Errorf("generate pipeline: %w", err)
		}
		return resp, nil
	})
}

// ValidateQuery asks the assistant to review sql against the schemas of
// databaseIDs.
func (b *Broker) ValidateQuery(ctx context.Context, sql string, databaseIDs []int64, apiKey string) model.Response {
	return b.run("validate_query", func() (interface{}, error) {
		if b.assistant == nil {
			return nil, ErrAssistantUnavailable
		}
		v, err := b.assistant.ValidateQuery(ctx, sql, b.latestSchemas(databaseIDs), apiKey)
		if err != nil {
			return nil, fmt.Errorf("validate query: %w", err)
		}
		return v, nil
	})
}
