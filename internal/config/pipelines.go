package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/promptelt/promptelt/internal/model"
)

// Pipeline status values.
const (
	PipelineDraft  = "draft"
	PipelineActive = "active"
	PipelinePaused = "paused"
)

type pipelineRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	Source      string        `db:"source"`
	Target      string        `db:"target"`
	Status      string        `db:"status"`
	StepsJSON   string        `db:"steps_json"`
	ParentID    sql.NullInt64 `db:"parent_id"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func pipelineRowFromModel(p *model.Pipeline) (pipelineRow, error) {
	steps, err := marshalJSON(p.Steps, "[]")
	if err != nil {
		return pipelineRow{}, fmt.Errorf("marshal pipeline steps: %w", err)
	}
	row := pipelineRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Source:      p.Source,
		Target:      p.Target,
		Status:      p.Status,
		StepsJSON:   steps,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.ParentID != nil {
		row.ParentID = sql.NullInt64{Int64: *p.ParentID, Valid: true}
	}
	return row, nil
}

func (r pipelineRow) toModel() (model.Pipeline, error) {
	p := model.Pipeline{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Source:      r.Source,
		Target:      r.Target,
		Status:      r.Status,
		Steps:       []model.PipelineStep{},
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ParentID.Valid {
		id := r.ParentID.Int64
		p.ParentID = &id
	}
	if err := unmarshalJSON(r.StepsJSON, &p.Steps); err != nil {
		return model.Pipeline{}, fmt.Errorf("decode steps of pipeline %d: %w", r.ID, err)
	}
	return p, nil
}

func validPipelineStatus(s string) bool {
	switch s {
	case PipelineDraft, PipelineActive, PipelinePaused:
		return true
	}
	return false
}

// CreatePipeline saves a pipeline. An empty Status becomes draft.
func (s *Store) CreatePipeline(ctx context.Context, p *model.Pipeline) error {
	if p.Status == "" {
		p.Status = PipelineDraft
	}
	if !validPipelineStatus(p.Status) {
		return fmt.Errorf("invalid pipeline status %q", p.Status)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	row, err := pipelineRowFromModel(p)
	if err != nil {
		return err
	}
	const q = `INSERT INTO pipelines
		(name, description, source, target, status, steps_json, parent_id, created_at, updated_at)
		VALUES
		(:name, :description, :source, :target, :status, :steps_json, :parent_id, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get pipeline id: %w", err)
	}
	p.ID = id
	if p.Steps == nil {
		p.Steps = []model.PipelineStep{}
	}
	return nil
}

// GetPipeline returns a pipeline by ID.
func (s *Store) GetPipeline(ctx context.Context, id int64) (*model.Pipeline, error) {
	var row pipelineRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM pipelines WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	p, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPipelines returns all pipelines, newest first.
func (s *Store) ListPipelines(ctx context.Context) ([]model.Pipeline, error) {
	var rows []pipelineRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM pipelines ORDER BY id DESC"); err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	out := make([]model.Pipeline, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdatePipeline rewrites a pipeline. UpdatedAt is refreshed.
func (s *Store) UpdatePipeline(ctx context.Context, p *model.Pipeline) error {
	if !validPipelineStatus(p.Status) {
		return fmt.Errorf("invalid pipeline status %q", p.Status)
	}
	p.UpdatedAt = time.Now().UTC()
	row, err := pipelineRowFromModel(p)
	if err != nil {
		return err
	}
	const q = `UPDATE pipelines SET
		name = :name, description = :description, source = :source, target = :target,
		status = :status, steps_json = :steps_json, parent_id = :parent_id, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	return expectOne(result, "update pipeline")
}

// DeletePipeline removes a pipeline. Pipelines derived from it keep
// existing with their parent cleared.
func (s *Store) DeletePipeline(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM pipelines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	return expectOne(result, "delete pipeline")
}
