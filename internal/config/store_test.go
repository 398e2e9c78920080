package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/promptelt/promptelt/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDatabaseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &model.DatabaseConfig{
		Name:             "warehouse",
		Type:             "snowflake",
		ConnectionString: "demo:snowflake",
		Metadata:         map[string]interface{}{"schema": "ANALYTICS"},
	}
	if err := s.CreateDatabase(ctx, d); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}
	if d.Status != model.DatabaseOffline {
		t.Errorf("default status = %q, want offline", d.Status)
	}

	got, err := s.GetDatabase(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDatabase: %v", err)
	}
	if got.Name != "warehouse" || got.Type != "snowflake" {
		t.Errorf("got %+v", got)
	}
	if got.Metadata["schema"] != "ANALYTICS" {
		t.Errorf("metadata = %v", got.Metadata)
	}

	byName, err := s.GetDatabaseByName(ctx, "warehouse")
	if err != nil {
		t.Fatalf("GetDatabaseByName: %v", err)
	}
	if byName.ID != d.ID {
		t.Errorf("got ID %d, want %d", byName.ID, d.ID)
	}

	d.Description = "sales warehouse"
	if err := s.UpdateDatabase(ctx, d); err != nil {
		t.Fatalf("UpdateDatabase: %v", err)
	}
	if err := s.SetDatabaseStatus(ctx, d.ID, model.DatabaseOnline); err != nil {
		t.Fatalf("SetDatabaseStatus: %v", err)
	}
	got, _ = s.GetDatabase(ctx, d.ID)
	if got.Description != "sales warehouse" || got.Status != model.DatabaseOnline {
		t.Errorf("after update got %+v", got)
	}

	list, err := s.ListDatabases(ctx)
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d databases, want 1", len(list))
	}

	if err := s.DeleteDatabase(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDatabase: %v", err)
	}
	if _, err := s.GetDatabase(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteDatabase(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDatabaseNameUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateDatabase(ctx, &model.DatabaseConfig{Name: "a", Type: "postgres"}); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := s.CreateDatabase(ctx, &model.DatabaseConfig{Name: "a", Type: "mysql"}); err == nil {
		t.Error("expected duplicate name to fail")
	}
}

func TestConversationMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &model.Conversation{}
	if err := s.CreateConversation(ctx, c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected generated conversation ID")
	}

	long := strings.Repeat("how many orders ", 10)
	user := &model.Message{ConversationID: c.ID, Role: model.RoleUser, Content: long, DatabaseIDs: []int64{1, 2}}
	if err := s.AddMessage(ctx, user); err != nil {
		t.Fatalf("AddMessage(user): %v", err)
	}
	reply := &model.Message{
		ConversationID: c.ID,
		Role:           model.RoleAssistant,
		Content:        "There are 42 orders.",
		Metadata:       map[string]interface{}{"sql": "SELECT COUNT(*) FROM orders", "confidence": float64(90)},
	}
	if err := s.AddMessage(ctx, reply); err != nil {
		t.Fatalf("AddMessage(assistant): %v", err)
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || len(msgs[0].DatabaseIDs) != 2 {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Metadata["sql"] != "SELECT COUNT(*) FROM orders" {
		t.Errorf("assistant metadata = %v", msgs[1].Metadata)
	}

	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if n := len([]rune(got.Title)); n != maxTitleLen || !strings.HasSuffix(got.Title, "...") {
		t.Errorf("title = %q (%d runes)", got.Title, n)
	}

	if err := s.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	msgs, _ = s.ListMessages(ctx, c.ID)
	if len(msgs) != 0 {
		t.Errorf("messages survived conversation delete: %d", len(msgs))
	}
}

func TestAddMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddMessage(ctx, &model.Message{ConversationID: "missing", Role: model.RoleUser, Content: "hi"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown conversation: got %v, want ErrNotFound", err)
	}

	c := &model.Conversation{Title: "kept"}
	if err := s.CreateConversation(ctx, c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := s.AddMessage(ctx, &model.Message{ConversationID: c.ID, Role: "system", Content: "x"}); err == nil {
		t.Error("expected invalid role to fail")
	}
	if err := s.AddMessage(ctx, &model.Message{ConversationID: c.ID, Role: model.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	got, _ := s.GetConversation(ctx, c.ID)
	if got.Title != "kept" {
		t.Errorf("explicit title overwritten: %q", got.Title)
	}
}

func TestPipelineCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := &model.Pipeline{
		Name:   "orders to warehouse",
		Source: "postgres",
		Target: "snowflake",
		Steps: []model.PipelineStep{
			{ID: "step-1", Name: "Extract", Description: "read orders"},
			{ID: "step-2", Name: "Load", Dependencies: []string{"step-1"}},
		},
	}
	if err := s.CreatePipeline(ctx, parent); err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}
	if parent.Status != PipelineDraft {
		t.Errorf("default status = %q", parent.Status)
	}

	child := &model.Pipeline{Name: "derived", ParentID: &parent.ID}
	if err := s.CreatePipeline(ctx, child); err != nil {
		t.Fatalf("CreatePipeline(child): %v", err)
	}

	got, err := s.GetPipeline(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetPipeline: %v", err)
	}
	if len(got.Steps) != 2 || got.Steps[1].Dependencies[0] != "step-1" {
		t.Errorf("steps = %+v", got.Steps)
	}

	parent.Status = PipelineActive
	if err := s.UpdatePipeline(ctx, parent); err != nil {
		t.Fatalf("UpdatePipeline: %v", err)
	}
	parent.Status = "running"
	if err := s.UpdatePipeline(ctx, parent); err == nil {
		t.Error("expected invalid status to fail")
	}

	list, err := s.ListPipelines(ctx)
	if err != nil {
		t.Fatalf("ListPipelines: %v", err)
	}
	if len(list) != 2 || list[0].ID != child.ID {
		t.Errorf("list = %+v, want newest first", list)
	}

	if err := s.DeletePipeline(ctx, parent.ID); err != nil {
		t.Fatalf("DeletePipeline: %v", err)
	}
	orphan, err := s.GetPipeline(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetPipeline(child): %v", err)
	}
	if orphan.ParentID != nil {
		t.Errorf("parent not cleared: %v", *orphan.ParentID)
	}
	if _, err := s.GetPipeline(ctx, parent.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "instance_id")
	if err != nil || v != "" {
		t.Fatalf("GetSetting(unset) = %q, %v", v, err)
	}
	if err := s.SetSetting(ctx, "instance_id", "abc"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "instance_id", "def"); err != nil {
		t.Fatalf("SetSetting(overwrite): %v", err)
	}
	if v, _ := s.GetSetting(ctx, "instance_id"); v != "def" {
		t.Errorf("GetSetting = %q, want def", v)
	}
	all, err := s.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if len(all) != 1 || all["instance_id"] != "def" {
		t.Errorf("ListSettings = %v", all)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
