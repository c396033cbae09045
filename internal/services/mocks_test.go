package services

import (
	"context"
	"sync"

	"github.com/vvka-141/tripmerge/internal/merge"
	"github.com/vvka-141/tripmerge/internal/staging"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

type mockStager struct {
	mu       sync.Mutex
	requests []staging.StageRequest
	rows     int64
	failFor  map[tripmerge.BatchKey]error
	onStage  func(ctx context.Context)
}

func (m *mockStager) Stage(ctx context.Context, req staging.StageRequest) (staging.StageResult, error) {
	if m.onStage != nil {
		m.onStage(ctx)
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	err := m.failFor[req.Key]
	m.mu.Unlock()
	if err != nil {
		return staging.StageResult{}, err
	}
	return staging.StageResult{
		ObjectKey: req.Key.ObjectKey(req.Prefix, req.Filename),
		Uploaded:  true,
		Job:       tripmerge.LoadJob{ID: "job-" + req.Key.String(), Table: req.Key.StagingTable(), Rows: m.rows, SchemaSource: tripmerge.SchemaExplicit},
	}, nil
}

type mockDeriver struct {
	err error
}

func (m *mockDeriver) Derive(context.Context, tripmerge.BatchKey, string) (int64, error) {
	return 3, m.err
}

type mockReconciler struct {
	mu     sync.Mutex
	merged []tripmerge.BatchKey
	err    error
}

func (m *mockReconciler) Merge(_ context.Context, key tripmerge.BatchKey) (merge.Result, error) {
	if m.err != nil {
		return merge.Result{}, m.err
	}
	m.mu.Lock()
	m.merged = append(m.merged, key)
	m.mu.Unlock()
	return merge.Result{Master: key.MasterTable(), Inserted: 2, Path: merge.PathConditional, Attempts: 1}, nil
}
