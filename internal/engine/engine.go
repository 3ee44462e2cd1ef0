// Package engine drives one deduplication cycle: fetch unprocessed failure
// patterns, embed them, decide merge-or-create against the suggestion pool,
// persist, and mark each pattern processed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/winnowhq/winnow/internal/cache"
	"github.com/winnowhq/winnow/internal/dedup"
	"github.com/winnowhq/winnow/internal/embedding"
	"github.com/winnowhq/winnow/internal/store"
	"github.com/winnowhq/winnow/pkg/models"
)

const runStatusTTL = 30 * time.Minute

// Step names recorded in per-pattern error reports.
const (
	StepEmbed         = "embed"
	StepDecide        = "decide"
	StepPersist       = "persist"
	StepMarkProcessed = "mark_processed"
)

// RunError describes one isolated per-pattern failure. The pattern stays
// unprocessed and is retried next cycle.
type RunError struct {
	PatternID uuid.UUID `json:"pattern_id"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
}

// RunSummary is what one batch run reports back to its trigger.
type RunSummary struct {
	RunID              uuid.UUID     `json:"run_id"`
	Processed          int           `json:"processed"`
	Merged             int           `json:"merged"`
	Created            int           `json:"created"`
	ErrorCount         int           `json:"error_count"`
	AvgMergeSimilarity float64       `json:"avg_merge_similarity"`
	Duration           time.Duration `json:"-"`
	DurationMS         int64         `json:"duration_ms"`
	Errors             []RunError    `json:"errors,omitempty"`
}

// Engine orchestrates batch deduplication runs. Processing within a run is
// strictly sequential: each decision consults a pool snapshot that includes
// suggestions created earlier in the same run, so near-duplicates arriving
// back-to-back merge instead of both creating. Run-level mutual exclusion
// is the trigger's responsibility.
type Engine struct {
	store            store.Store
	embedder         *embedding.Service
	cache            cache.Cache
	policy           dedup.Policy
	scope            store.ComparisonScope
	defaultBatchSize int
}

// New creates an Engine.
func New(st store.Store, embedder *embedding.Service, ca cache.Cache, policy dedup.Policy, scope store.ComparisonScope, defaultBatchSize int) *Engine {
	if defaultBatchSize <= 0 {
		defaultBatchSize = 20
	}
	return &Engine{
		store:            st,
		embedder:         embedder,
		cache:            ca,
		policy:           policy,
		scope:            scope,
		defaultBatchSize: defaultBatchSize,
	}
}

// Run executes one batch cycle and returns its summary. Per-pattern errors
// are isolated and reported in the summary; only failures that prevent the
// run from proceeding at all (queue or pool unreadable) are returned as an
// error, after the run row is marked failed.
func (e *Engine) Run(ctx context.Context, batchSize int) (*RunSummary, error) {
	if batchSize <= 0 {
		batchSize = e.defaultBatchSize
	}

	started := time.Now().UTC()
	run := &models.Run{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		BatchSize: batchSize,
		StartedAt: started,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	_ = e.cache.SetRunStatus(ctx, run.ID, models.RunStatusRunning, runStatusTTL)

	summary := &RunSummary{RunID: run.ID}

	patterns, err := e.store.ListUnprocessedPatterns(ctx, batchSize)
	if err != nil {
		return summary, e.failRun(ctx, run, summary, started, fmt.Errorf("listing unprocessed patterns: %w", err))
	}

	pool, err := e.store.ListForComparison(ctx, e.scope)
	if err != nil {
		return summary, e.failRun(ctx, run, summary, started, fmt.Errorf("listing comparison pool: %w", err))
	}

	slog.Info("run started",
		"run_id", run.ID,
		"patterns", len(patterns),
		"pool_size", len(pool),
		"threshold", e.policy.Threshold)

	// Embedding happens up front in bounded batches; per-text failures are
	// carried in the results and isolated below.
	texts := make([]string, len(patterns))
	for i, p := range patterns {
		texts[i] = p.EmbeddingText()
	}
	embedded := e.embedder.EmbedTexts(ctx, texts)

	var mergeScoreSum float64
	for i, pattern := range patterns {
		// A cancelled run stops cleanly between patterns; everything not yet
		// marked processed is picked up next cycle.
		if ctx.Err() != nil {
			return summary, e.failRun(ctx, run, summary, started, fmt.Errorf("run aborted: %w", ctx.Err()))
		}

		result := embedded[i]
		if result.Err != nil {
			e.recordError(summary, pattern.ID, StepEmbed, result.Err)
			continue
		}

		merged, score, ok := e.processPattern(ctx, summary, pattern, result.Vector, &pool)
		if !ok {
			continue
		}
		if merged {
			summary.Merged++
			mergeScoreSum += score
		} else {
			summary.Created++
		}

		if err := e.store.MarkPatternProcessed(ctx, pattern.ID); err != nil {
			e.recordError(summary, pattern.ID, StepMarkProcessed, err)
			continue
		}
		summary.Processed++
	}

	if summary.Merged > 0 {
		summary.AvgMergeSimilarity = mergeScoreSum / float64(summary.Merged)
	}
	summary.Duration = time.Since(started)
	summary.DurationMS = summary.Duration.Milliseconds()

	e.completeRun(ctx, run, summary, models.RunStatusCompleted, nil)

	slog.Info("run finished",
		"run_id", run.ID,
		"processed", summary.Processed,
		"merged", summary.Merged,
		"created", summary.Created,
		"errors", summary.ErrorCount,
		"duration_ms", summary.DurationMS)

	return summary, nil
}

// processPattern runs decide + persist for one pattern. The pool snapshot
// grows in place when a suggestion is created, so later patterns in the same
// run can merge into it. Failures are recorded on the summary; ok=false
// tells the caller to skip mark-processed.
func (e *Engine) processPattern(ctx context.Context, summary *RunSummary, pattern *models.FailurePattern, vector models.Vector, pool *[]*models.Suggestion) (merged bool, score float64, ok bool) {
	if !pattern.ArtifactType.IsValid() {
		e.recordError(summary, pattern.ID, StepDecide,
			fmt.Errorf("pattern carries invalid artifact type %q", pattern.ArtifactType))
		return false, 0, false
	}

	decision := e.policy.Decide(vector, *pool)

	if decision.Kind == dedup.DecisionMerge {
		_, mergeErr := e.store.MergeInto(ctx, decision.Target.ID, pattern.SourceTraceID, decision.Score)
		if mergeErr == nil {
			return true, decision.Score, true
		}
		if !errors.Is(mergeErr, store.ErrNotFound) {
			e.recordError(summary, pattern.ID, StepPersist, mergeErr)
			return false, 0, false
		}
		// Merge target vanished between decide and persist. Dropping the
		// pattern would lose data, so fall through to a forced create.
		slog.Warn("merge target missing, creating new suggestion",
			"pattern_id", pattern.ID,
			"target_id", decision.Target.ID,
			"score", decision.Score)
	}

	now := time.Now().UTC()
	suggestion := &models.Suggestion{
		ID:                uuid.New(),
		Type:              pattern.ArtifactType,
		Status:            models.StatusPending,
		Severity:          pattern.Severity,
		Embedding:         vector,
		SimilarityGroupID: uuid.New(),
		SourceTraces: []models.SourceTrace{{
			TraceID:         pattern.SourceTraceID,
			AddedAt:         now,
			SimilarityScore: 1.0,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if createErr := e.store.CreateSuggestion(ctx, suggestion); createErr != nil {
		e.recordError(summary, pattern.ID, StepPersist, createErr)
		return false, 0, false
	}

	*pool = append(*pool, suggestion)
	return false, 0, true
}

func (e *Engine) recordError(summary *RunSummary, patternID uuid.UUID, step string, err error) {
	summary.ErrorCount++
	summary.Errors = append(summary.Errors, RunError{
		PatternID: patternID,
		Step:      step,
		Message:   err.Error(),
	})
	slog.Error("pattern deferred",
		"pattern_id", patternID,
		"step", step,
		"error", err)
}

// failRun marks the run row failed and returns the fatal error.
func (e *Engine) failRun(ctx context.Context, run *models.Run, summary *RunSummary, started time.Time, err error) error {
	summary.Duration = time.Since(started)
	summary.DurationMS = summary.Duration.Milliseconds()
	e.completeRun(ctx, run, summary, models.RunStatusFailed, err)
	return err
}

func (e *Engine) completeRun(ctx context.Context, run *models.Run, summary *RunSummary, status string, runErr error) {
	now := time.Now().UTC()
	run.Status = status
	run.Processed = summary.Processed
	run.Merged = summary.Merged
	run.Created = summary.Created
	run.ErrorCount = summary.ErrorCount
	run.AvgMergeSimilarity = summary.AvgMergeSimilarity
	run.DurationMS = summary.DurationMS
	run.CompletedAt = &now
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}

	if err := e.store.CompleteRun(ctx, run); err != nil {
		slog.Error("failed to persist run summary", "run_id", run.ID, "error", err)
	}
	_ = e.cache.SetRunStatus(ctx, run.ID, status, runStatusTTL)
}
