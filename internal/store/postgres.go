package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/winnowhq/winnow/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Failure Patterns ---

func (s *PostgresStore) CreateFailurePattern(ctx context.Context, pattern *models.FailurePattern) error {
	if !pattern.ArtifactType.IsValid() {
		return fmt.Errorf("create failure pattern: invalid artifact type %q", pattern.ArtifactType)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failure_patterns (id, failure_type, trigger_condition, artifact_type, severity, confidence, source_trace_id, processed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pattern.ID, pattern.FailureType, pattern.TriggerCondition, pattern.ArtifactType,
		pattern.Severity, pattern.Confidence, pattern.SourceTraceID, pattern.Processed,
		pattern.CreatedAt, pattern.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("create failure pattern: %w", err)
	}
	return nil
}

// ListUnprocessedPatterns returns up to limit patterns with processed=false,
// oldest first, so deferred patterns are retried before newer arrivals.
func (s *PostgresStore) ListUnprocessedPatterns(ctx context.Context, limit int) ([]*models.FailurePattern, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, failure_type, trigger_condition, artifact_type, severity, confidence, source_trace_id, processed, created_at, updated_at
		 FROM failure_patterns WHERE processed = FALSE ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*models.FailurePattern
	for rows.Next() {
		var p models.FailurePattern
		if err := rows.Scan(&p.ID, &p.FailureType, &p.TriggerCondition, &p.ArtifactType,
			&p.Severity, &p.Confidence, &p.SourceTraceID, &p.Processed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan failure pattern: %w", err)
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

func (s *PostgresStore) MarkPatternProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE failure_patterns SET processed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark pattern processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Suggestions ---

// CreateSuggestion inserts the suggestion row and its seed lineage entries
// in one transaction, so a suggestion is never visible without lineage.
func (s *PostgresStore) CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error {
	if len(suggestion.SourceTraces) == 0 {
		return fmt.Errorf("create suggestion: at least one source trace is required")
	}
	if !suggestion.Type.IsValid() {
		return fmt.Errorf("create suggestion: invalid type %q", suggestion.Type)
	}
	if !suggestion.Status.IsValid() {
		return fmt.Errorf("create suggestion: invalid status %q", suggestion.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create suggestion: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO suggestions (id, type, status, severity, embedding, similarity_group_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		suggestion.ID, suggestion.Type, suggestion.Status, suggestion.Severity,
		pgvector.NewVector(suggestion.Embedding), suggestion.SimilarityGroupID,
		suggestion.CreatedAt, suggestion.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("create suggestion: %w", err)
	}

	for _, trace := range suggestion.SourceTraces {
		_, err = tx.Exec(ctx,
			`INSERT INTO suggestion_traces (suggestion_id, trace_id, added_at, similarity_score)
			 VALUES ($1, $2, $3, $4)`,
			suggestion.ID, trace.TraceID, trace.AddedAt, trace.SimilarityScore)
		if err != nil {
			return fmt.Errorf("seed suggestion trace: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create suggestion: %w", err)
	}
	return nil
}

// MergeInto atomically appends a lineage entry and bumps updated_at.
// Returns ErrNotFound if the suggestion no longer exists.
func (s *PostgresStore) MergeInto(ctx context.Context, suggestionID uuid.UUID, traceID string, similarityScore float64) (*models.Suggestion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	var updatedAt time.Time
	err = tx.QueryRow(ctx,
		`UPDATE suggestions SET updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		suggestionID).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("merge into suggestion: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO suggestion_traces (suggestion_id, trace_id, added_at, similarity_score)
		 VALUES ($1, $2, NOW(), $3)`,
		suggestionID, traceID, similarityScore)
	if err != nil {
		return nil, fmt.Errorf("append suggestion trace: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}

	return s.GetSuggestion(ctx, suggestionID)
}

// UpdateSuggestionStatus validates the pending -> {approved, rejected}
// transition under a row lock and appends a status-history entry. Both the
// engine and the external approval surface go through here, so the audit
// trail is a single source of truth.
func (s *PostgresStore) UpdateSuggestionStatus(ctx context.Context, id uuid.UUID, newStatus models.SuggestionStatus, actor, notes string) (*models.Suggestion, error) {
	if newStatus != models.StatusApproved && newStatus != models.StatusRejected {
		return nil, fmt.Errorf("%w: target status must be approved or rejected, got %q", ErrInvalidTransition, newStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.SuggestionStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM suggestions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion status: %w", err)
	}

	if current != models.StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, newStatus)
	}

	_, err = tx.Exec(ctx,
		`UPDATE suggestions SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, newStatus)
	if err != nil {
		return nil, fmt.Errorf("update suggestion status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO suggestion_status_history (suggestion_id, from_status, to_status, actor, notes, changed_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, current, newStatus, actor, notes)
	if err != nil {
		return nil, fmt.Errorf("append status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}

	return s.GetSuggestion(ctx, id)
}

// ListForComparison returns the comparison pool with cached embeddings,
// ordered by created_at ascending (id as final tie-break) so that
// FindBestMatch tie-breaking is deterministic across runs. Lineage and
// history are not loaded; the pool is only consulted for embeddings.
func (s *PostgresStore) ListForComparison(ctx context.Context, scope ComparisonScope) ([]*models.Suggestion, error) {
	query := `SELECT id, type, status, severity, embedding, similarity_group_id, created_at, updated_at
	          FROM suggestions`
	if scope == ScopePending {
		query += ` WHERE status = 'pending'`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list suggestions for comparison: %w", err)
	}
	defer rows.Close()

	var suggestions []*models.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, type, status, severity, embedding, similarity_group_id, created_at, updated_at
		 FROM suggestions WHERE id = $1`, id)

	sg, err := scanSuggestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if sg.SourceTraces, err = s.listTraces(ctx, id); err != nil {
		return nil, err
	}
	if sg.StatusHistory, err = s.listStatusHistory(ctx, id); err != nil {
		return nil, err
	}
	return sg, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]*models.Suggestion, int, error) {
	// Build WHERE clause dynamically
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, filter.Severity)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM suggestions" + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suggestions: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT id, type, status, severity, embedding, similarity_group_id, created_at, updated_at
		 FROM suggestions%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*models.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, 0, err
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, total, rows.Err()
}

func (s *PostgresStore) listTraces(ctx context.Context, suggestionID uuid.UUID) ([]models.SourceTrace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trace_id, added_at, similarity_score
		 FROM suggestion_traces WHERE suggestion_id = $1 ORDER BY position ASC`, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("list suggestion traces: %w", err)
	}
	defer rows.Close()

	var traces []models.SourceTrace
	for rows.Next() {
		var t models.SourceTrace
		if err := rows.Scan(&t.TraceID, &t.AddedAt, &t.SimilarityScore); err != nil {
			return nil, fmt.Errorf("scan suggestion trace: %w", err)
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

func (s *PostgresStore) listStatusHistory(ctx context.Context, suggestionID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_status, to_status, actor, notes, changed_at
		 FROM suggestion_status_history WHERE suggestion_id = $1 ORDER BY position ASC`, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		if err := rows.Scan(&e.FromStatus, &e.ToStatus, &e.Actor, &e.Notes, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, batch_size, started_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.Status, run.BatchSize, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *models.Run) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, processed = $3, merged = $4, created = $5,
		        error_count = $6, avg_merge_similarity = $7, duration_ms = $8,
		        error_message = $9, completed_at = $10
		 WHERE id = $1`,
		run.ID, run.Status, run.Processed, run.Merged, run.Created,
		run.ErrorCount, run.AvgMergeSimilarity, run.DurationMS,
		run.ErrorMessage, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var r models.Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, batch_size, processed, merged, created, error_count,
		        avg_merge_similarity, duration_ms, error_message, started_at, completed_at
		 FROM runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.Status, &r.BatchSize, &r.Processed, &r.Merged, &r.Created,
		&r.ErrorCount, &r.AvgMergeSimilarity, &r.DurationMS, &r.ErrorMessage,
		&r.StartedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// scanSuggestion scans the common suggestion column set from a row.
func scanSuggestion(row pgx.Row) (*models.Suggestion, error) {
	var sg models.Suggestion
	var emb pgvector.Vector
	if err := row.Scan(&sg.ID, &sg.Type, &sg.Status, &sg.Severity, &emb,
		&sg.SimilarityGroupID, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan suggestion: %w", err)
	}
	sg.Embedding = models.Vector(emb.Slice())
	return &sg, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
