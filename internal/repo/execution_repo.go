package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/AgentFlow/internal/domain"
)

const executionColumns = `id, agent_id, flow_name, status, request, result, error,
	idempotency_key, started_at, finished_at, created_at`

// ExecutionFilter — параметры выборки выполнений.
type ExecutionFilter struct {
	AgentID string
	Status  domain.ExecutionStatus
	Limit   int
	Offset  int
}

// ExecutionRepo хранит выполнения flow в таблице executions.
// Запрос и результат (трассировка, снимок контекста) лежат в JSONB.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create сохраняет новое выполнение.
// Возвращает ErrAlreadyExists при повторном ключе идемпотентности.
func (r *ExecutionRepo) Create(ctx context.Context, e *domain.Execution) error {
	request, err := json.Marshal(e.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO executions (id, agent_id, flow_name, status, request, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
	`,
		e.ID,
		nullString(e.AgentID),
		nullString(e.FlowName),
		string(e.Status),
		request,
		nullString(e.IdempotencyKey),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: idempotency key %q", ErrAlreadyExists, e.IdempotencyKey)
	}
	return nil
}

// GetByID возвращает выполнение по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	return scanExecution(row)
}

// GetByIdempotencyKey возвращает выполнение по ключу идемпотентности.
func (r *ExecutionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE idempotency_key = $1`, key)
	return scanExecution(row)
}

// List возвращает выполнения, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, f ExecutionFilter) ([]domain.Execution, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE ($1::text IS NULL OR agent_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`,
		nullString(f.AgentID),
		nullString(string(f.Status)),
		limit,
		max(f.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// ListPending возвращает самые старые выполнения в статусе PENDING.
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// ClaimPending атомарно переводит PENDING выполнение в RUNNING.
// Возвращает ErrNotFound, если выполнение уже забрал другой worker.
func (r *ExecutionRepo) ClaimPending(ctx context.Context, e *domain.Execution) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE executions SET status = $2, started_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, e.ID, string(e.Status), e.StartedAt)
	if err != nil {
		return fmt.Errorf("claim execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update сохраняет статус, результат и ошибку выполнения.
func (r *ExecutionRepo) Update(ctx context.Context, e *domain.Execution) error {
	var result []byte
	if e.Result != nil {
		var err error
		if result, err = json.Marshal(e.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, result = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`,
		e.ID,
		string(e.Status),
		result,
		nullString(e.Error),
		e.StartedAt,
		e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]domain.Execution, error) {
	var out []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// scanExecution читает строку executions. Подходит и для pgx.Row, и для pgx.Rows.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var (
		e                          domain.Execution
		status                     string
		request, result            []byte
		agentID, flowName, errText *string
		idempotencyKey             *string
	)

	err := row.Scan(
		&e.ID,
		&agentID,
		&flowName,
		&status,
		&request,
		&result,
		&errText,
		&idempotencyKey,
		&e.StartedAt,
		&e.FinishedAt,
		&e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	e.Status = domain.ParseExecutionStatus(status)
	e.AgentID = deref(agentID)
	e.FlowName = deref(flowName)
	e.Error = deref(errText)
	e.IdempotencyKey = deref(idempotencyKey)

	if err := json.Unmarshal(request, &e.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if result != nil {
		e.Result = &domain.FlowExecutionResult{}
		if err := json.Unmarshal(result, e.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &e, nil
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
