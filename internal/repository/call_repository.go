package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
)

const callColumns = `id, name, description, starts_at, ends_at, cost_per_area, max_areas, active, created_at, updated_at`

// CallRepository persists calls for registration and their areas.
type CallRepository struct {
	db *sqlx.DB
}

// NewCallRepository constructs a CallRepository.
func NewCallRepository(db *sqlx.DB) *CallRepository {
	return &CallRepository{db: db}
}

type areaRow struct {
	models.Area
	Position int `db:"position"`
}

// List returns a page of calls with their areas, most recent start first.
func (r *CallRepository) List(ctx context.Context, filter models.CallFilter) ([]models.Call, int, error) {
	base := "FROM calls WHERE 1=1"
	var args []interface{}
	if filter.Active != nil {
		base += fmt.Sprintf(" AND active = $%d", len(args)+1)
		args = append(args, *filter.Active)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY starts_at DESC, id LIMIT %d OFFSET %d", callColumns, base, size, (page-1)*size)
	var calls []models.Call
	if err := r.db.SelectContext(ctx, &calls, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	if err := r.attachAreas(ctx, calls); err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

// ListAll returns every call with its areas. Used by reconciliation as a lookup table.
func (r *CallRepository) ListAll(ctx context.Context) ([]models.Call, error) {
	var calls []models.Call
	if err := r.db.SelectContext(ctx, &calls, "SELECT "+callColumns+" FROM calls ORDER BY starts_at DESC, id"); err != nil {
		return nil, fmt.Errorf("list all calls: %w", err)
	}
	if err := r.attachAreas(ctx, calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// FindByID fetches a call and its areas. Returns sql.ErrNoRows when missing.
func (r *CallRepository) FindByID(ctx context.Context, id string) (*models.Call, error) {
	var call models.Call
	if err := r.db.GetContext(ctx, &call, "SELECT "+callColumns+" FROM calls WHERE id = $1", id); err != nil {
		return nil, err
	}
	calls := []models.Call{call}
	if err := r.attachAreas(ctx, calls); err != nil {
		return nil, err
	}
	return &calls[0], nil
}

// ListAreas returns every area across calls.
func (r *CallRepository) ListAreas(ctx context.Context) ([]models.Area, error) {
	const query = `SELECT id, call_id, name, description, requirements, position FROM areas ORDER BY call_id, position, id`
	var rows []areaRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	areas := make([]models.Area, len(rows))
	for i, row := range rows {
		areas[i] = row.Area
	}
	return areas, nil
}

func (r *CallRepository) attachAreas(ctx context.Context, calls []models.Call) error {
	if len(calls) == 0 {
		return nil
	}
	ids := make([]string, len(calls))
	index := make(map[string]int, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
		index[c.ID] = i
		calls[i].Areas = []models.Area{}
	}

	const query = `SELECT id, call_id, name, description, requirements, position FROM areas WHERE call_id = ANY($1) ORDER BY call_id, position, id`
	var rows []areaRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list call areas: %w", err)
	}
	for _, row := range rows {
		if i, ok := index[row.CallID]; ok {
			calls[i].Areas = append(calls[i].Areas, row.Area)
		}
	}
	return nil
}

// Create inserts the call and its areas in one transaction.
func (r *CallRepository) Create(ctx context.Context, call *models.Call) (err error) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create call: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO calls (id, name, description, starts_at, ends_at, cost_per_area, max_areas, active, created_at, updated_at)
        VALUES (:id, :name, :description, :starts_at, :ends_at, :cost_per_area, :max_areas, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, call); err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	if err = insertAreas(ctx, tx, call.ID, call.Areas); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create call: %w", err)
	}
	return nil
}

// Update modifies the call's own fields. Areas are managed by ReplaceAreas.
func (r *CallRepository) Update(ctx context.Context, call *models.Call) error {
	call.UpdatedAt = time.Now().UTC()
	const query = `UPDATE calls SET name = :name, description = :description, starts_at = :starts_at, ends_at = :ends_at,
        cost_per_area = :cost_per_area, max_areas = :max_areas, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, call); err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}

// ReplaceAreas swaps the call's area list atomically.
func (r *CallRepository) ReplaceAreas(ctx context.Context, callID string, areas []models.Area) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace areas: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM areas WHERE call_id = $1`, callID); err != nil {
		return fmt.Errorf("clear areas: %w", err)
	}
	if err = insertAreas(ctx, tx, callID, areas); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE calls SET updated_at = $2 WHERE id = $1`, callID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch call: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace areas: %w", err)
	}
	return nil
}

func insertAreas(ctx context.Context, tx *sqlx.Tx, callID string, areas []models.Area) error {
	const query = `INSERT INTO areas (id, call_id, name, description, requirements, position)
        VALUES (:id, :call_id, :name, :description, :requirements, :position)`
	for i := range areas {
		areas[i].CallID = callID
		if strings.TrimSpace(areas[i].ID) == "" {
			areas[i].ID = uuid.NewString()
		}
		row := areaRow{Area: areas[i], Position: i}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("insert area %s: %w", areas[i].ID, err)
		}
	}
	return nil
}
