package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
)

const registrationColumns = `id, student_id, call_id, status, kind, total_cost, created_at, updated_at`

const uniqueViolation = "23505"

// Save failures callers act on.
var (
	ErrRegistrationExists = errors.New("another registration holds this student and call")
	ErrRegistrationLocked = errors.New("registration is no longer pending")
)

// RegistrationRepository persists registrations with their area snapshots and payment orders.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

type registrationAreaRow struct {
	RegistrationID string              `db:"registration_id"`
	AreaID         string              `db:"area_id"`
	CallID         string              `db:"call_id"`
	Name           string              `db:"name"`
	Description    string              `db:"description"`
	Requirements   models.CourseRanges `db:"requirements"`
	Position       int                 `db:"position"`
}

func (r registrationAreaRow) area() models.Area {
	return models.Area{ID: r.AreaID, CallID: r.CallID, Name: r.Name, Description: r.Description, Requirements: r.Requirements}
}

// FindByID loads one registration. Returns sql.ErrNoRows when missing.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, "SELECT "+registrationColumns+" FROM registrations WHERE id = $1", id); err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindByStudentAndCall returns the registration for the pair. Returns sql.ErrNoRows when missing.
func (r *RegistrationRepository) FindByStudentAndCall(ctx context.Context, studentID, callID string) (*models.Registration, error) {
	var reg models.Registration
	const query = "SELECT " + registrationColumns + " FROM registrations WHERE student_id = $1 AND call_id = $2"
	if err := r.db.GetContext(ctx, &reg, query, studentID, callID); err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *RegistrationRepository) hydrate(ctx context.Context, reg *models.Registration) error {
	var rows []registrationAreaRow
	const areasQuery = `SELECT registration_id, area_id, call_id, name, description, requirements, position
        FROM registration_areas WHERE registration_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &rows, areasQuery, reg.ID); err != nil {
		return fmt.Errorf("list registration areas: %w", err)
	}
	reg.Areas = make([]models.Area, len(rows))
	for i, row := range rows {
		reg.Areas[i] = row.area()
	}

	const orderQuery = `SELECT id, registration_id, amount, status, kind, created_at, expires_at FROM payment_orders WHERE registration_id = $1`
	if err := r.db.GetContext(ctx, &reg.PaymentOrder, orderQuery, reg.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find payment order: %w", err)
	}
	return nil
}

// ListRaw reads every stored registration in the loose shape reconciliation consumes.
func (r *RegistrationRepository) ListRaw(ctx context.Context) ([]reconcile.RawRegistration, error) {
	return listRaw(ctx, r.db)
}

func listRaw(ctx context.Context, q sqlx.QueryerContext) ([]reconcile.RawRegistration, error) {
	var regs []models.Registration
	if err := sqlx.SelectContext(ctx, q, &regs, "SELECT "+registrationColumns+" FROM registrations ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	var areaRows []registrationAreaRow
	const areasQuery = `SELECT registration_id, area_id, call_id, name, description, requirements, position
        FROM registration_areas ORDER BY registration_id, position`
	if err := sqlx.SelectContext(ctx, q, &areaRows, areasQuery); err != nil {
		return nil, fmt.Errorf("list registration areas: %w", err)
	}
	areas := make(map[string][]reconcile.RawArea)
	for _, row := range areaRows {
		areas[row.RegistrationID] = append(areas[row.RegistrationID], reconcile.RawArea{
			ID:           row.AreaID,
			CallID:       row.CallID,
			Name:         row.Name,
			Description:  row.Description,
			Requirements: row.Requirements,
		})
	}

	var orders []models.PaymentOrder
	if err := sqlx.SelectContext(ctx, q, &orders, `SELECT id, registration_id, amount, status, kind, created_at, expires_at FROM payment_orders`); err != nil {
		return nil, fmt.Errorf("list payment orders: %w", err)
	}
	byReg := make(map[string]*models.PaymentOrder, len(orders))
	for i := range orders {
		byReg[orders[i].RegistrationID] = &orders[i]
	}

	raw := make([]reconcile.RawRegistration, len(regs))
	for i, reg := range regs {
		raw[i] = reconcile.RawRegistration{
			ID:           reg.ID,
			StudentID:    reg.StudentID,
			CallID:       reg.CallID,
			Areas:        areas[reg.ID],
			Status:       reg.Status,
			Kind:         reg.Kind,
			TotalCost:    reg.TotalCost,
			CreatedAt:    reg.CreatedAt,
			UpdatedAt:    reg.UpdatedAt,
			PaymentOrder: byReg[reg.ID],
		}
	}
	return raw, nil
}

// Save stores a submitted registration with its areas and order. An existing row is only
// overwritten while pending (ErrRegistrationLocked otherwise), and a new row for a student
// and call that already have one fails with ErrRegistrationExists.
func (r *RegistrationRepository) Save(ctx context.Context, reg *models.Registration) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = saveTx(ctx, tx, reg, true); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save registration: %w", err)
	}
	return nil
}

// Rewrite runs one reconciliation pass over the stored set. The registration tables are
// locked against writers for the whole transaction, so fn sees a snapshot no submission
// or payment update can change before its output replaces it.
func (r *RegistrationRepository) Rewrite(ctx context.Context, fn func([]reconcile.RawRegistration) ([]models.Registration, error)) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rewrite registrations: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `LOCK TABLE registrations, registration_areas, payment_orders IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock registrations: %w", err)
	}
	raw, err := listRaw(ctx, tx)
	if err != nil {
		return err
	}
	regs, err := fn(raw)
	if err != nil {
		return err
	}
	if err = replaceTx(ctx, tx, regs); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rewrite registrations: %w", err)
	}
	return nil
}

// replaceTx makes regs the complete registration set: every stored registration not among
// them is deleted and each is saved as given.
func replaceTx(ctx context.Context, tx *sqlx.Tx, regs []models.Registration) error {
	ids := make([]string, len(regs))
	for i := range regs {
		ids[i] = regs[i].ID
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE NOT (id = ANY($1))`, pq.Array(ids)); err != nil {
		return fmt.Errorf("prune registrations: %w", err)
	}
	for i := range regs {
		if err := saveTx(ctx, tx, &regs[i], false); err != nil {
			return err
		}
	}
	return nil
}

func saveTx(ctx context.Context, tx *sqlx.Tx, reg *models.Registration, pendingOnly bool) error {
	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = time.Now().UTC()
	}

	upsert := `INSERT INTO registrations (id, student_id, call_id, status, kind, total_cost, created_at, updated_at)
        VALUES (:id, :student_id, :call_id, :status, :kind, :total_cost, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, kind = EXCLUDED.kind,
            total_cost = EXCLUDED.total_cost, updated_at = EXCLUDED.updated_at`
	if pendingOnly {
		upsert += ` WHERE registrations.status = 'pending'`
	}
	res, err := tx.NamedExecContext(ctx, upsert, reg)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrRegistrationExists
		}
		return fmt.Errorf("upsert registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRegistrationLocked
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_areas WHERE registration_id = $1`, reg.ID); err != nil {
		return fmt.Errorf("clear registration areas: %w", err)
	}
	const insertArea = `INSERT INTO registration_areas (registration_id, area_id, call_id, name, description, requirements, position)
        VALUES (:registration_id, :area_id, :call_id, :name, :description, :requirements, :position)`
	for i, a := range reg.Areas {
		row := registrationAreaRow{
			RegistrationID: reg.ID,
			AreaID:         a.ID,
			CallID:         a.CallID,
			Name:           a.Name,
			Description:    a.Description,
			Requirements:   a.Requirements,
			Position:       i,
		}
		if _, err := tx.NamedExecContext(ctx, insertArea, row); err != nil {
			return fmt.Errorf("insert registration area %s: %w", a.ID, err)
		}
	}

	order := reg.PaymentOrder
	order.RegistrationID = reg.ID
	const upsertOrder = `INSERT INTO payment_orders (id, registration_id, amount, status, kind, created_at, expires_at)
        VALUES (:id, :registration_id, :amount, :status, :kind, :created_at, :expires_at)
        ON CONFLICT (registration_id) DO UPDATE SET id = EXCLUDED.id, amount = EXCLUDED.amount, status = EXCLUDED.status,
            kind = EXCLUDED.kind, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`
	if _, err := tx.NamedExecContext(ctx, upsertOrder, order); err != nil {
		return fmt.Errorf("upsert payment order: %w", err)
	}
	return nil
}

// UpdateStatus moves the registration and its payment order to status.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update status: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE payment_orders SET status = $2 WHERE registration_id = $1`, id, status); err != nil {
		return fmt.Errorf("update payment order status: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update status: %w", err)
	}
	return nil
}

// Delete removes a registration; areas and order cascade.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
