package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
)

var (
	registrationRowColumns = []string{"id", "student_id", "call_id", "status", "kind", "total_cost", "created_at", "updated_at"}
	regAreaColumns         = []string{"registration_id", "area_id", "call_id", "name", "description", "requirements", "position"}
	orderColumns           = []string{"id", "registration_id", "amount", "status", "kind", "created_at", "expires_at"}
)

func TestRegistrationRepositoryFindByStudentAndCall(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM registrations WHERE student_id = \$1 AND call_id = \$2`).
		WithArgs("stu-1", "call-1").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).AddRow("reg-1", "stu-1", "call-1", "pending", "individual", 32.0, now, now))
	mock.ExpectQuery(`FROM registration_areas WHERE registration_id = \$1`).
		WithArgs("reg-1").
		WillReturnRows(sqlmock.NewRows(regAreaColumns).
			AddRow("reg-1", "mat", "call-1", "Matemática", "Álgebra", nil, 0).
			AddRow("reg-1", "fis", "call-1", "Física", "Mecánica", "7-12", 1))
	mock.ExpectQuery(`FROM payment_orders WHERE registration_id = \$1`).
		WithArgs("reg-1").
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow("ord-1", "reg-1", 32.0, "pending", "individual", now, now.Add(time.Hour)))

	reg, err := repo.FindByStudentAndCall(context.Background(), "stu-1", "call-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"mat", "fis"}, reg.AreaIDs())
	assert.Equal(t, "ord-1", reg.PaymentOrder.ID)
	assert.Equal(t, models.RegistrationStatusPending, reg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySave(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	reg := &models.Registration{
		ID: "reg-1", StudentID: "stu-1", CallID: "call-1",
		Status: models.RegistrationStatusPending, Kind: models.OrderKindIndividual, TotalCost: 16,
		CreatedAt: now, UpdatedAt: now,
		Areas:        []models.Area{{ID: "mat", CallID: "call-1", Name: "Matemática", Description: "Álgebra"}},
		PaymentOrder: models.PaymentOrder{ID: "ord-1", Amount: 16, Status: models.RegistrationStatusPending, Kind: models.OrderKindIndividual, CreatedAt: now, ExpiresAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registrations .* ON CONFLICT \(id\) DO UPDATE .* WHERE registrations.status = 'pending'`).
		WithArgs("reg-1", "stu-1", "call-1", models.RegistrationStatusPending, models.OrderKindIndividual, 16.0, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM registration_areas").WithArgs("reg-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO registration_areas").
		WithArgs("reg-1", "mat", "call-1", "Matemática", "Álgebra", nil, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_orders").
		WithArgs("ord-1", "reg-1", 16.0, models.RegistrationStatusPending, models.OrderKindIndividual, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(context.Background(), reg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListRaw(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM registrations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).
			AddRow("reg-1", "stu-1", "call-1", "paid", "individual", 16.0, now, now).
			AddRow("reg-2", "stu-2", "call-1", "pending", "group", 0.0, now, now))
	mock.ExpectQuery(`FROM registration_areas ORDER BY registration_id, position`).
		WillReturnRows(sqlmock.NewRows(regAreaColumns).AddRow("reg-1", "mat", "call-1", "Matemática", "Álgebra", nil, 0))
	mock.ExpectQuery(`FROM payment_orders`).
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow("ord-1", "reg-1", 16.0, "paid", "individual", now, now))

	raw, err := repo.ListRaw(context.Background())
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Len(t, raw[0].Areas, 1)
	assert.True(t, raw[0].Areas[0].Complete())
	require.NotNil(t, raw[0].PaymentOrder)
	assert.Equal(t, "ord-1", raw[0].PaymentOrder.ID)
	assert.Empty(t, raw[1].Areas)
	assert.Nil(t, raw[1].PaymentOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func pendingRegistration(now time.Time) *models.Registration {
	return &models.Registration{
		ID: "reg-1", StudentID: "stu-1", CallID: "call-1",
		Status: models.RegistrationStatusPending, Kind: models.OrderKindIndividual, TotalCost: 16,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestRegistrationRepositorySaveKeepsFinalizedRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registrations .* WHERE registrations.status = 'pending'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Save(context.Background(), pendingRegistration(time.Now().UTC()))
	assert.ErrorIs(t, err, ErrRegistrationLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySaveReportsPairConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registrations`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "registrations_student_id_call_id_key"})
	mock.ExpectRollback()

	err := repo.Save(context.Background(), pendingRegistration(time.Now().UTC()))
	assert.ErrorIs(t, err, ErrRegistrationExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRewriteLocksBeforeReading(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(`LOCK TABLE registrations, registration_areas, payment_orders IN SHARE ROW EXCLUSIVE MODE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM registrations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).
			AddRow("reg-1", "stu-1", "call-1", "verified", "individual", 16.0, now, now).
			AddRow("reg-2", "stu-1", "call-1", "pending", "individual", 16.0, now, now))
	mock.ExpectQuery(`FROM registration_areas ORDER BY registration_id, position`).
		WillReturnRows(sqlmock.NewRows(regAreaColumns))
	mock.ExpectQuery(`FROM payment_orders`).
		WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectExec(`DELETE FROM registrations WHERE NOT \(id = ANY\(\$1\)\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO registrations`).
		WithArgs("reg-1", "stu-1", "call-1", models.RegistrationStatusVerified, models.OrderKindIndividual, 16.0, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM registration_areas").WithArgs("reg-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO payment_orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []string
	err := repo.Rewrite(context.Background(), func(raw []reconcile.RawRegistration) ([]models.Registration, error) {
		for _, r := range raw {
			seen = append(seen, r.ID)
		}
		reg := pendingRegistration(now)
		reg.Status = models.RegistrationStatusVerified
		return []models.Registration{*reg}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"reg-1", "reg-2"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRewriteAbortsOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`LOCK TABLE registrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM registrations ORDER BY id`).WillReturnRows(sqlmock.NewRows(registrationRowColumns))
	mock.ExpectQuery(`FROM registration_areas`).WillReturnRows(sqlmock.NewRows(regAreaColumns))
	mock.ExpectQuery(`FROM payment_orders`).WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectRollback()

	boom := errors.New("reconcile failed")
	err := repo.Rewrite(context.Background(), func([]reconcile.RawRegistration) ([]models.Registration, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE registrations SET status").
		WithArgs("reg-x", models.RegistrationStatusPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), "reg-x", models.RegistrationStatusPaid)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("DELETE FROM registrations WHERE id").WithArgs("reg-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "reg-1"))

	mock.ExpectExec("DELETE FROM registrations WHERE id").WithArgs("reg-1").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "reg-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
