package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/hashchain"
)

func newAdmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func admissionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_profile_id", "full_name", "email", "phone", "payment_method", "status", "prior_status", "next_installment_due_at", "created_at", "updated_at"})
}

func TestAdmissionRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newAdmissionRepoMock(t)
	defer cleanup()

	repo := NewAdmissionRepository(db, hashchain.New("test"))
	rows := admissionRows().
		AddRow("adm-1", "student-1", "Jane Student", "jane@example.com", "0812000001", "FULL", "PENDING", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_profile_id, full_name")).
		WithArgs("adm-1").
		WillReturnRows(rows)

	record, err := repo.GetByID(context.Background(), "adm-1")
	require.NoError(t, err)
	require.Equal(t, "adm-1", record.ID)
	require.Equal(t, models.StatusPending, record.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newAdmissionRepoMock(t)
	defer cleanup()

	repo := NewAdmissionRepository(db, hashchain.New("test"))
	rows := admissionRows().
		AddRow("adm-1", "student-1", "Jane Student", "jane@example.com", "0812000001", "INSTALLMENT", "ACTIVE", nil, time.Now().Add(720*time.Hour), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_profile_id, full_name")).
		WithArgs("ACTIVE", "INSTALLMENT").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("ACTIVE", "INSTALLMENT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.StatusActive
	method := models.PaymentMethodInstallment
	records, total, err := repo.List(context.Background(), models.AdmissionFilter{
		Status:        &status,
		PaymentMethod: &method,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionRepositoryListOverdue(t *testing.T) {
	db, mock, cleanup := newAdmissionRepoMock(t)
	defer cleanup()

	repo := NewAdmissionRepository(db, hashchain.New("test"))
	cutoff := time.Now()
	rows := admissionRows().
		AddRow("adm-1", "student-1", "Jane Student", "jane@example.com", "0812000001", "INSTALLMENT", "ACTIVE", nil, cutoff.Add(-time.Hour), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("next_installment_due_at < $3")).
		WithArgs("ACTIVE", "INSTALLMENT", cutoff).
		WillReturnRows(rows)

	records, err := repo.ListOverdue(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionRepositoryApplyTransition(t *testing.T) {
	db, mock, cleanup := newAdmissionRepoMock(t)
	defer cleanup()

	chainer := hashchain.New("test")
	repo := NewAdmissionRepository(db, chainer)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT entry_hash FROM admission_transitions")).
		WithArgs("adm-1").
		WillReturnRows(sqlmock.NewRows([]string{"entry_hash"}).AddRow("abc123"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO admission_transitions")).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))
	mock.ExpectCommit()

	actor := "admin-1"
	entry, err := repo.ApplyTransition(context.Background(), ApplyTransitionParams{
		RecordID:  "adm-1",
		Action:    models.ActionApproveAdmission,
		From:      models.StatusPending,
		To:        models.StatusApproved,
		ActorID:   &actor,
		ActorRole: models.RoleAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), entry.Seq)
	require.Equal(t, "abc123", entry.PrevHash)
	require.NotEmpty(t, entry.EntryHash)
	require.NotEmpty(t, entry.ID)
	require.Equal(t, models.StatusPending, entry.FromStatus)
	require.Equal(t, models.StatusApproved, entry.ToStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionRepositoryApplyTransitionGenesis(t *testing.T) {
	db, mock, cleanup := newAdmissionRepoMock(t)
	defer cleanup()

	repo := NewAdmissionRepository(db, hashchain.New("test"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT entry_hash FROM admission_transitions")).
		WithArgs("adm-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO admission_transitions")).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(1)))
	mock.ExpectCommit()

	entry, err := repo.ApplyTransition(context.Background(), ApplyTransitionParams{
		RecordID:  "adm-1",
		Action:    models.ActionApproveAdmission,
		From:      models.StatusPending,
		To:        models.StatusApproved,
		ActorRole: models.RoleAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, hashchain.Genesis, entry.PrevHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionRepositoryApplyTransitionConflict(t *testing.T) {
	db, mock, cleanup := newAdmissionRepoMock(t)
	defer cleanup()

	repo := NewAdmissionRepository(db, hashchain.New("test"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), ApplyTransitionParams{
		RecordID:  "adm-1",
		Action:    models.ActionApproveAdmission,
		From:      models.StatusPending,
		To:        models.StatusApproved,
		ActorRole: models.RoleAdmin,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
