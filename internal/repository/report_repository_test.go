package repository

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

func newReportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

// reportJobRows builds a fixture row set over the same column list the
// queries select, so the two cannot drift apart.
func reportJobRows() *sqlmock.Rows {
	return sqlmock.NewRows(strings.Split(reportJobColumns, ", "))
}

func TestReportRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()

	repo := NewReportRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_jobs")).
		WithArgs(sqlmock.AnyArg(), "admissions_roster", sqlmock.AnyArg(), "QUEUED", 0, nil, "finance-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	active := models.StatusActive
	job := &models.ReportJob{
		Type:      models.ReportTypeAdmissionsRoster,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV, Status: &active},
		CreatedBy: "finance-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID, "Create assigns an id when the caller left it blank")

	fixture := reportJobRows().
		AddRow(job.ID, "admissions_roster", `{"format":"csv","status":"ACTIVE"}`, "QUEUED", 0, nil, "finance-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+reportJobColumns+" FROM report_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(fixture)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
	require.NotNil(t, fetched.Params.Status)
	require.Equal(t, models.StatusActive, *fetched.Params.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	finished := models.ReportStatusFinished
	progress := 100
	result := "/api/v1/export/job-roster-1.tok"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = $1, progress = $2, result_url = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(finished, progress, result, now, "job-roster-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-roster-1", UpdateReportJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultURL:  &result,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	queued := models.ReportStatusQueued
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = $1 WHERE id = $2")).
		WithArgs(queued, "job-gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "job-gone", UpdateReportJobParams{Status: &queued})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateNothingToDo(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	// All fields nil means no statement reaches the database.
	require.NoError(t, repo.Update(context.Background(), "job-roster-1", UpdateReportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	fixture := reportJobRows().
		AddRow("job-log-2", "transition_log", `{"format":"csv","admissionId":"adm-1"}`, "QUEUED", 0, nil, "finance-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+reportJobColumns+" FROM report_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2")).
		WithArgs(string(models.ReportStatusQueued), 20).
		WillReturnRows(fixture)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "job-log-2", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListFinishedBefore(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	fixture := reportJobRows().
		AddRow("job-roster-3", "admissions_roster", `{"format":"pdf"}`, "FINISHED", 100, "/api/v1/export/job-roster-3.tok", "finance-1", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+reportJobColumns+" FROM report_jobs WHERE status = $1 AND finished_at IS NOT NULL AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3")).
		WithArgs(string(models.ReportStatusFinished), sqlmock.AnyArg(), 50).
		WillReturnRows(fixture)

	jobs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, models.ReportFormatPDF, jobs[0].Params.Format)
	require.NoError(t, mock.ExpectationsWereMet())
}
