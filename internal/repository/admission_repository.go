package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/hashchain"
)

// AdmissionRepository provides database access for admission records and
// their append-only transition log.
type AdmissionRepository struct {
	db      *sqlx.DB
	chainer *hashchain.Chainer
}

// NewAdmissionRepository constructs the repository.
func NewAdmissionRepository(db *sqlx.DB, chainer *hashchain.Chainer) *AdmissionRepository {
	return &AdmissionRepository{db: db, chainer: chainer}
}

// GetByID returns an admission record by identifier.
func (r *AdmissionRepository) GetByID(ctx context.Context, id string) (*models.AdmissionRecord, error) {
	const query = `SELECT id, student_profile_id, full_name, email, phone, payment_method, status, prior_status, next_installment_due_at, created_at, updated_at FROM admissions WHERE id = $1 LIMIT 1`
	var record models.AdmissionRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find admission by id: %w", err)
	}
	return &record, nil
}

// List returns admission records based on filters with total count.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error) {
	baseQuery := `FROM admissions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.PaymentMethod != nil {
		conditions = append(conditions, fmt.Sprintf("payment_method = $%d", len(args)+1))
		args = append(args, *filter.PaymentMethod)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d OR student_profile_id = $%d)", len(args)+1, len(args)+1, len(args)+2))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%", filter.Search)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"full_name":  true,
		"status":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, student_profile_id, full_name, email, phone, payment_method, status, prior_status, next_installment_due_at, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var records []models.AdmissionRecord
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}

	return records, total, nil
}

// ListOverdue returns ACTIVE installment admissions whose next installment was
// due before the cutoff. The sweep feeds these through the normal transition
// path.
func (r *AdmissionRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.AdmissionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, student_profile_id, full_name, email, phone, payment_method, status, prior_status, next_installment_due_at, created_at, updated_at FROM admissions WHERE status = $1 AND payment_method = $2 AND next_installment_due_at IS NOT NULL AND next_installment_due_at < $3 ORDER BY next_installment_due_at ASC LIMIT %d`, limit)

	var records []models.AdmissionRecord
	if err := r.db.SelectContext(ctx, &records, query, models.StatusActive, models.PaymentMethodInstallment, cutoff); err != nil {
		return nil, fmt.Errorf("list overdue admissions: %w", err)
	}
	return records, nil
}

// ApplyTransitionParams carries one validated transition into the database.
type ApplyTransitionParams struct {
	RecordID   string
	Action     models.Action
	From       models.AdmissionStatus
	To         models.AdmissionStatus
	ActorID    *string
	ActorRole  models.UserRole
	Reason     *string
	RequestID  *string
	OccurredAt time.Time

	SetPrior   *models.AdmissionStatus
	ClearPrior bool
	NextDueAt  *time.Time
	SetNextDue bool
}

// ApplyTransition performs the guarded status update and appends the audit
// entry in one transaction. The guard (WHERE status = from) serialises
// writers on the admission row: a concurrent transition that already moved
// the record makes the guard match zero rows, surfaced as sql.ErrNoRows.
// Because the row lock is taken before the chain read, per-record entries
// always link from == previous to and prev_hash == previous entry_hash.
func (r *AdmissionRepository) ApplyTransition(ctx context.Context, params ApplyTransitionParams) (*models.TransitionEntry, error) {
	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	occurredAt = occurredAt.UTC().Truncate(time.Microsecond)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}

	set := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{params.To, occurredAt}
	if params.SetPrior != nil {
		set = append(set, fmt.Sprintf("prior_status = $%d", len(args)+1))
		args = append(args, *params.SetPrior)
	} else if params.ClearPrior {
		set = append(set, "prior_status = NULL")
	}
	if params.SetNextDue {
		if params.NextDueAt != nil {
			set = append(set, fmt.Sprintf("next_installment_due_at = $%d", len(args)+1))
			args = append(args, *params.NextDueAt)
		} else {
			set = append(set, "next_installment_due_at = NULL")
		}
	}
	args = append(args, params.RecordID, params.From)
	updateQuery := fmt.Sprintf("UPDATE admissions SET %s WHERE id = $%d AND status = $%d", strings.Join(set, ", "), len(args)-1, len(args))

	res, err := tx.ExecContext(ctx, updateQuery, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("update admission status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("update admission status: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return nil, sql.ErrNoRows
	}

	prevHash := hashchain.Genesis
	var lastHash string
	const lastQuery = `SELECT entry_hash FROM admission_transitions WHERE admission_id = $1 ORDER BY seq DESC LIMIT 1`
	switch err := tx.GetContext(ctx, &lastHash, lastQuery, params.RecordID); {
	case err == nil:
		prevHash = lastHash
	case err == sql.ErrNoRows:
	default:
		_ = tx.Rollback()
		return nil, fmt.Errorf("load last transition hash: %w", err)
	}

	actorID := ""
	if params.ActorID != nil {
		actorID = *params.ActorID
	}
	entryHash, err := r.chainer.EntryHash(hashchain.Entry{
		AdmissionID: params.RecordID,
		Action:      string(params.Action),
		FromStatus:  string(params.From),
		ToStatus:    string(params.To),
		ActorID:     actorID,
		ActorRole:   string(params.ActorRole),
		OccurredAt:  occurredAt,
		PrevHash:    prevHash,
	})
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("hash transition entry: %w", err)
	}

	entry := &models.TransitionEntry{
		ID:          uuid.NewString(),
		AdmissionID: params.RecordID,
		Action:      params.Action,
		FromStatus:  params.From,
		ToStatus:    params.To,
		ActorID:     params.ActorID,
		ActorRole:   params.ActorRole,
		Reason:      params.Reason,
		RequestID:   params.RequestID,
		PrevHash:    prevHash,
		EntryHash:   entryHash,
		OccurredAt:  occurredAt,
	}

	const insertQuery = `INSERT INTO admission_transitions (id, admission_id, action, from_status, to_status, actor_id, actor_role, reason, request_id, prev_hash, entry_hash, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING seq`
	if err := tx.QueryRowxContext(ctx, insertQuery, entry.ID, entry.AdmissionID, entry.Action, entry.FromStatus, entry.ToStatus, entry.ActorID, entry.ActorRole, entry.Reason, entry.RequestID, entry.PrevHash, entry.EntryHash, entry.OccurredAt).Scan(&entry.Seq); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("append transition entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	return entry, nil
}
