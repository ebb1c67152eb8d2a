package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// TransitionRepository reads the append-only transition log. Writes happen
// only through AdmissionRepository.ApplyTransition.
type TransitionRepository struct {
	db *sqlx.DB
}

// NewTransitionRepository builds the repository.
func NewTransitionRepository(db *sqlx.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

// ListChain returns every entry for one admission in insertion order. Chain
// verification walks this slice from genesis to head.
func (r *TransitionRepository) ListChain(ctx context.Context, admissionID string) ([]models.TransitionEntry, error) {
	const query = `SELECT seq, id, admission_id, action, from_status, to_status, actor_id, actor_role, reason, request_id, prev_hash, entry_hash, occurred_at FROM admission_transitions WHERE admission_id = $1 ORDER BY seq ASC`
	var entries []models.TransitionEntry
	if err := r.db.SelectContext(ctx, &entries, query, admissionID); err != nil {
		return nil, fmt.Errorf("list transition chain: %w", err)
	}
	return entries, nil
}

// ListRecent returns transition entries across all admissions, newest first,
// with total count.
func (r *TransitionRepository) ListRecent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error) {
	baseQuery := `FROM admission_transitions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AdmissionID != "" {
		conditions = append(conditions, fmt.Sprintf("admission_id = $%d", len(args)+1))
		args = append(args, filter.AdmissionID)
	}
	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, *filter.Action)
	}
	if filter.ActorRole != nil {
		conditions = append(conditions, fmt.Sprintf("actor_role = $%d", len(args)+1))
		args = append(args, *filter.ActorRole)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT seq, id, admission_id, action, from_status, to_status, actor_id, actor_role, reason, request_id, prev_hash, entry_hash, occurred_at %s ORDER BY seq DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var entries []models.TransitionEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list recent transitions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count transitions: %w", err)
	}

	return entries, total, nil
}

// AdmissionIDs returns the distinct admissions that have at least one
// transition entry. The nightly verification iterates these.
func (r *TransitionRepository) AdmissionIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT admission_id FROM admission_transitions ORDER BY admission_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list transition admission ids: %w", err)
	}
	return ids, nil
}
