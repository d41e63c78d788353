package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"policy_sync/internal/domain"
)

// kindTable describes how one taxonomy kind maps onto its master table and
// policy junction table. Regions are looked up by zip code, categories and
// keywords by name, everything else by business code.
type kindTable struct {
	master    string
	lookupCol string
	junction  string
	refCol    string
}

var kindTables = map[domain.TaxonomyKind]kindTable{
	domain.KindRegion:         {"master.region", "zip_code", "core.policy_region", "region_id"},
	domain.KindCategory:       {"master.category", "name", "core.policy_category", "category_id"},
	domain.KindKeyword:        {"master.keyword", "name", "core.policy_keyword", "keyword_id"},
	domain.KindEducation:      {"master.education", "code", "core.policy_education", "education_id"},
	domain.KindMajor:          {"master.major", "code", "core.policy_major", "major_id"},
	domain.KindJobStatus:      {"master.job_status", "code", "core.policy_job_status", "job_status_id"},
	domain.KindSpecialization: {"master.specialization", "code", "core.policy_specialization", "specialization_id"},
}

// TaxonomyStore serves the master reference tables and maintains the
// policy-to-taxonomy junction rows.
type TaxonomyStore struct {
	db *sqlx.DB
}

func NewTaxonomyStore(db *sqlx.DB) *TaxonomyStore {
	return &TaxonomyStore{db: db}
}

// Lookup returns every active entry of a kind keyed by its lookup value.
func (s *TaxonomyStore) Lookup(ctx context.Context, kind domain.TaxonomyKind) (map[string]int64, error) {
	kt, ok := kindTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown taxonomy kind %q", kind)
	}

	query := fmt.Sprintf(
		"SELECT %s, id FROM %s WHERE active AND %s IS NOT NULL",
		kt.lookupCol, kt.master, kt.lookupCol,
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var value string
		var id int64
		if err := rows.Scan(&value, &id); err != nil {
			return nil, err
		}
		result[value] = id
	}

	return result, rows.Err()
}

// CreateKeyword inserts a keyword by name if absent and returns its id.
// Concurrent creation of the same name is safe: the insert is
// conflict-ignored and the id is re-read afterwards.
func (s *TaxonomyStore) CreateKeyword(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"INSERT INTO master.keyword (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id",
		name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.GetContext(ctx, &id,
			"SELECT id FROM master.keyword WHERE name = $1",
			name,
		)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReplaceLinks rewrites the junction rows of one policy/kind pair so they
// reflect only the latest extraction. Stale links are removed first.
func (s *TaxonomyStore) ReplaceLinks(ctx context.Context, policyID int64, kind domain.TaxonomyKind, ids []int64) error {
	kt, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("unknown taxonomy kind %q", kind)
	}

	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE policy_id = $1", kt.junction),
		policyID,
	)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(kt.junction)
	sb.WriteString(" (policy_id, ")
	sb.WriteString(kt.refCol)
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, policyID)

	for i, id := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		args = append(args, id)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), args...)
	return err
}

// LinkedIDs returns the taxonomy ids currently linked to a policy for a kind.
func (s *TaxonomyStore) LinkedIDs(ctx context.Context, policyID int64, kind domain.TaxonomyKind) ([]int64, error) {
	kt, ok := kindTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown taxonomy kind %q", kind)
	}

	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		fmt.Sprintf("SELECT %s FROM %s WHERE policy_id = $1 ORDER BY %s", kt.refCol, kt.junction, kt.refCol),
		policyID,
	)
	return ids, err
}
