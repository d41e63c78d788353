//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"policy_sync/internal/domain"
	"policy_sync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_raw_zone.up.sql"),
			filepath.Join(migrationsPath, "002_staging_zone.up.sql"),
			filepath.Join(migrationsPath, "003_master_zone.up.sql"),
			filepath.Join(migrationsPath, "004_core_zone.up.sql"),
			filepath.Join(migrationsPath, "005_master_seed.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	for _, table := range []string{
		"core.policy_region", "core.policy_category", "core.policy_keyword",
		"core.policy_education", "core.policy_major", "core.policy_job_status",
		"core.policy_specialization", "core.policy_eligibility", "core.policy",
		"master.keyword",
		"stg.policy_landing", "stg.policy_state", "stg.sync_run",
		"raw.api_page",
	} {
		_, _ = s.db.ExecContext(s.ctx, "DELETE FROM "+table)
	}
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func testHash(c byte) string {
	return strings.Repeat(string(c), 64)
}

func (s *PostgresIntegrationSuite) appendRawPage() uuid.UUID {
	store := NewRawPageStore(s.db)
	id, err := store.Append(s.ctx, &domain.RawPage{
		BaseURL:    "https://api.example.com/policies",
		HTTPStatus: 200,
		PageNo:     1,
		PageSize:   100,
		Payload:    json.RawMessage(`{"result":{}}`),
	})
	s.Require().NoError(err)
	return id
}

func (s *PostgresIntegrationSuite) TestRawPageStore_Append() {
	store := NewRawPageStore(s.db)

	page := &domain.RawPage{
		BaseURL:     "https://api.example.com/policies",
		HTTPStatus:  200,
		PageNo:      3,
		PageSize:    100,
		QueryParams: json.RawMessage(`{"pageNum":"3"}`),
		Payload:     json.RawMessage(`{"resultCode":200}`),
	}

	id, err := store.Append(s.ctx, page)
	s.NoError(err)
	s.NotEqual(uuid.Nil, id)
	s.Equal(id, page.IngestID)
	s.False(page.IngestedAt.IsZero())

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM raw.api_page WHERE ingest_id = $1", id)
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestRawPageStore_Append_NonJSONBody() {
	store := NewRawPageStore(s.db)

	page := &domain.RawPage{
		BaseURL:    "https://api.example.com/policies",
		HTTPStatus: 502,
		PageNo:     1,
		Payload:    json.RawMessage("<html>Bad Gateway</html>"),
	}

	id, err := store.Append(s.ctx, page)
	s.NoError(err)

	var stored string
	err = s.db.GetContext(s.ctx, &stored, "SELECT payload::text FROM raw.api_page WHERE ingest_id = $1", id)
	s.NoError(err)
	s.Contains(stored, "Bad Gateway")
}

func (s *PostgresIntegrationSuite) TestLandingStore_Insert_DuplicateVersionIgnored() {
	ingestID := s.appendRawPage()
	store := NewLandingStore(s.db)

	rec := &domain.LandingRecord{
		PolicyID:    "R001",
		RecordHash:  testHash('a'),
		RawJSON:     json.RawMessage(`{"plcyNo":"R001"}`),
		RawIngestID: ingestID,
		PageNo:      1,
	}

	s.NoError(store.Insert(s.ctx, rec))
	s.NoError(store.Insert(s.ctx, rec))

	count, err := store.CountVersions(s.ctx, "R001")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestLandingStore_Insert_NewVersionAppends() {
	ingestID := s.appendRawPage()
	store := NewLandingStore(s.db)

	for _, hash := range []string{testHash('a'), testHash('b')} {
		err := store.Insert(s.ctx, &domain.LandingRecord{
			PolicyID:    "R001",
			RecordHash:  hash,
			RawJSON:     json.RawMessage(`{"plcyNo":"R001"}`),
			RawIngestID: ingestID,
		})
		s.NoError(err)
	}

	count, err := store.CountVersions(s.ctx, "R001")
	s.NoError(err)
	s.Equal(2, count)
}

func (s *PostgresIntegrationSuite) TestStagingStore_Lifecycle() {
	store := NewStagingStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Never seen.
	state, err := store.GetForUpdate(s.ctx, "R001")
	s.NoError(err)
	s.Nil(state)

	err = store.Insert(s.ctx, &domain.StagingRecord{
		PolicyID:   "R001",
		RecordHash: testHash('a'),
		FirstSeen:  now,
		LastSeen:   now,
		Lifecycle:  domain.LifecycleActive,
	})
	s.NoError(err)

	state, err = store.GetForUpdate(s.ctx, "R001")
	s.NoError(err)
	s.Require().NotNil(state)
	s.Equal(testHash('a'), state.RecordHash)
	s.Equal(domain.LifecycleActive, state.Lifecycle)

	// Content change.
	state.RecordHash = testHash('b')
	state.LastSeen = now.Add(time.Hour)
	s.NoError(store.Update(s.ctx, state))

	state, err = store.GetForUpdate(s.ctx, "R001")
	s.NoError(err)
	s.Equal(testHash('b'), state.RecordHash)
	s.Equal(now, state.FirstSeen.UTC().Truncate(time.Microsecond))

	// Unchanged re-observation.
	s.NoError(store.Touch(s.ctx, "R001", now.Add(2*time.Hour)))

	state, err = store.GetForUpdate(s.ctx, "R001")
	s.NoError(err)
	s.Equal(now.Add(2*time.Hour), state.LastSeen.UTC().Truncate(time.Microsecond))
}

func (s *PostgresIntegrationSuite) TestStagingStore_MarkMissing() {
	store := NewStagingStore(s.db)
	now := time.Now().UTC()

	for _, id := range []string{"R001", "R002", "R003"} {
		err := store.Insert(s.ctx, &domain.StagingRecord{
			PolicyID:   id,
			RecordHash: testHash('a'),
			FirstSeen:  now,
			LastSeen:   now,
			Lifecycle:  domain.LifecycleActive,
		})
		s.Require().NoError(err)
	}

	removed, err := store.MarkMissing(s.ctx, []string{"R001", "R003"})
	s.NoError(err)
	s.Equal([]string{"R002"}, removed)

	state, err := store.GetForUpdate(s.ctx, "R002")
	s.NoError(err)
	s.Equal(domain.LifecycleInactive, state.Lifecycle)

	// Already inactive rows are not reported again.
	removed, err = store.MarkMissing(s.ctx, []string{"R001", "R003"})
	s.NoError(err)
	s.Empty(removed)
}

func (s *PostgresIntegrationSuite) TestPolicyStore_Upsert_Insert() {
	store := NewPolicyStore(s.db)

	policy := &domain.Policy{
		SourceID:       "youthcenter",
		ExternalID:     "R2024010001",
		Title:          "청년 주거 지원",
		Description:    utils.Ptr("주거비 지원"),
		SupportContent: utils.Ptr("월 20만원"),
		ViewCount:      42,
		ContentHash:    testHash('a'),
		RawJSON:        json.RawMessage(`{"plcyNo":"R2024010001"}`),
	}

	id, err := store.Upsert(s.ctx, policy)
	s.NoError(err)
	s.Greater(id, int64(0))
	s.Equal(id, policy.ID)

	stored, err := store.GetByExternalID(s.ctx, "youthcenter", "R2024010001")
	s.NoError(err)
	s.Equal("청년 주거 지원", stored.Title)
	s.Require().NotNil(stored.Status)
	s.Equal("active", *stored.Status)
}

func (s *PostgresIntegrationSuite) TestPolicyStore_Upsert_SameHashIsNoOp() {
	store := NewPolicyStore(s.db)

	policy := &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "원래 제목",
		ContentHash: testHash('a'),
	}

	id1, err := store.Upsert(s.ctx, policy)
	s.Require().NoError(err)

	first, err := store.GetByExternalID(s.ctx, "youthcenter", "R001")
	s.Require().NoError(err)

	// Same hash: no row is touched, same id comes back.
	id2, err := store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "원래 제목",
		ContentHash: testHash('a'),
	})
	s.NoError(err)
	s.Equal(id1, id2)

	second, err := store.GetByExternalID(s.ctx, "youthcenter", "R001")
	s.NoError(err)
	s.Equal(first.UpdatedAt, second.UpdatedAt)
}

func (s *PostgresIntegrationSuite) TestPolicyStore_Upsert_ChangedHashUpdates() {
	store := NewPolicyStore(s.db)

	id1, err := store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "원래 제목",
		ContentHash: testHash('a'),
	})
	s.Require().NoError(err)

	id2, err := store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "바뀐 제목",
		ContentHash: testHash('b'),
	})
	s.NoError(err)
	s.Equal(id1, id2)

	stored, err := store.GetByExternalID(s.ctx, "youthcenter", "R001")
	s.NoError(err)
	s.Equal("바뀐 제목", stored.Title)
	s.Equal(testHash('b'), stored.ContentHash)
	s.True(stored.UpdatedAt.After(stored.CreatedAt))
}

func (s *PostgresIntegrationSuite) TestPolicyStore_UpsertEligibility() {
	store := NewPolicyStore(s.db)

	id, err := store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "테스트",
		ContentHash: testHash('a'),
	})
	s.Require().NoError(err)

	elig := &domain.Eligibility{
		PolicyID:  id,
		MinAge:    utils.Ptr(19),
		MaxAge:    utils.Ptr(34),
		IncomeMin: utils.Ptr(int64(0)),
		IncomeMax: utils.Ptr(int64(50000000)),
	}
	s.NoError(store.UpsertEligibility(s.ctx, elig))

	// Second write replaces the row.
	elig.MaxAge = utils.Ptr(39)
	s.NoError(store.UpsertEligibility(s.ctx, elig))

	var maxAge int
	err = s.db.GetContext(s.ctx, &maxAge, "SELECT max_age FROM core.policy_eligibility WHERE policy_id = $1", id)
	s.NoError(err)
	s.Equal(39, maxAge)
}

func (s *PostgresIntegrationSuite) TestPolicyStore_UpdateStatus() {
	store := NewPolicyStore(s.db)

	_, err := store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "테스트",
		ContentHash: testHash('a'),
	})
	s.Require().NoError(err)

	s.NoError(store.UpdateStatus(s.ctx, "youthcenter", []string{"R001"}, "closed"))

	stored, err := store.GetByExternalID(s.ctx, "youthcenter", "R001")
	s.NoError(err)
	s.Require().NotNil(stored.Status)
	s.Equal("closed", *stored.Status)

	// Empty id list is a no-op.
	s.NoError(store.UpdateStatus(s.ctx, "youthcenter", nil, "active"))
}

func (s *PostgresIntegrationSuite) TestPolicyStore_Upsert_ResetsStatusOnReapply() {
	store := NewPolicyStore(s.db)

	_, err := store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "테스트",
		ContentHash: testHash('a'),
	})
	s.Require().NoError(err)

	s.Require().NoError(store.UpdateStatus(s.ctx, "youthcenter", []string{"R001"}, "closed"))

	// The policy comes back in the feed with changed content: the upsert
	// rewrites status along with the rest of the row.
	_, err = store.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "다시 공개",
		ContentHash: testHash('b'),
	})
	s.NoError(err)

	stored, err := store.GetByExternalID(s.ctx, "youthcenter", "R001")
	s.NoError(err)
	s.Require().NotNil(stored.Status)
	s.Equal("active", *stored.Status)
}

func (s *PostgresIntegrationSuite) TestPolicyStore_CascadeDelete() {
	policies := NewPolicyStore(s.db)
	taxonomies := NewTaxonomyStore(s.db)

	id, err := policies.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "테스트",
		ContentHash: testHash('a'),
	})
	s.Require().NoError(err)

	s.Require().NoError(policies.UpsertEligibility(s.ctx, &domain.Eligibility{PolicyID: id}))

	kwID, err := taxonomies.CreateKeyword(s.ctx, "취업")
	s.Require().NoError(err)
	s.Require().NoError(taxonomies.ReplaceLinks(s.ctx, id, domain.KindKeyword, []int64{kwID}))

	_, err = s.db.ExecContext(s.ctx, "DELETE FROM core.policy WHERE id = $1", id)
	s.NoError(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM core.policy_eligibility WHERE policy_id = $1", id))
	s.Equal(0, count)
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM core.policy_keyword WHERE policy_id = $1", id))
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestTaxonomyStore_Lookup_SeededRegions() {
	store := NewTaxonomyStore(s.db)

	regions, err := store.Lookup(s.ctx, domain.KindRegion)
	s.NoError(err)
	s.Contains(regions, "11000") // Seoul
	s.Contains(regions, "26000") // Busan
}

func (s *PostgresIntegrationSuite) TestTaxonomyStore_Lookup_SeededCodes() {
	store := NewTaxonomyStore(s.db)

	education, err := store.Lookup(s.ctx, domain.KindEducation)
	s.NoError(err)
	s.NotEmpty(education)

	jobStatus, err := store.Lookup(s.ctx, domain.KindJobStatus)
	s.NoError(err)
	s.NotEmpty(jobStatus)
}

func (s *PostgresIntegrationSuite) TestTaxonomyStore_CreateKeyword_Idempotent() {
	store := NewTaxonomyStore(s.db)

	id1, err := store.CreateKeyword(s.ctx, "취업")
	s.NoError(err)
	s.Greater(id1, int64(0))

	id2, err := store.CreateKeyword(s.ctx, "취업")
	s.NoError(err)
	s.Equal(id1, id2)
}

func (s *PostgresIntegrationSuite) TestTaxonomyStore_ReplaceLinks() {
	policies := NewPolicyStore(s.db)
	store := NewTaxonomyStore(s.db)

	policyID, err := policies.Upsert(s.ctx, &domain.Policy{
		SourceID:    "youthcenter",
		ExternalID:  "R001",
		Title:       "테스트",
		ContentHash: testHash('a'),
	})
	s.Require().NoError(err)

	kw1, err := store.CreateKeyword(s.ctx, "취업")
	s.Require().NoError(err)
	kw2, err := store.CreateKeyword(s.ctx, "창업")
	s.Require().NoError(err)
	kw3, err := store.CreateKeyword(s.ctx, "주거")
	s.Require().NoError(err)

	s.NoError(store.ReplaceLinks(s.ctx, policyID, domain.KindKeyword, []int64{kw1, kw2}))

	ids, err := store.LinkedIDs(s.ctx, policyID, domain.KindKeyword)
	s.NoError(err)
	s.ElementsMatch([]int64{kw1, kw2}, ids)

	// A later extraction fully replaces the link set.
	s.NoError(store.ReplaceLinks(s.ctx, policyID, domain.KindKeyword, []int64{kw3}))

	ids, err = store.LinkedIDs(s.ctx, policyID, domain.KindKeyword)
	s.NoError(err)
	s.Equal([]int64{kw3}, ids)

	// Empty set clears everything.
	s.NoError(store.ReplaceLinks(s.ctx, policyID, domain.KindKeyword, nil))

	ids, err = store.LinkedIDs(s.ctx, policyID, domain.KindKeyword)
	s.NoError(err)
	s.Empty(ids)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollsBackOnError() {
	txManager := NewTransactionManager(s.db)
	staging := NewStagingStore(s.db)
	now := time.Now().UTC()

	err := txManager.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if err := staging.Insert(txCtx, &domain.StagingRecord{
			PolicyID:   "R001",
			RecordHash: testHash('a'),
			FirstSeen:  now,
			LastSeen:   now,
			Lifecycle:  domain.LifecycleActive,
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	s.Error(err)

	state, err := staging.GetForUpdate(s.ctx, "R001")
	s.NoError(err)
	s.Nil(state)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_CommitsOnSuccess() {
	txManager := NewTransactionManager(s.db)
	staging := NewStagingStore(s.db)
	landing := NewLandingStore(s.db)
	ingestID := s.appendRawPage()
	now := time.Now().UTC()

	err := txManager.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if err := landing.Insert(txCtx, &domain.LandingRecord{
			PolicyID:    "R001",
			RecordHash:  testHash('a'),
			RawJSON:     json.RawMessage(`{"plcyNo":"R001"}`),
			RawIngestID: ingestID,
		}); err != nil {
			return err
		}
		return staging.Insert(txCtx, &domain.StagingRecord{
			PolicyID:   "R001",
			RecordHash: testHash('a'),
			FirstSeen:  now,
			LastSeen:   now,
			Lifecycle:  domain.LifecycleActive,
		})
	})
	s.NoError(err)

	state, err := staging.GetForUpdate(s.ctx, "R001")
	s.NoError(err)
	s.NotNil(state)

	count, err := landing.CountVersions(s.ctx, "R001")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestSyncRunStore_RecordAndLastRun() {
	store := NewSyncRunStore(s.db)

	before, err := store.LastRun(s.ctx, "youthcenter")
	s.NoError(err)

	err = store.Record(s.ctx, &domain.SyncStats{
		SourceID:  "youthcenter",
		Pages:     3,
		Fetched:   250,
		New:       10,
		Changed:   5,
		Unchanged: 235,
		Duration:  42 * time.Second,
	})
	s.NoError(err)

	after, err := store.LastRun(s.ctx, "youthcenter")
	s.NoError(err)
	s.True(after.After(before))

	var durationMs int64
	err = s.db.GetContext(s.ctx, &durationMs, "SELECT duration_ms FROM stg.sync_run WHERE source_id = $1", "youthcenter")
	s.NoError(err)
	s.Equal(int64(42000), durationMs)
}
