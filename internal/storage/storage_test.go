package storage_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/storage"
	"github.com/seoforge-ai/seoforge/migrations"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "seoforge",
			"POSTGRES_PASSWORD": "seoforge",
			"POSTGRES_DB":       "seoforge",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://seoforge:seoforge@%s:%s/seoforge?sslmode=disable", host, port.Port())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	testDB, err = storage.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create storage: %v\n", err)
		os.Exit(1)
	}
	if err := testDB.RunMigrations(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createTestProject(t *testing.T, plan string) model.Project {
	t.Helper()
	p := model.Project{
		ID:        uuid.New(),
		Name:      "store-" + uuid.New().String()[:8],
		Plan:      plan,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, testDB.CreateProject(context.Background(), p))
	return p
}

func createTestPlaybook(t *testing.T, projectID uuid.UUID) model.Playbook {
	t.Helper()
	pb := model.Playbook{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Name:        "meta-title-refresh",
		Description: "rewrite thin meta titles",
		TargetField: "metaTitle",
		Criteria: model.Criteria{
			Field:     "metaTitle",
			Condition: model.CondMissing,
		},
		Rules: map[string]any{
			"max_length": float64(60),
			"prefix":     "Shop | ",
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, testDB.CreatePlaybook(context.Background(), pb))
	return pb
}

func TestProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t, "pro")

	got, err := testDB.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, "pro", got.Plan)
}

func TestGetProjectNotFound(t *testing.T) {
	_, err := testDB.GetProject(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlaybookRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t, "free")
	pb := createTestPlaybook(t, p.ID)

	got, err := testDB.GetPlaybook(ctx, p.ID, pb.ID)
	require.NoError(t, err)
	assert.Equal(t, pb.Name, got.Name)
	assert.Equal(t, pb.TargetField, got.TargetField)
	assert.Equal(t, model.CondMissing, got.Criteria.Condition)
	assert.Equal(t, pb.Rules, got.Rules, "rules survive the JSONB round trip")
}

func TestGetPlaybookScopedToProject(t *testing.T) {
	ctx := context.Background()
	owner := createTestProject(t, "free")
	other := createTestProject(t, "free")
	pb := createTestPlaybook(t, owner.ID)

	_, err := testDB.GetPlaybook(ctx, other.ID, pb.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "a playbook is invisible outside its project")
}

func TestListPlaybooks(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t, "free")
	createTestPlaybook(t, p.ID)
	createTestPlaybook(t, p.ID)

	list, err := testDB.ListPlaybooks(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUsageLedgerWindow(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t, "free")
	pb := createTestPlaybook(t, p.ID)

	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	insert := func(rt model.RunType, aiUsed bool, at time.Time) {
		require.NoError(t, testDB.InsertUsageEvent(ctx, model.UsageEvent{
			ID:         uuid.New(),
			ProjectID:  p.ID,
			PlaybookID: pb.ID,
			RunType:    rt,
			AIUsed:     aiUsed,
			OccurredAt: at,
		}))
	}

	insert(model.RunPreviewGenerate, true, base)
	insert(model.RunDraftGenerate, true, base.Add(time.Hour))
	insert(model.RunApply, false, base.Add(2*time.Hour))          // apply never counts
	insert(model.RunPreviewGenerate, true, base.AddDate(0, 1, 0)) // next month

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)

	count, err := testDB.CountAIRuns(ctx, p.ID, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "only AI-consuming events inside the window count")

	events, err := testDB.ListUsageEvents(ctx, p.ID, from, to)
	require.NoError(t, err)
	assert.Len(t, events, 3, "the event list includes non-AI apply events")
}

func TestCountAIRunsIsolatedByProject(t *testing.T) {
	ctx := context.Background()
	a := createTestProject(t, "free")
	b := createTestProject(t, "free")
	pb := createTestPlaybook(t, a.ID)

	now := time.Now().UTC()
	require.NoError(t, testDB.InsertUsageEvent(ctx, model.UsageEvent{
		ID: uuid.New(), ProjectID: a.ID, PlaybookID: pb.ID,
		RunType: model.RunDraftGenerate, AIUsed: true, OccurredAt: now,
	}))

	count, err := testDB.CountAIRuns(ctx, b.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCreateApplyRun(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t, "free")
	pb := createTestPlaybook(t, p.ID)

	res := model.ApplyResult{
		RunID:      uuid.New(),
		PlaybookID: pb.ID,
		DraftKey:   pb.ID.String() + "|v1:scope|v1:rules",
		Outcomes: []model.EntityOutcome{
			{EntityID: "gid://shopify/Product/1", Status: model.StatusUpdated},
			{EntityID: "gid://shopify/Product/2", Status: model.StatusSkipped},
		},
		UpdatedCount: 1,
		SkippedCount: 1,
		StartedAt:    time.Now().UTC(),
		FinishedAt:   time.Now().UTC(),
	}
	require.NoError(t, testDB.CreateApplyRun(ctx, p.ID, res))

	// The run id is the primary key; a second insert of the same run fails.
	assert.Error(t, testDB.CreateApplyRun(ctx, p.ID, res))
}

func TestPing(t *testing.T) {
	require.NoError(t, testDB.Ping(context.Background()))
}
