package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditdocs-backend/internal/queue"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/storage/object"
	localstore "creditdocs-backend/internal/shared/storage/object/local"
)

func storeDocument(t *testing.T, store *localstore.Store, name, body string) string {
	t.Helper()
	key, _, _, err := store.Save(context.Background(), "owner-1", name, strings.NewReader(body))
	require.NoError(t, err)
	return key
}

func TestProcessJobStoresReport(t *testing.T) {
	f := newFixture()
	store := localstore.New(t.TempDir())
	key := storeDocument(t, store, "report.pdf", "%PDF-1.4 fake")
	repo := reports.NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, reports.Report{ID: "job-1", OwnerID: "owner-1", FileName: "report.pdf", Status: reports.StatusQueued}))

	svc := f.service(WithLocations(object.NewLocations(store)), WithReports(repo))
	err := svc.ProcessJob(ctx, queue.Message{JobID: "job-1", DocumentKey: key, FileName: "report.pdf", OwnerID: "owner-1"})

	require.NoError(t, err)
	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, reports.StatusCompleted, got.Status)
	assert.Equal(t, "credit-report", got.Label)
	assert.Equal(t, "heuristic", got.ClassificationTier)
	assert.Equal(t, "primary", got.ExtractionTier)
	assert.Equal(t, "looks fine", got.Record["summary"])
	assert.Len(t, got.Pages, 1)
	assert.NotContains(t, f.rec.calls, "retrieve")
}

func TestProcessJobCreatesMissingReport(t *testing.T) {
	f := newFixture()
	store := localstore.New(t.TempDir())
	key := storeDocument(t, store, "letter.txt", "hello")
	repo := reports.NewMemoryRepo()

	svc := f.service(WithLocations(object.NewLocations(store)), WithReports(repo))
	err := svc.ProcessJob(context.Background(), queue.Message{JobID: "job-2", DocumentKey: key, FileName: "letter.txt", OwnerID: "o", WithKnowledge: true})

	require.NoError(t, err)
	got, err := repo.GetByID(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, reports.StatusCompleted, got.Status)
	assert.Equal(t, "o", got.OwnerID)
	assert.True(t, f.retriever.persist)
}

func TestProcessJobMissingDocumentIsUnrecoverable(t *testing.T) {
	f := newFixture()
	repo := reports.NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, reports.Report{ID: "job-3", OwnerID: "o", Status: reports.StatusQueued}))

	svc := f.service(WithLocations(object.NewLocations(localstore.New(t.TempDir()))), WithReports(repo))
	err := svc.ProcessJob(ctx, queue.Message{JobID: "job-3", DocumentKey: "abc/missing.pdf"})

	require.ErrorIs(t, err, ErrUnrecoverable)
	assert.Empty(t, f.rec.calls)
	got, err := repo.GetByID(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, reports.StatusFailed, got.Status)
}

func TestProcessJobInvalidMessage(t *testing.T) {
	f := newFixture()
	err := f.service(WithLocations(object.NewLocations())).ProcessJob(context.Background(), queue.Message{DocumentKey: "k"})
	assert.ErrorIs(t, err, ErrUnrecoverable)
	assert.ErrorIs(t, err, queue.ErrInvalidMessage)
}

func TestProcessJobWithoutLocations(t *testing.T) {
	f := newFixture()
	err := f.service().ProcessJob(context.Background(), queue.Message{JobID: "j", DocumentKey: "k"})
	assert.ErrorIs(t, err, ErrNoLocations)
}

type failingRepo struct {
	reports.Repo
}

func (failingRepo) Complete(ctx context.Context, r reports.Report) error {
	return errors.New("db down")
}

func TestSaveReportSwallowsStoreErrors(t *testing.T) {
	f := newFixture()
	res, err := f.service().Run(context.Background(), Document{FileName: "a.pdf"}, Options{})
	require.NoError(t, err)

	svc := f.service(WithReports(failingRepo{Repo: reports.NewMemoryRepo()}))
	rep := svc.SaveReport(context.Background(), reports.Report{ID: "r", OwnerID: "o", FileName: "a.pdf"}, res)

	assert.Equal(t, reports.StatusCompleted, rep.Status)
	assert.Equal(t, "credit-report", rep.Label)
	require.NotNil(t, rep.Confidence)
	assert.InDelta(t, 0.9, *rep.Confidence, 1e-9)
}
