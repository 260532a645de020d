package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"civiccite/internal/activities"
	"civiccite/internal/config"
	"civiccite/internal/extract"
	"civiccite/internal/models"
	"civiccite/internal/storage"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerDocumentActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "PrepareDocumentActivity", func(context.Context, activities.PrepareDocumentInput) (activities.PrepareDocumentOutput, error) {
		return activities.PrepareDocumentOutput{}, nil
	})
	registerActivityName(env, "UpdateDocumentStatusActivity", func(context.Context, activities.UpdateDocumentStatusInput) error { return nil })
	registerActivityName(env, "ExistingChunksActivity", func(context.Context, activities.ExistingChunksInput) (activities.ExistingChunksOutput, error) {
		return activities.ExistingChunksOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "WriteChunksActivity", func(context.Context, activities.WriteChunksInput) error { return nil })
}

var testEntry = extract.Entry{Path: "voter/registration.html", URL: "https://eci.gov.in/voter", Language: "en"}

func preparedDocument() activities.PrepareDocumentOutput {
	return activities.PrepareDocumentOutput{
		Document: activities.DocumentMeta{SourceID: "src1", Path: testEntry.Path, URL: testEntry.URL, Language: "en"},
		Chunks: []models.Chunk{
			{ChunkID: "c0", Ordinal: 0, Content: "first", SourceID: "src1"},
			{ChunkID: "c1", Ordinal: 1, Content: "second", SourceID: "src1"},
		},
	}
}

func TestDocumentIngestWorkflowEmbedsOnlyNewChunks(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	statuses := []string{}
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(preparedDocument(), nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.UpdateDocumentStatusInput) error {
		statuses = append(statuses, in.Status)
		return nil
	})
	env.OnActivity("ExistingChunksActivity", mock.Anything, activities.ExistingChunksInput{ChunkIDs: []string{"c0", "c1"}}).
		Return(activities.ExistingChunksOutput{Existing: map[string]bool{"c0": true}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool {
		return len(in.Texts) == 1 && in.Texts[0] == "second"
	})).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock"}, nil).Once()
	env.OnActivity("WriteChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.WriteChunksInput) bool {
		_, reused := in.Vectors["c0"]
		return in.SourceID == "src1" && len(in.Chunks) == 2 && len(in.Vectors) == 1 && !reused
	})).Return(nil).Once()

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{InputDir: "/data/in", Entry: testEntry, EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, storage.DocumentIndexed, out)
	require.Equal(t, []string{storage.DocumentProcessing, storage.DocumentIndexed}, statuses)
	env.AssertExpectations(t)
}

func TestDocumentIngestWorkflowKeepsFirstIngestTime(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	first := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	prep := preparedDocument()
	for i := range prep.Chunks {
		prep.Chunks[i].LastUpdated, prep.Chunks[i].IngestTime = now, now
	}
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(prep, nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExistingChunksActivity", mock.Anything, mock.Anything).Return(activities.ExistingChunksOutput{
		Existing:    map[string]bool{"c0": true, "c1": true},
		IngestTimes: map[string]time.Time{"c0": first, "c1": first},
	}, nil)
	env.OnActivity("WriteChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.WriteChunksInput) bool {
		for _, c := range in.Chunks {
			if !c.IngestTime.Equal(first) || !c.LastUpdated.Equal(first) {
				return false
			}
		}
		return len(in.Chunks) == 2 && len(in.Vectors) == 0
	})).Return(nil).Once()

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{InputDir: "/data/in", Entry: testEntry, EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestDocumentIngestWorkflowSkipsShortDocuments(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	meta := activities.DocumentMeta{SourceID: "src1", Path: testEntry.Path}
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(activities.PrepareDocumentOutput{},
		temporal.NewNonRetryableApplicationError("extraction too short: 3 tokens, need 25", activities.ErrTypeExtractionTooShort, nil, meta))
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.UpdateDocumentStatusInput) bool {
		return in.Status == storage.DocumentSkipped && in.Document.SourceID == "src1"
	})).Return(nil).Once()

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{InputDir: "/data/in", Entry: testEntry, EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, storage.DocumentSkipped, out)
	env.AssertExpectations(t)
}

func TestDocumentIngestWorkflowFailsOverEmbedProviders(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(preparedDocument(), nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExistingChunksActivity", mock.Anything, mock.Anything).Return(activities.ExistingChunksOutput{}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool { return in.ProviderIndex == 0 })).
		Return(activities.EmbedChunksOutput{}, errors.New("insufficient_quota"))
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool { return in.ProviderIndex == 1 })).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{1}, {2}}, ProviderName: "second"}, nil)
	env.OnActivity("WriteChunksActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{InputDir: "/data/in", Entry: testEntry, EmbedProviders: 2, CooldownSeconds: 60})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, storage.DocumentIndexed, out)
}

func TestCorpusIngestWorkflowCountsOutcomes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CorpusIngestWorkflow)
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerActivityName(env, "DiscoverDocumentsActivity", func(context.Context, activities.DiscoverDocumentsInput) (activities.DiscoverDocumentsOutput, error) {
		return activities.DiscoverDocumentsOutput{}, nil
	})

	env.OnActivity("DiscoverDocumentsActivity", mock.Anything, activities.DiscoverDocumentsInput{InputDir: "/data/in"}).
		Return(activities.DiscoverDocumentsOutput{Entries: []extract.Entry{{Path: "a.txt"}, {Path: "b.md"}, {Path: "c.pdf"}}}, nil)
	byPath := func(p string) any {
		return mock.MatchedBy(func(in DocumentIngestInput) bool { return in.Entry.Path == p })
	}
	env.OnWorkflow(DocumentIngestWorkflow, mock.Anything, byPath("a.txt")).Return(storage.DocumentIndexed, nil)
	env.OnWorkflow(DocumentIngestWorkflow, mock.Anything, byPath("b.md")).Return(storage.DocumentSkipped, nil)
	env.OnWorkflow(DocumentIngestWorkflow, mock.Anything, byPath("c.pdf")).Return("", errors.New("boom"))

	env.ExecuteWorkflow(CorpusIngestWorkflow, CorpusIngestInput{InputDir: "/data/in", MaxConcurrentChildren: 2, EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var progress CorpusIngestProgress
	require.NoError(t, env.GetWorkflowResult(&progress))
	require.Equal(t, 3, progress.Total)
	require.Equal(t, 3, progress.Done)
	require.Equal(t, 1, progress.Indexed)
	require.Equal(t, 1, progress.Skipped)
	require.Equal(t, 1, progress.Failed)
	require.Equal(t, storage.DocumentFailed, progress.PerDocument["c.pdf"])
}

func TestNewCorpusIngestInputCountsProviders(t *testing.T) {
	cfg := config.Config{IngestMaxChildren: 6, EmbedProviders: "gemini|ollama", ProviderCooldownSecs: 120}
	in := NewCorpusIngestInput(cfg, "/data/in/eci")
	require.Equal(t, CorpusIngestInput{InputDir: "/data/in/eci", MaxConcurrentChildren: 6, EmbedProviders: 2, CooldownSeconds: 120}, in)
	require.Equal(t, 5*time.Minute, durationOrDefault(0, 300))
}
