package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"civiccite/internal/activities"
	"civiccite/internal/ingest"
	"civiccite/internal/providers"
	"civiccite/internal/storage"
	"civiccite/internal/util"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetDocumentStatus = "GetDocumentStatus"
	QueryGetProgress       = "GetProgress"
)

type providerState struct {
	disabledUntil map[int]time.Time
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}}
}

// CorpusIngestWorkflow indexes every supported file of an input directory,
// running one DocumentIngestWorkflow child per file in bounded batches.
func CorpusIngestWorkflow(ctx workflow.Context, input CorpusIngestInput) (CorpusIngestProgress, error) {
	progress := CorpusIngestProgress{
		InputDir:      input.InputDir,
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (CorpusIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}
	log := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var listOut activities.DiscoverDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "DiscoverDocumentsActivity", activities.DiscoverDocumentsInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return progress, err
	}
	entries := listOut.Entries
	progress.Total = len(entries)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 4
	}
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID

	for i := 0; i < len(entries); i += maxChildren {
		end := min(i+maxChildren, len(entries))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		for _, e := range entries[i:end] {
			progress.PerDocument[e.Path] = storage.DocumentProcessing
			workflowID := parentID + "-" + sanitizeID(e.Path)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				InputDir:        input.InputDir,
				Entry:           e,
				EmbedProviders:  input.EmbedProviders,
				CooldownSeconds: input.CooldownSeconds,
			})
			futures = append(futures, f)
			progress.ChildWorkflow[e.Path] = workflowID
		}

		for idx, f := range futures {
			path := entries[i+idx].Path
			var childStatus string
			if err := f.Get(ctx, &childStatus); err != nil {
				log.Warn("document ingest failed", "path", path, "error", err)
				childStatus = storage.DocumentFailed
			}
			progress.Done++
			progress.PerDocument[path] = childStatus
			switch childStatus {
			case storage.DocumentIndexed:
				progress.Indexed++
			case storage.DocumentSkipped:
				progress.Skipped++
			default:
				progress.Failed++
			}
		}
	}
	log.Info("corpus ingest finished", "input_dir", input.InputDir, "total", progress.Total,
		"indexed", progress.Indexed, "skipped", progress.Skipped, "failed", progress.Failed)
	return progress, nil
}

// DocumentIngestWorkflow runs extract, chunk, embed and write for one file.
// It returns the final document status: indexed, or skipped for documents
// that cannot be indexed as they are.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := DocumentStatus{
		Path:        input.Entry.Path,
		CurrentStep: "init",
		Status:      storage.DocumentProcessing,
		RetryCounts: map[string]int{},
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	cooldown := durationOrDefault(input.CooldownSeconds, 300)
	providerCount := defaultCount(input.EmbedProviders)
	state := newProviderState()

	step := func(name string) {
		status.CurrentStep = name
		status.Steps[name] = "processing"
	}
	done := func() { status.Steps[status.CurrentStep] = "done" }

	step("prepare")
	var prep activities.PrepareDocumentOutput
	err := workflow.ExecuteActivity(ctx, "PrepareDocumentActivity", activities.PrepareDocumentInput{
		InputDir:   input.InputDir,
		Entry:      input.Entry,
		IngestTime: workflow.Now(ctx),
	}).Get(ctx, &prep)
	if err != nil {
		if meta, ok := activities.TerminalDocumentError(err); ok {
			status.SourceID = meta.SourceID
			status.Status = storage.DocumentSkipped
			status.FailReason = skipReason(err)
			status.Steps[status.CurrentStep] = "skipped"
			_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
				Document:   meta,
				Status:     status.Status,
				FailReason: status.FailReason,
			}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.SourceID = prep.Document.SourceID
	status.Chunks = len(prep.Chunks)
	done()

	fail := func(err error) (string, error) {
		status.Status = storage.DocumentFailed
		status.FailReason = err.Error()
		status.Steps[status.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
			Document:   prep.Document,
			Status:     status.Status,
			FailReason: status.FailReason,
		}).Get(ctx, nil)
		return "", err
	}

	step("mark_processing")
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		Document: prep.Document,
		Status:   storage.DocumentProcessing,
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	done()

	step("existing_chunks")
	ids := make([]string, 0, len(prep.Chunks))
	for _, c := range prep.Chunks {
		ids = append(ids, c.ChunkID)
	}
	var existing activities.ExistingChunksOutput
	if err := workflow.ExecuteActivity(ctx, "ExistingChunksActivity", activities.ExistingChunksInput{ChunkIDs: ids}).Get(ctx, &existing); err != nil {
		return fail(err)
	}
	prep.Chunks = ingest.Anchor(prep.Chunks, prep.Document.LastUpdated, existing.IngestTimes)
	done()

	step("embed_chunks")
	pendingIDs, texts := activities.PendingEmbeds(prep.Chunks, existing.Existing)
	vectors := make(map[string][]float32, len(pendingIDs))
	if len(texts) > 0 {
		embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksInput{
			Operation: providers.OperationEmbed,
			SourceID:  prep.Document.SourceID,
			Texts:     texts,
		}, status.RetryCounts)
		if err != nil {
			return fail(err)
		}
		if len(embedOut.Vectors) != len(pendingIDs) {
			return fail(fmt.Errorf("embed returned %d vectors for %d chunks", len(embedOut.Vectors), len(pendingIDs)))
		}
		for i, id := range pendingIDs {
			vectors[id] = embedOut.Vectors[i]
		}
		status.Embedded = len(texts)
		status.Providers = append(status.Providers, embedOut.ProviderName)
	}
	done()

	step("write_chunks")
	if err := workflow.ExecuteActivity(ctx, "WriteChunksActivity", activities.WriteChunksInput{
		SourceID: prep.Document.SourceID,
		Chunks:   prep.Chunks,
		Vectors:  vectors,
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	done()

	step("mark_indexed")
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		Document:   prep.Document,
		Status:     storage.DocumentIndexed,
		ChunkCount: len(prep.Chunks),
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	done()
	status.CurrentStep = "done"
	status.Status = storage.DocumentIndexed
	return status.Status, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput, retryCounts map[string]int) (activities.EmbedChunksOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		workflow.GetLogger(ctx).Warn("embed attempt failed", "provider_index", idx, "error_type", string(errType))
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedChunksOutput{}, fmt.Errorf("%w: %v", util.ErrTransientBackend, lastErr)
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func skipReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type() + ": " + appErr.Message()
	}
	return err.Error()
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

func countProviders(raw string) int {
	return defaultCount(len(providers.ParseProviderList(raw)))
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func defaultCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
