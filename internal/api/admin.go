package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"civiccite/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type ingestRequest struct {
	InputDir string `json:"input_dir"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Temporal == nil {
		writeErr(w, http.StatusServiceUnavailable)
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest)
		return
	}
	dir, err := s.resolveInputDir(req.InputDir)
	if err != nil {
		s.log.Warn("rejected ingest request", "input_dir", req.InputDir, "error", err)
		writeErr(w, http.StatusBadRequest)
		return
	}

	wfID := "ingest-" + uuid.NewString()
	we, err := s.deps.Temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.CorpusIngestWorkflow, workflows.NewCorpusIngestInput(s.cfg, dir))
	if err != nil {
		s.log.Error("start ingest workflow failed", "input_dir", dir, "error", err)
		writeErr(w, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

// resolveInputDir keeps ingestion inside the configured data root.
func (s *Server) resolveInputDir(in string) (string, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return "", fmt.Errorf("input_dir is required")
	}
	root, err := filepath.Abs(s.cfg.DataInRoot)
	if err != nil {
		return "", fmt.Errorf("resolve data root: %w", err)
	}
	dir := in
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("input_dir must be inside the data root")
	}
	return dir, nil
}

func (s *Server) handlePolicyReload(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Policies == nil {
		writeErr(w, http.StatusServiceUnavailable)
		return
	}
	p, err := s.deps.Policies.Reload()
	if err != nil {
		s.log.Error("policy reload failed", "error", err)
		writeErr(w, http.StatusUnprocessableEntity)
		return
	}
	s.log.Info("policy reloaded", "version", p.Version())
	writeJSON(w, http.StatusOK, map[string]any{"version": p.Version()})
}
