package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kubeseg/analyzer/internal/ingest"
	"github.com/kubeseg/analyzer/internal/match"
	"github.com/kubeseg/analyzer/internal/metrics"
	"github.com/kubeseg/analyzer/internal/model"
	"github.com/kubeseg/analyzer/internal/risk"
)

type gapsResponse struct {
	AnalysisID string `json:"analysis_id"`
	model.GapsResult
}

type driftResponse struct {
	AnalysisID string `json:"analysis_id"`
	model.DriftResult
}

// enrichedFlow is a flow annotated with its risk assessment and coverage
// state, consumed by the flow-visualization collaborator.
type enrichedFlow struct {
	model.Flow
	RiskScore     int             `json:"risk_score"`
	RiskLevel     model.RiskLevel `json:"risk_level"`
	IsRisky       bool            `json:"is_risky"`
	IsUnprotected bool            `json:"is_unprotected"`
}

type flowsResponse struct {
	Flows []enrichedFlow `json:"flows"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleGaps runs gap analysis over the snapshot.
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, r.URL.Path, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	id := uuid.NewString()
	start := time.Now()
	result := s.analyzer.Analyze(s.snap.Flows, s.snap.Policies)
	elapsed := time.Since(start)

	metrics.AnalysesTotal.WithLabelValues("gaps").Inc()
	metrics.AnalysisDuration.WithLabelValues("gaps").Observe(elapsed.Seconds())
	metrics.FindingsTotal.WithLabelValues("gaps", "risky_flows").Add(float64(len(result.RiskyFlows)))
	metrics.FindingsTotal.WithLabelValues("gaps", "unprotected_flows").Add(float64(len(result.UnprotectedFlows)))

	s.log.Info("Gap analysis served",
		"analysisID", id,
		"risky", len(result.RiskyFlows),
		"unprotected", len(result.UnprotectedFlows),
		"duration", elapsed,
	)

	s.writeJSON(w, r.URL.Path, http.StatusOK, gapsResponse{AnalysisID: id, GapsResult: result})
}

// handleDrift runs drift detection over the snapshot.
func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, r.URL.Path, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	id := uuid.NewString()
	start := time.Now()
	result := s.detector.Detect(s.snap.Intents, s.snap.Policies)
	elapsed := time.Since(start)

	metrics.AnalysesTotal.WithLabelValues("drift").Inc()
	metrics.AnalysisDuration.WithLabelValues("drift").Observe(elapsed.Seconds())
	metrics.FindingsTotal.WithLabelValues("drift", "missing_policies").Add(float64(len(result.MissingPolicies)))
	metrics.FindingsTotal.WithLabelValues("drift", "over_permissive").Add(float64(len(result.OverPermissive)))

	s.log.Info("Drift detection served",
		"analysisID", id,
		"missing", len(result.MissingPolicies),
		"overPermissive", len(result.OverPermissive),
		"duration", elapsed,
	)

	s.writeJSON(w, r.URL.Path, http.StatusOK, driftResponse{AnalysisID: id, DriftResult: result})
}

// handleFlows returns every flow annotated with score and coverage, for the
// visualization collaborator.
func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, r.URL.Path, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	enriched := make([]enrichedFlow, 0, len(s.snap.Flows))
	for _, f := range s.snap.Flows {
		assessment := s.scorer.Score(f)
		allowed := f.Verdict == model.VerdictAllow
		enriched = append(enriched, enrichedFlow{
			Flow:          f,
			RiskScore:     assessment.Score,
			RiskLevel:     assessment.Level,
			IsRisky:       allowed && risk.Risky(assessment),
			IsUnprotected: allowed && !match.FlowCovered(f, s.snap.Policies),
		})
	}

	metrics.AnalysesTotal.WithLabelValues("flows").Inc()
	s.writeJSON(w, r.URL.Path, http.StatusOK, flowsResponse{Flows: enriched})
}

// handleScore scores a single flow posted by the caller.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSON(w, r.URL.Path, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeJSON(w, r.URL.Path, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	f, err := ingest.ParseFlow(body)
	if err != nil {
		s.writeJSON(w, r.URL.Path, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	metrics.AnalysesTotal.WithLabelValues("score").Inc()
	s.writeJSON(w, r.URL.Path, http.StatusOK, s.scorer.Score(f))
}

// handleDebug returns the raw snapshot.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, r.URL.Path, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	s.writeJSON(w, r.URL.Path, http.StatusOK, map[string]any{
		"flows":    s.snap.Flows,
		"policies": s.snap.Policies,
		"intents":  s.snap.Intents,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, path string, status int, v any) {
	metrics.HTTPRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "Failed to encode response", "path", path)
	}
}
