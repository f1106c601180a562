// Package mcp exposes the validation engine as MCP tools over stdio, so
// agent hosts can gate artifacts and feed outcomes back without shelling out
// to the CLI.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"iacgate/internal/artifact"
	"iacgate/internal/calibration"
	"iacgate/internal/ensemble"
	"iacgate/internal/gate"
	"iacgate/internal/logging"
	"iacgate/internal/metrics"
	"iacgate/internal/verdict"
)

// Server wraps the MCP SDK server around one engine, tracker and store.
type Server struct {
	MCPServer *sdkmcp.Server

	engine   *ensemble.Engine
	tracker  *calibration.Tracker
	store    *calibration.Store
	recorder *metrics.Recorder
	log      *slog.Logger
}

// NewServer registers the validation tools on a fresh SDK server. version
// shows up in the MCP handshake. recorder may be nil; get_report then omits
// runtime statistics.
func NewServer(engine *ensemble.Engine, tracker *calibration.Tracker, store *calibration.Store, recorder *metrics.Recorder, version string) *Server {
	s := &Server{
		engine:   engine,
		tracker:  tracker,
		store:    store,
		recorder: recorder,
		log:      logging.New("mcp"),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "iacgate", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "validate_artifact",
		Description: "Run the judge ensemble over one IaC artifact and return the gated decision. The decision is persisted for later outcome feedback.",
	}, s.handleValidateArtifact)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "record_outcome",
		Description: "Record ground truth for a past decision: whether each judge's verdict turned out correct. Updates the calibration models.",
	}, s.handleRecordOutcome)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_report",
		Description: "Report calibration state per judge and policy (sample counts, ECE) plus decision counts by action.",
	}, s.handleGetReport)
}

// Run serves stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// --- Tool input/output types ---

type validateArtifactInput struct {
	Ref           string  `json:"ref" jsonschema:"artifact identifier, usually a file path"`
	Kind          string  `json:"kind,omitempty" jsonschema:"artifact kind (kubernetes-manifest, iam-policy, terraform-module, cloudformation-template, helm-template); detected from content when omitted"`
	Content       string  `json:"content" jsonschema:"raw artifact text"`
	PolicyID      string  `json:"policy_id" jsonschema:"policy identifier"`
	PolicyVersion string  `json:"policy_version,omitempty" jsonschema:"policy version"`
	RuleSet       string  `json:"rule_set,omitempty" jsonschema:"policy rule text handed to judges"`
	Threshold     float64 `json:"threshold,omitempty" jsonschema:"per-call HIGH_RISK threshold override in (0,1]; 0 keeps the configured value"`
}

type validateArtifactOutput struct {
	DecisionID         string   `json:"decision_id"`
	Action             string   `json:"action"`
	ExitCode           int      `json:"exit_code"`
	RiskScore          float64  `json:"risk_score"`
	ContributingJudges []string `json:"contributing_judges"`
	FailedJudges       []string `json:"failed_judges,omitempty"`
	Violations         []string `json:"violations,omitempty"`
	Remediation        []string `json:"remediation,omitempty"`
	Agreement          float64  `json:"agreement"`
	LatencyMS          int64    `json:"latency_ms"`
}

type recordOutcomeInput struct {
	DecisionID string `json:"decision_id" jsonschema:"decision ID from validate_artifact"`
	Judge      string `json:"judge,omitempty" jsonschema:"judge to record for; required unless all_judges is true"`
	Correct    bool   `json:"correct" jsonschema:"whether the verdict(s) matched ground truth"`
	AllJudges  bool   `json:"all_judges,omitempty" jsonschema:"apply the outcome to every contributing judge"`
}

type recordOutcomeOutput struct {
	Recorded int      `json:"recorded"`
	Judges   []string `json:"judges"`
}

type getReportInput struct {
	Policy string `json:"policy,omitempty" jsonschema:"restrict to one policy key (id@version); empty = all"`
}

type modelReport struct {
	Judge   string  `json:"judge"`
	Policy  string  `json:"policy"`
	Samples int64   `json:"samples"`
	ECE     float64 `json:"ece"`
	HasECE  bool    `json:"has_ece"`
}

type getReportOutput struct {
	Models    []modelReport    `json:"models"`
	Decisions map[string]int64 `json:"decisions_by_action"`
	Runtime   *metrics.Summary `json:"runtime,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleValidateArtifact(ctx context.Context, _ *sdkmcp.CallToolRequest, input validateArtifactInput) (*sdkmcp.CallToolResult, validateArtifactOutput, error) {
	if input.Ref == "" || input.Content == "" {
		return nil, validateArtifactOutput{}, fmt.Errorf("ref and content are required")
	}
	if input.PolicyID == "" {
		return nil, validateArtifactOutput{}, fmt.Errorf("policy_id is required")
	}
	if input.Threshold < 0 || input.Threshold > 1 {
		return nil, validateArtifactOutput{}, fmt.Errorf("threshold %v outside (0,1]", input.Threshold)
	}

	art := artifact.New(input.Ref, artifact.Kind(input.Kind), []byte(input.Content))
	pol := artifact.PolicyContext{ID: input.PolicyID, Version: input.PolicyVersion, RuleSet: input.RuleSet}

	d := s.engine.Validate(ctx, art, pol, input.Threshold)

	payload, err := json.Marshal(d)
	if err != nil {
		return nil, validateArtifactOutput{}, fmt.Errorf("encode decision: %w", err)
	}
	if err := s.store.SaveDecision(d.ID, pol.Key(), string(d.Action), d.RiskScore, d.LatencyMS, payload); err != nil {
		s.log.Warn("decision not persisted", "id", d.ID, "error", err)
	}

	return nil, validateArtifactOutput{
		DecisionID:         d.ID,
		Action:             string(d.Action),
		ExitCode:           d.Action.ExitCode(),
		RiskScore:          d.RiskScore,
		ContributingJudges: d.ContributingJudges,
		FailedJudges:       d.FailedJudges,
		Violations:         d.Violations,
		Remediation:        d.Remediation,
		Agreement:          d.Agreement,
		LatencyMS:          d.LatencyMS,
	}, nil
}

func (s *Server) handleRecordOutcome(_ context.Context, _ *sdkmcp.CallToolRequest, input recordOutcomeInput) (*sdkmcp.CallToolResult, recordOutcomeOutput, error) {
	if input.DecisionID == "" {
		return nil, recordOutcomeOutput{}, fmt.Errorf("decision_id is required")
	}
	if !input.AllJudges && input.Judge == "" {
		return nil, recordOutcomeOutput{}, fmt.Errorf("judge is required unless all_judges is set")
	}

	payload, err := s.store.GetDecisionPayload(input.DecisionID)
	if err != nil {
		return nil, recordOutcomeOutput{}, err
	}
	var d ensemble.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, recordOutcomeOutput{}, fmt.Errorf("decode decision %s: %w", input.DecisionID, err)
	}

	var judges []string
	var actual, actualKnown bool
	for _, v := range d.Verdicts {
		if !input.AllJudges && v.Judge != input.Judge {
			continue
		}
		// Outcomes feed the raw confidence: calibration learns how the
		// judge's own scale maps to accuracy.
		if err := s.tracker.RecordOutcome(v.Judge, d.Policy.Key(), v.Confidence, input.Correct); err != nil {
			return nil, recordOutcomeOutput{}, err
		}
		if _, err := s.store.AppendOutcome(d.ID, v.Judge, d.Policy.Key(), v.Confidence, input.Correct); err != nil {
			return nil, recordOutcomeOutput{}, err
		}
		judges = append(judges, v.Judge)
		// A correct violation verdict, or an incorrect no-violation one,
		// means a violation was actually present. Ambiguous verdicts carry
		// no ground-truth direction.
		if !actualKnown && v.Label != verdict.LabelAmbiguous {
			actual = (v.Label == verdict.LabelViolation) == input.Correct
			actualKnown = true
		}
	}
	if len(judges) == 0 {
		return nil, recordOutcomeOutput{}, fmt.Errorf("judge %q did not contribute to decision %s", input.Judge, input.DecisionID)
	}

	if s.recorder != nil && actualKnown {
		s.recorder.RecordOutcome(d.Action == gate.ActionHighRisk, actual)
	}

	if err := s.store.Flush(s.tracker); err != nil {
		return nil, recordOutcomeOutput{}, fmt.Errorf("persist calibration: %w", err)
	}
	return nil, recordOutcomeOutput{Recorded: len(judges), Judges: judges}, nil
}

func (s *Server) handleGetReport(_ context.Context, _ *sdkmcp.CallToolRequest, input getReportInput) (*sdkmcp.CallToolResult, getReportOutput, error) {
	out := getReportOutput{}

	for _, snap := range s.tracker.Snapshot() {
		if input.Policy != "" && snap.PolicyKey != input.Policy {
			continue
		}
		var samples int64
		for _, b := range snap.Buckets {
			samples += b.Count
		}
		ece, ok := s.tracker.ECE(snap.Judge, snap.PolicyKey)
		out.Models = append(out.Models, modelReport{
			Judge:   snap.Judge,
			Policy:  snap.PolicyKey,
			Samples: samples,
			ECE:     ece,
			HasECE:  ok,
		})
	}

	counts, err := s.store.CountDecisionsByAction(input.Policy)
	if err != nil {
		return nil, getReportOutput{}, err
	}
	out.Decisions = counts

	if s.recorder != nil {
		summary := s.recorder.Snapshot()
		out.Runtime = &summary
	}
	return nil, out, nil
}
