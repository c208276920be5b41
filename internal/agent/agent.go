/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package agent orchestrates one analysis-and-remediation cycle: snapshot,
// health scoring, issue detection, planning, safety gating, and execution.
// A cycle is synchronous and sequential end to end; this is what keeps the
// rolling-window rate counters correct without locks.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/analyzer"
	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/executor"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
	"github.com/llm-d/llm-d-cluster-remediator/internal/metrics"
	"github.com/llm-d/llm-d-cluster-remediator/internal/planner"
	"github.com/llm-d/llm-d-cluster-remediator/internal/safety"
)

// CycleResult is the full outcome of one analysis cycle. Err carries the
// degradation reason when the snapshot could not be taken; the cycle still
// completes with an empty plan in that case.
type CycleResult struct {
	ID              string                       `json:"id"`
	Timestamp       time.Time                    `json:"timestamp"`
	Snapshot        *cluster.ClusterSnapshot     `json:"snapshot,omitempty"`
	Health          analyzer.HealthScore         `json:"health"`
	Issues          []analyzer.Issue             `json:"issues"`
	Recommendations []analyzer.Recommendation    `json:"recommendations"`
	Predicted       []analyzer.PredictedIssue    `json:"predicted"`
	Plan            []interfaces.ActionRecord    `json:"plan"`
	Report          string                       `json:"report"`
	Results         []interfaces.ExecutionResult `json:"results"`
	DryRun          bool                         `json:"dry_run"`
	Err             string                       `json:"error,omitempty"`
}

// Agent wires the pipeline stages together.
type Agent struct {
	provider  cluster.SnapshotProvider
	planner   planner.Planner
	explainer planner.Explainer
	gate      *safety.Gate
	executor  *executor.Executor
	logger    *zap.Logger
	dryRun    bool
	clock     func() time.Time
}

// New builds an agent. The explainer is optional; pass nil to plan from
// rules alone.
func New(
	provider cluster.SnapshotProvider,
	plan planner.Planner,
	explainer planner.Explainer,
	gate *safety.Gate,
	exec *executor.Executor,
	logger *zap.Logger,
	dryRun bool,
) *Agent {
	return &Agent{
		provider:  provider,
		planner:   plan,
		explainer: explainer,
		gate:      gate,
		executor:  exec,
		logger:    logger,
		dryRun:    dryRun,
		clock:     time.Now,
	}
}

// AnalyzeAndFix runs one cycle. It never returns an error: a failed
// snapshot degrades the cycle to an empty plan with the reason recorded
// on the result.
func (a *Agent) AnalyzeAndFix(ctx context.Context, prompt string) *CycleResult {
	result := &CycleResult{
		ID:        uuid.NewString(),
		Timestamp: a.clock(),
		DryRun:    a.dryRun,
	}

	snapshot, err := a.provider.GetSnapshot(ctx)
	if err != nil {
		a.logger.Warn("snapshot failed, degrading cycle", zap.String("cycle", result.ID), zap.Error(err))
		result.Err = err.Error()
		result.Health = analyzer.ScoreHealth(nil)
		result.Report = planner.RenderReport(nil, result.Health, nil, nil)
		return result
	}

	result.Snapshot = snapshot
	result.Health = analyzer.ScoreHealth(snapshot)
	result.Issues = analyzer.DetectIssues(snapshot)
	result.Recommendations = analyzer.GenerateRecommendations(snapshot, result.Health, result.Issues)
	result.Predicted = analyzer.PredictInsights(result.Health, result.Issues)
	result.Plan = a.planner.Plan(snapshot, result.Health, result.Issues)

	explanation := a.explain(ctx, snapshot, prompt, result)
	result.Report = planner.RenderReport(snapshot, result.Health, result.Issues, result.Plan)
	if explanation != "" {
		result.Report += "\n## EXPLAINER\n\n" + explanation
	}

	a.logger.Info("cycle planned",
		zap.String("cycle", result.ID),
		zap.Float64("health", result.Health.Overall),
		zap.Int("issues", len(result.Issues)),
		zap.Int("actions", len(result.Plan)),
		zap.Bool("dryRun", a.dryRun),
	)

	result.Results = a.executor.ExecutePlan(ctx, result.Plan)

	severityCounts := make(map[string]int)
	for _, issue := range result.Issues {
		severityCounts[string(issue.Severity)]++
	}
	metrics.RecordCycle(result.Health.Overall, severityCounts, result.Results)

	return result
}

// explain consults the optional explainer and merges any actions it
// proposes that the rule plan does not already cover. Explainer failures
// degrade to rules-only planning.
func (a *Agent) explain(ctx context.Context, snapshot *cluster.ClusterSnapshot, prompt string, result *CycleResult) string {
	if a.explainer == nil {
		return ""
	}

	explanation, err := a.explainer.Explain(ctx, snapshot, prompt)
	if err != nil {
		a.logger.Warn("explainer failed, planning from rules only", zap.String("cycle", result.ID), zap.Error(err))
		return ""
	}

	planned := make(map[string]bool, len(result.Plan))
	for _, rec := range result.Plan {
		planned[string(rec.Action)+"/"+rec.Namespace] = true
	}
	for _, rec := range planner.ExtractActions(explanation) {
		if planned[string(rec.Action)+"/"+rec.Namespace] {
			continue
		}
		result.Plan = append(result.Plan, rec)
	}
	return explanation
}

// SafetyStatus reports the gate's current limits and consumption.
func (a *Agent) SafetyStatus() safety.Status {
	return a.gate.SafetyStatus()
}

// ExecutionHistory returns all results produced by this agent instance.
func (a *Agent) ExecutionHistory() []interfaces.ExecutionResult {
	return a.executor.History()
}
