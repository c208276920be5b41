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

// Package planner turns detected issues into concrete remediation plans.
// Plans come from two sources: deterministic rules over the issue list,
// and action blocks extracted from free-text analysis. Both produce the
// same ActionRecord contract the executor consumes.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/llm-d/llm-d-cluster-remediator/internal/analyzer"
	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// Confidence levels by plan source. Rule-derived actions carry the highest
// confidence since they are backed by a detected issue; heuristics and
// extracted text rank below them.
const (
	ConfidenceRules     = 0.9
	ConfidenceExplainer = 0.8
	ConfidenceHeuristic = 0.7
	ConfidenceKeyword   = 0.6
)

// Plan sources recorded on each ActionRecord.
const (
	SourceRules     = "rules"
	SourceHeuristic = "heuristics"
	SourceExplainer = "explainer"
	SourceKeyword   = "keyword"
)

const (
	// serviceRestoreReplicas is the replica count used to bring a zeroed
	// deployment back up.
	serviceRestoreReplicas = 1

	// maxBulkTargetsPerRecord keeps generated bulk actions within the
	// safety gate's default cap.
	maxBulkTargetsPerRecord = 10

	lowEfficiencyThreshold = 90.0
	healthyOverallScore    = 90.0
)

// Planner produces an ordered remediation plan for one analysis cycle.
type Planner interface {
	Plan(snapshot *cluster.ClusterSnapshot, score analyzer.HealthScore, issues []analyzer.Issue) []interfaces.ActionRecord
}

// RulePlanner derives actions directly from detected issues, then appends
// heuristic optimization actions. It holds no state between cycles.
type RulePlanner struct{}

// NewRulePlanner returns the default deterministic planner.
func NewRulePlanner() *RulePlanner {
	return &RulePlanner{}
}

// Plan converts issues into ActionRecords in issue order, so the severity
// sort of the detector carries through to execution order.
func (p *RulePlanner) Plan(snapshot *cluster.ClusterSnapshot, score analyzer.HealthScore, issues []analyzer.Issue) []interfaces.ActionRecord {
	var records []interfaces.ActionRecord

	for _, issue := range issues {
		switch issue.Type {
		case analyzer.IssueCascadeFailure:
			records = append(records, p.cascadeAction(snapshot, issue))
		case analyzer.IssueServiceUnavailable:
			records = append(records, interfaces.ActionRecord{
				Action:    interfaces.ActionScaleDeployment,
				Namespace: issue.Namespace,
				Parameters: map[string]string{
					interfaces.ParamDeployment: issue.Resource,
					interfaces.ParamReplicas:   fmt.Sprintf("%d", serviceRestoreReplicas),
				},
				Reasoning:  issue.Message,
				Priority:   string(issue.Severity),
				Confidence: ConfidenceRules,
				Source:     SourceRules,
			})
		case analyzer.IssueRestartSpiral:
			records = append(records, interfaces.ActionRecord{
				Action:    interfaces.ActionDeletePod,
				Namespace: issue.Namespace,
				Parameters: map[string]string{
					interfaces.ParamPodName: issue.Resource,
				},
				Reasoning:  issue.Message,
				Priority:   string(issue.Severity),
				Confidence: ConfidenceRules,
				Source:     SourceRules,
			})
		case analyzer.IssueScalingInefficiency:
			records = append(records, p.scalingActions(snapshot, issue)...)
		}
	}

	records = append(records, p.heuristicActions(snapshot, score, issues)...)
	return records
}

// cascadeAction targets the problematic pods of the issue's namespace,
// capped so the generated action stays within bulk limits.
func (p *RulePlanner) cascadeAction(snapshot *cluster.ClusterSnapshot, issue analyzer.Issue) interfaces.ActionRecord {
	var pods []string
	if snapshot != nil {
		for _, pod := range snapshot.ProblematicPods() {
			if pod.Namespace != issue.Namespace {
				continue
			}
			pods = append(pods, pod.Name)
			if len(pods) == maxBulkTargetsPerRecord {
				break
			}
		}
	}
	return interfaces.ActionRecord{
		Action:    interfaces.ActionBulkRestartPods,
		Namespace: issue.Namespace,
		Parameters: map[string]string{
			interfaces.ParamPodNames: strings.Join(pods, ","),
		},
		Reasoning:  issue.Message,
		Priority:   string(issue.Severity),
		Confidence: ConfidenceRules,
		Source:     SourceRules,
	}
}

// scalingActions resolves the aggregated inefficiency issue back into
// per-namespace bulk scale records, since a bulk action targets one
// namespace. Namespaces are visited in sorted order.
func (p *RulePlanner) scalingActions(snapshot *cluster.ClusterSnapshot, issue analyzer.Issue) []interfaces.ActionRecord {
	if snapshot == nil {
		return nil
	}

	byNamespace := make(map[string][]string)
	targetReplicas := make(map[string]int32)
	for _, dep := range snapshot.Deployments {
		if dep.DesiredReplicas <= 0 {
			continue
		}
		if float64(dep.ReadyReplicas) >= 0.5*float64(dep.DesiredReplicas) {
			continue
		}
		byNamespace[dep.Namespace] = append(byNamespace[dep.Namespace], dep.Name)
		if dep.DesiredReplicas > targetReplicas[dep.Namespace] {
			targetReplicas[dep.Namespace] = dep.DesiredReplicas
		}
	}

	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var records []interfaces.ActionRecord
	for _, ns := range namespaces {
		records = append(records, interfaces.ActionRecord{
			Action:    interfaces.ActionBulkScaleDeployments,
			Namespace: ns,
			Parameters: map[string]string{
				interfaces.ParamDeploymentNames: strings.Join(byNamespace[ns], ","),
				interfaces.ParamReplicas:        fmt.Sprintf("%d", targetReplicas[ns]),
			},
			Reasoning:  issue.Message,
			Priority:   string(issue.Severity),
			Confidence: ConfidenceRules,
			Source:     SourceRules,
		})
	}
	return records
}

// heuristicActions proposes optimizations that are not tied to a detected
// failure: catching up deployments that lag their desired replica count,
// and autoscaling the largest deployment of a healthy cluster.
func (p *RulePlanner) heuristicActions(snapshot *cluster.ClusterSnapshot, score analyzer.HealthScore, issues []analyzer.Issue) []interfaces.ActionRecord {
	if snapshot == nil {
		return nil
	}

	var records []interfaces.ActionRecord
	if rec, ok := p.efficiencyAction(snapshot, issues); ok {
		records = append(records, rec)
	}
	if rec, ok := p.proactiveAction(snapshot, score, issues); ok {
		records = append(records, rec)
	}
	return records
}

// efficiencyAction fires when cluster-wide replica efficiency drops below
// 90% without an inefficiency issue already covering it. It nudges the
// lagging deployments back to their desired counts.
func (p *RulePlanner) efficiencyAction(snapshot *cluster.ClusterSnapshot, issues []analyzer.Issue) (interfaces.ActionRecord, bool) {
	if analyzer.ReplicaEfficiency(snapshot) >= lowEfficiencyThreshold {
		return interfaces.ActionRecord{}, false
	}
	for _, issue := range issues {
		if issue.Type == analyzer.IssueScalingInefficiency {
			return interfaces.ActionRecord{}, false
		}
	}

	byNamespace := make(map[string][]string)
	targetReplicas := make(map[string]int32)
	for _, dep := range snapshot.Deployments {
		if dep.DesiredReplicas <= 0 || dep.ReadyReplicas >= dep.DesiredReplicas {
			continue
		}
		byNamespace[dep.Namespace] = append(byNamespace[dep.Namespace], dep.Name)
		if dep.DesiredReplicas > targetReplicas[dep.Namespace] {
			targetReplicas[dep.Namespace] = dep.DesiredReplicas
		}
	}
	if len(byNamespace) == 0 {
		return interfaces.ActionRecord{}, false
	}

	// Target the namespace with the most lagging deployments.
	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	worst := namespaces[0]
	for _, ns := range namespaces[1:] {
		if len(byNamespace[ns]) > len(byNamespace[worst]) {
			worst = ns
		}
	}

	return interfaces.ActionRecord{
		Action:    interfaces.ActionBulkScaleDeployments,
		Namespace: worst,
		Parameters: map[string]string{
			interfaces.ParamDeploymentNames: strings.Join(byNamespace[worst], ","),
			interfaces.ParamReplicas:        fmt.Sprintf("%d", targetReplicas[worst]),
		},
		Reasoning:  fmt.Sprintf("replica efficiency is below %.0f%%", lowEfficiencyThreshold),
		Priority:   string(analyzer.SeverityMedium),
		Confidence: ConfidenceHeuristic,
		Source:     SourceHeuristic,
	}, true
}

// proactiveAction suggests an autoscaler for the largest deployment when
// the cluster is healthy and quiet.
func (p *RulePlanner) proactiveAction(snapshot *cluster.ClusterSnapshot, score analyzer.HealthScore, issues []analyzer.Issue) (interfaces.ActionRecord, bool) {
	if len(issues) > 0 || score.Overall <= healthyOverallScore {
		return interfaces.ActionRecord{}, false
	}

	var largest *cluster.DeploymentRecord
	for i := range snapshot.Deployments {
		dep := &snapshot.Deployments[i]
		if largest == nil || dep.DesiredReplicas > largest.DesiredReplicas {
			largest = dep
		}
	}
	if largest == nil || largest.DesiredReplicas < 2 {
		return interfaces.ActionRecord{}, false
	}

	return interfaces.ActionRecord{
		Action:    interfaces.ActionApplyAutoscaler,
		Namespace: largest.Namespace,
		Parameters: map[string]string{
			interfaces.ParamDeployment: largest.Name,
		},
		Reasoning:  fmt.Sprintf("cluster is healthy, autoscaling %s smooths future load", largest.Name),
		Priority:   string(analyzer.SeverityLow),
		Confidence: ConfidenceHeuristic,
		Source:     SourceHeuristic,
	}, true
}
