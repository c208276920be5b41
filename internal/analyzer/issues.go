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

package analyzer

import (
	"fmt"
	"sort"

	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// Severity classifies how urgent an issue is. Severities form a total
// order; lower rank sorts first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the sort position of the severity; unknown severities sort
// last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Issue types produced by the detector rules.
const (
	IssueCascadeFailure      = "cascade_failure"
	IssueServiceUnavailable  = "service_unavailable"
	IssueRestartSpiral       = "restart_spiral"
	IssueScalingInefficiency = "scaling_inefficiency"
)

// Detection rule thresholds.
const (
	// cascadeFailureThreshold is the number of problematic pods in one
	// namespace that constitutes a cascade failure.
	cascadeFailureThreshold = 3

	// restartSpiralThreshold is the restart count above which a non-running
	// pod is considered to be in a restart spiral.
	restartSpiralThreshold = 10

	// underScaledRatio marks a deployment inefficient when its ready
	// replicas fall below this fraction of desired.
	underScaledRatio = 0.5
)

// Issue is one detected operational problem with its recommended
// remediation.
type Issue struct {
	// Type is one of the Issue* rule identifiers.
	Type string `json:"type"`

	// Severity orders the issue for remediation priority.
	Severity Severity `json:"severity"`

	// Namespace the issue was detected in; empty for cluster-wide
	// aggregations.
	Namespace string `json:"namespace,omitempty"`

	// Resource is the specific pod or deployment, when the issue targets
	// one.
	Resource string `json:"resource,omitempty"`

	// AffectedResources counts how many resources the issue covers.
	AffectedResources int `json:"affectedResources"`

	// Message describes the issue for operators.
	Message string `json:"message"`

	// RecommendedAction is the remediation the planner should propose.
	RecommendedAction interfaces.ActionType `json:"recommendedAction"`
}

// DetectIssues applies every detection rule to the snapshot and returns the
// issues sorted ascending by severity rank. The sort is stable, so issues
// of equal severity keep detection order.
func DetectIssues(snapshot *cluster.ClusterSnapshot) []Issue {
	if snapshot == nil {
		return nil
	}

	var issues []Issue
	issues = append(issues, detectCascadeFailures(snapshot)...)
	issues = append(issues, detectServiceUnavailable(snapshot)...)
	issues = append(issues, detectRestartSpirals(snapshot)...)
	issues = append(issues, detectScalingInefficiency(snapshot)...)

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})
	return issues
}

// detectCascadeFailures flags namespaces where problematic pods cluster,
// indicating a shared cause rather than isolated failures. Namespaces are
// visited in sorted order for deterministic output.
func detectCascadeFailures(snapshot *cluster.ClusterSnapshot) []Issue {
	counts := make(map[string]int)
	for _, pod := range snapshot.ProblematicPods() {
		counts[pod.Namespace]++
	}

	namespaces := make([]string, 0, len(counts))
	for ns := range counts {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var issues []Issue
	for _, ns := range namespaces {
		if counts[ns] < cascadeFailureThreshold {
			continue
		}
		issues = append(issues, Issue{
			Type:              IssueCascadeFailure,
			Severity:          SeverityCritical,
			Namespace:         ns,
			AffectedResources: counts[ns],
			Message:           fmt.Sprintf("cascade failure detected in %s: %d failed pods", ns, counts[ns]),
			RecommendedAction: interfaces.ActionBulkRestartPods,
		})
	}
	return issues
}

// detectServiceUnavailable flags each deployment scaled to zero, one issue
// per deployment.
func detectServiceUnavailable(snapshot *cluster.ClusterSnapshot) []Issue {
	var issues []Issue
	for _, dep := range snapshot.Deployments {
		if dep.DesiredReplicas != 0 {
			continue
		}
		issues = append(issues, Issue{
			Type:              IssueServiceUnavailable,
			Severity:          SeverityCritical,
			Namespace:         dep.Namespace,
			Resource:          dep.Name,
			AffectedResources: 1,
			Message:           fmt.Sprintf("service down: %s has 0 replicas", dep.Name),
			RecommendedAction: interfaces.ActionScaleDeployment,
		})
	}
	return issues
}

// detectRestartSpirals flags pods that restart continuously without
// reaching a running state.
func detectRestartSpirals(snapshot *cluster.ClusterSnapshot) []Issue {
	var issues []Issue
	for _, pod := range snapshot.Pods {
		if pod.Restarts <= restartSpiralThreshold || pod.Phase == cluster.PhaseRunning {
			continue
		}
		issues = append(issues, Issue{
			Type:              IssueRestartSpiral,
			Severity:          SeverityHigh,
			Namespace:         pod.Namespace,
			Resource:          pod.Name,
			AffectedResources: 1,
			Message:           fmt.Sprintf("restart spiral: %s has %d restarts", pod.Name, pod.Restarts),
			RecommendedAction: interfaces.ActionDeletePod,
		})
	}
	return issues
}

// detectScalingInefficiency aggregates under-scaled deployments into one
// issue with an affected count.
func detectScalingInefficiency(snapshot *cluster.ClusterSnapshot) []Issue {
	underScaled := 0
	for _, dep := range snapshot.Deployments {
		if dep.DesiredReplicas <= 0 {
			continue
		}
		if float64(dep.ReadyReplicas) < underScaledRatio*float64(dep.DesiredReplicas) {
			underScaled++
		}
	}
	if underScaled == 0 {
		return nil
	}
	return []Issue{{
		Type:              IssueScalingInefficiency,
		Severity:          SeverityMedium,
		AffectedResources: underScaled,
		Message:           fmt.Sprintf("scaling inefficiency: %d deployments under-scaled", underScaled),
		RecommendedAction: interfaces.ActionBulkScaleDeployments,
	}}
}
