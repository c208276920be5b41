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

	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// Replica efficiency thresholds for optimization recommendations.
const (
	lowReplicaEfficiency = 90.0
	healthyClusterScore  = 90.0
	highRestartThreshold = 3
)

// Recommendation is a non-urgent optimization suggestion. Unlike issues,
// recommendations never describe active failures.
type Recommendation struct {
	Type     string                  `json:"type"`
	Priority string                  `json:"priority"`
	Message  string                  `json:"message"`
	Actions  []interfaces.ActionType `json:"actions"`
}

// ReplicaEfficiency returns the cluster-wide ratio of ready to desired
// replicas as a percentage, or 100 when nothing is desired.
func ReplicaEfficiency(snapshot *cluster.ClusterSnapshot) float64 {
	if snapshot == nil {
		return 100
	}
	var desired, ready int32
	for _, dep := range snapshot.Deployments {
		desired += dep.DesiredReplicas
		ready += dep.ReadyReplicas
	}
	if desired == 0 {
		return 100
	}
	return float64(ready) / float64(desired) * 100
}

// GenerateRecommendations derives optimization suggestions from the health
// score, detected issues, and snapshot-level efficiency signals.
func GenerateRecommendations(snapshot *cluster.ClusterSnapshot, score HealthScore, issues []Issue) []Recommendation {
	var recs []Recommendation

	criticalCount := 0
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			criticalCount++
		}
	}
	if criticalCount > 0 {
		actions := make([]interfaces.ActionType, 0, 3)
		for _, issue := range issues {
			if len(actions) == 3 {
				break
			}
			actions = append(actions, issue.RecommendedAction)
		}
		recs = append(recs, Recommendation{
			Type:     "critical_issues",
			Priority: string(SeverityCritical),
			Message:  fmt.Sprintf("%d critical issues detected requiring immediate action", criticalCount),
			Actions:  actions,
		})
	}

	if efficiency := ReplicaEfficiency(snapshot); efficiency < lowReplicaEfficiency {
		recs = append(recs, Recommendation{
			Type:     "efficiency_optimization",
			Priority: string(SeverityMedium),
			Message:  fmt.Sprintf("replica efficiency is %.1f%% - consider optimization", efficiency),
			Actions:  []interfaces.ActionType{interfaces.ActionBulkScaleDeployments, interfaces.ActionApplyAutoscaler},
		})
	}

	if snapshot != nil {
		highRestart := 0
		for _, pod := range snapshot.Pods {
			if pod.Restarts > highRestartThreshold {
				highRestart++
			}
		}
		if highRestart > 0 {
			recs = append(recs, Recommendation{
				Type:     "restart_optimization",
				Priority: string(SeverityMedium),
				Message:  fmt.Sprintf("%d pods have high restart counts", highRestart),
				Actions:  []interfaces.ActionType{interfaces.ActionRestartDeployment},
			})
		}
	}

	if score.Overall > healthyClusterScore && len(issues) == 0 {
		recs = append(recs, Recommendation{
			Type:     "proactive_optimization",
			Priority: string(SeverityLow),
			Message:  "cluster is healthy - consider proactive optimizations",
			Actions:  []interfaces.ActionType{interfaces.ActionApplyAutoscaler, interfaces.ActionUpdatePodResources},
		})
	}

	return recs
}

// PredictedIssue is a forward-looking warning derived from current state.
type PredictedIssue struct {
	Type       string                `json:"type"`
	Resource   string                `json:"resource"`
	Confidence float64               `json:"confidence"`
	Timeline   string                `json:"timeline"`
	Action     interfaces.ActionType `json:"action"`
}

// PredictInsights extrapolates the detected issues into near-term
// predictions: restart spirals imply imminent pod failure, and a degraded
// overall score suggests preemptive scaling.
func PredictInsights(score HealthScore, issues []Issue) []PredictedIssue {
	var predicted []PredictedIssue
	for _, issue := range issues {
		if issue.Type != IssueRestartSpiral {
			continue
		}
		predicted = append(predicted, PredictedIssue{
			Type:       "imminent_failure",
			Resource:   fmt.Sprintf("%s/%s", issue.Namespace, issue.Resource),
			Confidence: 0.85,
			Timeline:   "15-30 minutes",
			Action:     interfaces.ActionDeletePod,
		})
	}
	if score.Overall < 80 {
		predicted = append(predicted, PredictedIssue{
			Type:       "proactive_scaling",
			Resource:   "cluster",
			Confidence: 0.7,
			Timeline:   "next peak window",
			Action:     interfaces.ActionBulkScaleDeployments,
		})
	}
	return predicted
}
