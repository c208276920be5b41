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

// Package analyzer scores cluster health and detects operational issues
// from a snapshot. Scoring and detection are pure functions of the
// snapshot; neither touches the cluster.
package analyzer

import (
	"math"

	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
)

// Health score weights. The four weights must sum to exactly 1.
const (
	WeightPodHealth          = 0.3
	WeightDeploymentHealth   = 0.3
	WeightRestartHealth      = 0.2
	WeightAvailabilityHealth = 0.2

	// maxRestartPenalty caps how much accumulated restarts can reduce the
	// restart dimension.
	maxRestartPenalty = 50

	// restartPenaltyPerRestart is the score cost of each observed restart.
	restartPenaltyPerRestart = 2
)

// HealthScore holds per-dimension and overall cluster health, all
// percentages in [0,100]. Overall is the weighted sum of the four
// dimensions rounded to one decimal.
type HealthScore struct {
	PodHealth          float64 `json:"podHealth"`
	DeploymentHealth   float64 `json:"deploymentHealth"`
	RestartHealth      float64 `json:"restartHealth"`
	AvailabilityHealth float64 `json:"availabilityHealth"`
	Overall            float64 `json:"overall"`
	Grade              string  `json:"grade"`
	Status             string  `json:"status"`

	// Err is set instead of panicking when scoring cannot proceed; Overall
	// is forced to zero in that case.
	Err string `json:"error,omitempty"`
}

// ScoreHealth converts a snapshot into a health score. Empty pod or
// deployment lists score 100 on the dimensions they feed.
func ScoreHealth(snapshot *cluster.ClusterSnapshot) HealthScore {
	if snapshot == nil {
		return HealthScore{Err: "no snapshot available", Grade: "F", Status: "Critical"}
	}

	score := HealthScore{
		PodHealth:          100,
		DeploymentHealth:   100,
		RestartHealth:      100,
		AvailabilityHealth: 100,
	}

	if len(snapshot.Pods) > 0 {
		running := 0
		totalRestarts := 0
		for _, pod := range snapshot.Pods {
			if pod.Phase == cluster.PhaseRunning {
				running++
			}
			totalRestarts += pod.Restarts
		}
		score.PodHealth = float64(running) / float64(len(snapshot.Pods)) * 100

		penalty := totalRestarts * restartPenaltyPerRestart
		if penalty > maxRestartPenalty {
			penalty = maxRestartPenalty
		}
		score.RestartHealth = float64(100 - penalty)
	}

	if len(snapshot.Deployments) > 0 {
		healthy := 0
		zeroed := 0
		for _, dep := range snapshot.Deployments {
			if dep.ReadyReplicas == dep.DesiredReplicas {
				healthy++
			}
			if dep.DesiredReplicas == 0 {
				zeroed++
			}
		}
		score.DeploymentHealth = float64(healthy) / float64(len(snapshot.Deployments)) * 100
		score.AvailabilityHealth = 100 - float64(zeroed)/float64(len(snapshot.Deployments))*100
	}

	overall := score.PodHealth*WeightPodHealth +
		score.DeploymentHealth*WeightDeploymentHealth +
		score.RestartHealth*WeightRestartHealth +
		score.AvailabilityHealth*WeightAvailabilityHealth
	score.Overall = math.Round(overall*10) / 10
	score.Grade, score.Status = gradeFor(score.Overall)

	return score
}

// gradeFor maps an overall score onto the letter grade bands.
func gradeFor(overall float64) (grade, status string) {
	switch {
	case overall >= 90:
		return "A", "Excellent"
	case overall >= 80:
		return "B", "Good"
	case overall >= 70:
		return "C", "Fair"
	case overall >= 60:
		return "D", "Poor"
	default:
		return "F", "Critical"
	}
}
