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

package planner

import (
	"fmt"
	"strings"

	"github.com/llm-d/llm-d-cluster-remediator/internal/analyzer"
	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// RenderReport produces the human-readable analysis report for one cycle.
// The action plan section uses ACTION_N blocks so ExtractActions can
// recover the plan from the report text, which keeps the report and an
// external explainer's output on the same contract.
func RenderReport(snapshot *cluster.ClusterSnapshot, score analyzer.HealthScore, issues []analyzer.Issue, records []interfaces.ActionRecord) string {
	var b strings.Builder

	b.WriteString("## CLUSTER ANALYSIS\n\n")
	b.WriteString(fmt.Sprintf("**Health**: %.1f (grade %s, %s)\n", score.Overall, score.Grade, score.Status))
	b.WriteString(fmt.Sprintf("- Pod health: %.1f\n", score.PodHealth))
	b.WriteString(fmt.Sprintf("- Deployment health: %.1f\n", score.DeploymentHealth))
	b.WriteString(fmt.Sprintf("- Restart health: %.1f\n", score.RestartHealth))
	b.WriteString(fmt.Sprintf("- Availability: %.1f\n", score.AvailabilityHealth))

	if snapshot != nil {
		b.WriteString(fmt.Sprintf("- Pods: %d (%d problematic)\n", len(snapshot.Pods), len(snapshot.ProblematicPods())))
		b.WriteString(fmt.Sprintf("- Deployments: %d\n", len(snapshot.Deployments)))
	}

	if len(issues) > 0 {
		b.WriteString("\n## DETECTED ISSUES\n")
		for _, issue := range issues {
			b.WriteString(fmt.Sprintf("- [%s] %s: %s\n", strings.ToUpper(string(issue.Severity)), issue.Type, issue.Message))
		}
	}

	b.WriteString("\n## ACTION PLAN\n")
	if len(records) == 0 {
		b.WriteString("\nNo actions required, cluster is healthy.\n")
		return b.String()
	}

	for i, rec := range records {
		b.WriteString(fmt.Sprintf("\nACTION_%d:\n", i+1))
		b.WriteString(fmt.Sprintf("  action: %s\n", rec.Action))
		if rec.Namespace != "" {
			b.WriteString(fmt.Sprintf("  namespace: %s\n", rec.Namespace))
		}
		b.WriteString(fmt.Sprintf("  reasoning: %s\n", rec.Reasoning))
		b.WriteString(fmt.Sprintf("  priority: %s\n", rec.Priority))
	}
	return b.String()
}
