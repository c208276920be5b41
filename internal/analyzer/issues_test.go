package analyzer

import (
	"testing"

	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

func failingPod(name, namespace string) cluster.PodRecord {
	return cluster.PodRecord{Name: name, Namespace: namespace, Phase: "CrashLoopBackOff"}
}

func TestDetectIssuesHealthyCluster(t *testing.T) {
	snap := snapshot(
		[]cluster.PodRecord{runningPod("a", "default")},
		[]cluster.DeploymentRecord{{Name: "api", Namespace: "default", DesiredReplicas: 2, ReadyReplicas: 2}},
	)
	if issues := DetectIssues(snap); len(issues) != 0 {
		t.Errorf("expected no issues, got %d: %+v", len(issues), issues)
	}
}

func TestDetectCascadeFailure(t *testing.T) {
	snap := snapshot([]cluster.PodRecord{
		failingPod("a", "prod"),
		failingPod("b", "prod"),
		failingPod("c", "prod"),
		failingPod("d", "staging"), // below threshold, must not fire
		failingPod("e", "staging"),
	}, nil)

	issues := DetectIssues(snap)
	cascades := filterIssues(issues, IssueCascadeFailure)
	if len(cascades) != 1 {
		t.Fatalf("expected 1 cascade failure, got %d", len(cascades))
	}
	got := cascades[0]
	if got.Namespace != "prod" || got.AffectedResources != 3 {
		t.Errorf("unexpected cascade issue: %+v", got)
	}
	if got.Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %s", got.Severity)
	}
	if got.RecommendedAction != interfaces.ActionBulkRestartPods {
		t.Errorf("expected bulk_restart_pods, got %s", got.RecommendedAction)
	}
}

func TestDetectServiceUnavailable(t *testing.T) {
	snap := snapshot(nil, []cluster.DeploymentRecord{
		{Name: "down", Namespace: "prod", DesiredReplicas: 0},
		{Name: "up", Namespace: "prod", DesiredReplicas: 2, ReadyReplicas: 2},
	})

	issues := filterIssues(DetectIssues(snap), IssueServiceUnavailable)
	if len(issues) != 1 {
		t.Fatalf("expected 1 service_unavailable issue, got %d", len(issues))
	}
	if issues[0].Resource != "down" {
		t.Errorf("expected issue on deployment down, got %s", issues[0].Resource)
	}
	if issues[0].RecommendedAction != interfaces.ActionScaleDeployment {
		t.Errorf("expected scale_deployment, got %s", issues[0].RecommendedAction)
	}
}

func TestDetectRestartSpiral(t *testing.T) {
	spiral := cluster.PodRecord{Name: "spin", Namespace: "prod", Phase: "CrashLoopBackOff", Restarts: 11}
	boundary := cluster.PodRecord{Name: "edge", Namespace: "prod", Phase: "CrashLoopBackOff", Restarts: 10}
	busyButRunning := cluster.PodRecord{Name: "busy", Namespace: "prod", Phase: cluster.PhaseRunning, Ready: true, Restarts: 50}
	snap := snapshot([]cluster.PodRecord{spiral, boundary, busyButRunning}, nil)

	issues := filterIssues(DetectIssues(snap), IssueRestartSpiral)
	if len(issues) != 1 {
		t.Fatalf("expected 1 restart spiral, got %d", len(issues))
	}
	if issues[0].Resource != "spin" {
		t.Errorf("expected pod spin, got %s", issues[0].Resource)
	}
	if issues[0].Severity != SeverityHigh {
		t.Errorf("expected high severity, got %s", issues[0].Severity)
	}
}

func TestDetectScalingInefficiencyAggregates(t *testing.T) {
	snap := snapshot(nil, []cluster.DeploymentRecord{
		{Name: "a", Namespace: "prod", DesiredReplicas: 10, ReadyReplicas: 4},
		{Name: "b", Namespace: "prod", DesiredReplicas: 4, ReadyReplicas: 1},
		{Name: "c", Namespace: "prod", DesiredReplicas: 4, ReadyReplicas: 2}, // exactly half, must not fire
	})

	issues := filterIssues(DetectIssues(snap), IssueScalingInefficiency)
	if len(issues) != 1 {
		t.Fatalf("expected a single aggregated issue, got %d", len(issues))
	}
	if issues[0].AffectedResources != 2 {
		t.Errorf("expected 2 affected deployments, got %d", issues[0].AffectedResources)
	}
	if issues[0].Severity != SeverityMedium {
		t.Errorf("expected medium severity, got %s", issues[0].Severity)
	}
}

func TestDetectIssuesSortedBySeverity(t *testing.T) {
	snap := snapshot(
		[]cluster.PodRecord{
			{Name: "spin", Namespace: "prod", Phase: "CrashLoopBackOff", Restarts: 20},
		},
		[]cluster.DeploymentRecord{
			{Name: "slow", Namespace: "prod", DesiredReplicas: 10, ReadyReplicas: 1},
			{Name: "down", Namespace: "prod", DesiredReplicas: 0},
		},
	)

	issues := DetectIssues(snap)
	if len(issues) < 3 {
		t.Fatalf("expected at least 3 issues, got %d", len(issues))
	}
	for i := 1; i < len(issues); i++ {
		if issues[i-1].Severity.Rank() > issues[i].Severity.Rank() {
			t.Errorf("issues out of order at %d: %s after %s", i, issues[i].Severity, issues[i-1].Severity)
		}
	}
	if issues[0].Severity != SeverityCritical {
		t.Errorf("expected critical issue first, got %s", issues[0].Severity)
	}
}

func filterIssues(issues []Issue, issueType string) []Issue {
	var out []Issue
	for _, issue := range issues {
		if issue.Type == issueType {
			out = append(out, issue)
		}
	}
	return out
}
