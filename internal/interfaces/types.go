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

// Package interfaces holds the shared types exchanged between the analysis,
// planning, safety, and execution stages of the remediation pipeline.
package interfaces

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ActionType is the closed enumeration of remediation actions the agent can
// propose and execute. Unknown action names are rejected at construction time
// via ParseActionType rather than failing on dispatch.
type ActionType string

const (
	// ActionRestartPod deletes a pod so its controller recreates it.
	ActionRestartPod ActionType = "restart_pod"
	// ActionDeletePod deletes a pod without expecting recreation.
	ActionDeletePod ActionType = "delete_pod"
	// ActionRestartDeployment triggers a rolling restart of a deployment.
	ActionRestartDeployment ActionType = "restart_deployment"
	// ActionScaleDeployment scales a deployment to an absolute replica count.
	ActionScaleDeployment ActionType = "scale_deployment"
	// ActionScaleDeploymentByPercentage scales a deployment relative to its
	// current replica count (e.g. 120 means 1.2x).
	ActionScaleDeploymentByPercentage ActionType = "scale_deployment_by_percentage"
	// ActionBulkRestartPods restarts a list of pods in one operation.
	ActionBulkRestartPods ActionType = "bulk_restart_pods"
	// ActionBulkDeletePods deletes a list of pods in one operation.
	ActionBulkDeletePods ActionType = "bulk_delete_pods"
	// ActionBulkScaleDeployments scales a list of deployments in one operation.
	ActionBulkScaleDeployments ActionType = "bulk_scale_deployments"
	// ActionUpdatePodResources patches container resource requests/limits on a
	// deployment's pod template.
	ActionUpdatePodResources ActionType = "update_pod_resources"
	// ActionApplyAutoscaler creates or updates a HorizontalPodAutoscaler for a
	// deployment.
	ActionApplyAutoscaler ActionType = "apply_autoscaler"
)

// AllActionTypes lists every supported action type in a fixed order.
var AllActionTypes = []ActionType{
	ActionRestartPod,
	ActionDeletePod,
	ActionRestartDeployment,
	ActionScaleDeployment,
	ActionScaleDeploymentByPercentage,
	ActionBulkRestartPods,
	ActionBulkDeletePods,
	ActionBulkScaleDeployments,
	ActionUpdatePodResources,
	ActionApplyAutoscaler,
}

// ParseActionType converts an action name into a typed ActionType.
// Names are matched case-insensitively with hyphens normalized to
// underscores, so "restart-pod" and "restart_pod" are equivalent.
func ParseActionType(name string) (ActionType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, at := range AllActionTypes {
		if string(at) == normalized {
			return at, nil
		}
	}
	return "", fmt.Errorf("unsupported action type: %q", name)
}

// IsDeletion reports whether the action removes resources. Deletion actions
// are subject to the stricter hourly deletion cap in the safety gate.
func (a ActionType) IsDeletion() bool {
	return strings.Contains(string(a), "delete")
}

// IsBulk reports whether the action operates on a list of targets.
func (a ActionType) IsBulk() bool {
	return strings.Contains(string(a), "bulk")
}

// IsScaling reports whether the action changes replica counts.
func (a ActionType) IsScaling() bool {
	return strings.Contains(string(a), "scale")
}

// Parameter keys used in ActionRecord.Parameters. Bulk target lists are
// stored comma-separated under ParamPodNames / ParamDeploymentNames.
const (
	ParamPodName         = "pod_name"
	ParamDeployment      = "deployment"
	ParamReplicas        = "replicas"
	ParamPercentage      = "percentage"
	ParamPodNames        = "pod_names"
	ParamDeploymentNames = "deployment_names"
	ParamContainer       = "container"
	ParamCPU             = "cpu"
	ParamMemory          = "memory"
	ParamMinReplicas     = "min_replicas"
	ParamMaxReplicas     = "max_replicas"
	ParamTargetCPU       = "target_cpu_percent"
)

// ActionRecord is a proposed remediation operation. Records are created by
// the planner, validated by the safety gate, then executed exactly once.
type ActionRecord struct {
	// Action identifies the operation to perform.
	Action ActionType `json:"action"`

	// Namespace the action operates in.
	Namespace string `json:"namespace"`

	// Parameters carries the operation arguments keyed by the Param*
	// constants. Numeric values are stored as decimal strings.
	Parameters map[string]string `json:"parameters"`

	// Reasoning explains why the action was proposed.
	Reasoning string `json:"reasoning"`

	// Priority is the urgency label derived from issue severity
	// (critical, high, medium, low).
	Priority string `json:"priority"`

	// Confidence is a heuristic weight in [0,1], not a calibrated
	// probability.
	Confidence float64 `json:"confidence"`

	// Source records which planner stage produced the record
	// (rules, heuristics, explainer, keyword).
	Source string `json:"source"`
}

// ResourceName returns the pod or deployment name the record targets, used
// by the protected-resource check in the safety gate.
func (r ActionRecord) ResourceName() string {
	if name := r.Parameters[ParamPodName]; name != "" {
		return name
	}
	return r.Parameters[ParamDeployment]
}

// TargetList returns the bulk target list for bulk actions. The list is
// stored comma-separated; empty segments are dropped.
func (r ActionRecord) TargetList() []string {
	raw := r.Parameters[ParamPodNames]
	if raw == "" {
		raw = r.Parameters[ParamDeploymentNames]
	}
	if raw == "" {
		return nil
	}
	var targets []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}
	return targets
}

// ParameterString renders the parameters as a stable "k=v" list for log
// messages and audit entries.
func (r ActionRecord) ParameterString() string {
	if len(r.Parameters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Parameters))
	for k := range r.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, r.Parameters[k])
	}
	return strings.Join(parts, ",")
}

// SafetyDecision is the outcome of validating a single ActionRecord against
// the safety policy. Producing a decision has no side effects.
type SafetyDecision struct {
	// Allowed is true when every policy check passed.
	Allowed bool `json:"allowed"`

	// Reason is a human-readable explanation; for denials it names the
	// first failing check.
	Reason string `json:"reason"`
}

// ExecutionStatus is the terminal state of an action execution attempt.
type ExecutionStatus string

const (
	// StatusSimulated means dry-run mode resolved the action without
	// invoking any cluster primitive.
	StatusSimulated ExecutionStatus = "simulated"
	// StatusSuccess means the cluster primitive completed.
	StatusSuccess ExecutionStatus = "success"
	// StatusFailed means the cluster primitive returned an error.
	StatusFailed ExecutionStatus = "failed"
	// StatusBlocked means the safety gate denied the action.
	StatusBlocked ExecutionStatus = "blocked"
)

// ExecutionResult is the terminal outcome of one ActionRecord.
type ExecutionResult struct {
	Action     ActionType        `json:"action"`
	Parameters map[string]string `json:"parameters"`
	Status     ExecutionStatus   `json:"status"`
	Message    string            `json:"message"`
	Timestamp  time.Time         `json:"timestamp"`
}
