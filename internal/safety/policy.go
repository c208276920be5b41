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

// Package safety enforces the guardrails every remediation action must
// pass before it reaches the cluster: protected targets, rolling-window
// rate limits, and blast-radius caps.
package safety

// Default policy limits.
const (
	DefaultMaxActionsPerHour   = 20
	DefaultMaxDeletionsPerHour = 5
	DefaultMaxBulkTargets      = 10
	DefaultMaxReplicas         = 20
	DefaultMaxScalePercentage  = 300
)

// DefaultProtectedNamespaces are never modified regardless of action type.
func DefaultProtectedNamespaces() []string {
	return []string{"kube-system", "kube-public", "istio-system"}
}

// DefaultProtectedResources block any action whose target name contains
// one of these substrings.
func DefaultProtectedResources() []string {
	return []string{"coredns", "kube-proxy", "etcd"}
}

// Policy holds the limits the gate enforces. All fields are read-only
// once the gate is constructed.
type Policy struct {
	ProtectedNamespaces []string `yaml:"protectedNamespaces" json:"protected_namespaces"`
	ProtectedResources  []string `yaml:"protectedResources" json:"protected_resources"`
	MaxActionsPerHour   int      `yaml:"maxActionsPerHour" json:"max_actions_per_hour"`
	MaxDeletionsPerHour int      `yaml:"maxDeletionsPerHour" json:"max_deletions_per_hour"`
	MaxBulkTargets      int      `yaml:"maxBulkTargets" json:"max_bulk_targets"`
	MaxReplicas         int      `yaml:"maxReplicas" json:"max_replicas"`
	MaxScalePercentage  int      `yaml:"maxScalePercentage" json:"max_scale_percentage"`

	// FailOpen controls behavior when the audit history could not be
	// loaded. When false the gate blocks every action until the history
	// is readable again, since the rate-limit counts cannot be trusted.
	FailOpen bool `yaml:"failOpen" json:"fail_open"`
}

// DefaultPolicy returns the policy applied when no overrides are
// configured.
func DefaultPolicy() Policy {
	return Policy{
		ProtectedNamespaces: DefaultProtectedNamespaces(),
		ProtectedResources:  DefaultProtectedResources(),
		MaxActionsPerHour:   DefaultMaxActionsPerHour,
		MaxDeletionsPerHour: DefaultMaxDeletionsPerHour,
		MaxBulkTargets:      DefaultMaxBulkTargets,
		MaxReplicas:         DefaultMaxReplicas,
		MaxScalePercentage:  DefaultMaxScalePercentage,
		FailOpen:            true,
	}
}
