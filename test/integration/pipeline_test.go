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

package integration

import (
	"context"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-cluster-remediator/internal/agent"
	"github.com/llm-d/llm-d-cluster-remediator/internal/analyzer"
	"github.com/llm-d/llm-d-cluster-remediator/internal/audit"
	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/executor"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
	"github.com/llm-d/llm-d-cluster-remediator/internal/planner"
	"github.com/llm-d/llm-d-cluster-remediator/internal/safety"
)

func crashingPod(name, namespace string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.PodSpec{NodeName: "node-1"},
		Status: corev1.PodStatus{
			Phase: corev1.PodPending,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", Ready: false, RestartCount: 2},
			},
		},
	}
}

func zeroedDeployment(name, namespace string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       appsv1.DeploymentSpec{Replicas: ptr.To(int32(0))},
	}
}

// buildAgent wires the full pipeline the way cmd/remediator does, but
// against a fake clientset and a temp-dir audit file.
func buildAgent(client kubernetes.Interface, auditPath string, dryRun bool) (*agent.Agent, *audit.Log) {
	logger := zap.NewNop()
	log := audit.NewLog(audit.NewFileStore(auditPath), logger)
	gate := safety.NewGate(safety.DefaultPolicy(), log, logger)
	exec := executor.New(gate, cluster.NewKubeActions(client), log, logger, dryRun)
	provider := cluster.NewKubeSnapshotProvider(client)
	return agent.New(provider, planner.NewRulePlanner(), nil, gate, exec, logger, dryRun), log
}

// resultFor finds the result for the given action whose parameters mention
// target. Results carry no namespace, so pod and deployment names stand in.
func resultFor(results []interfaces.ExecutionResult, action interfaces.ActionType, target string) *interfaces.ExecutionResult {
	for i, r := range results {
		if r.Action != action {
			continue
		}
		for _, v := range r.Parameters {
			if strings.Contains(v, target) {
				return &results[i]
			}
		}
	}
	return nil
}

var _ = Describe("Remediation pipeline", func() {
	var (
		ctx       context.Context
		client    *fake.Clientset
		auditPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		auditPath = filepath.Join(GinkgoT().TempDir(), "audit.json")
		client = fake.NewSimpleClientset(
			crashingPod("cart-1", "prod"),
			crashingPod("cart-2", "prod"),
			crashingPod("cart-3", "prod"),
			crashingPod("dns-1", "kube-system"),
			crashingPod("dns-2", "kube-system"),
			crashingPod("dns-3", "kube-system"),
			zeroedDeployment("checkout", "prod"),
		)
	})

	Context("in execute mode", func() {
		It("remediates the cluster while the safety gate holds the line", func() {
			a, _ := buildAgent(client, auditPath, false)

			result := a.AnalyzeAndFix(ctx, "")
			Expect(result.Err).To(BeEmpty())
			Expect(result.Health.Grade).To(Equal("F"))

			issueTypes := make([]string, 0, len(result.Issues))
			for _, issue := range result.Issues {
				issueTypes = append(issueTypes, string(issue.Type))
			}
			Expect(issueTypes).To(ContainElements("cascade_failure", "service_unavailable"))

			Expect(result.Results).To(HaveLen(3))

			restartProd := resultFor(result.Results, interfaces.ActionBulkRestartPods, "cart-")
			Expect(restartProd).NotTo(BeNil())
			Expect(restartProd.Status).To(Equal(interfaces.StatusSuccess))

			restartSystem := resultFor(result.Results, interfaces.ActionBulkRestartPods, "dns-")
			Expect(restartSystem).NotTo(BeNil())
			Expect(restartSystem.Status).To(Equal(interfaces.StatusBlocked))
			Expect(restartSystem.Message).To(ContainSubstring("protected namespace"))

			scale := resultFor(result.Results, interfaces.ActionScaleDeployment, "checkout")
			Expect(scale).NotTo(BeNil())
			Expect(scale.Status).To(Equal(interfaces.StatusSuccess))

			prodPods, err := client.CoreV1().Pods("prod").List(ctx, metav1.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(prodPods.Items).To(BeEmpty(), "cascade remediation restarts every crashing pod")

			systemPods, err := client.CoreV1().Pods("kube-system").List(ctx, metav1.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(systemPods.Items).To(HaveLen(3), "protected namespace is never touched")

			checkout, err := client.AppsV1().Deployments("prod").Get(ctx, "checkout", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(*checkout.Spec.Replicas).To(Equal(int32(1)))
		})

		It("persists one audit entry per terminal outcome", func() {
			a, log := buildAgent(client, auditPath, false)

			result := a.AnalyzeAndFix(ctx, "")
			Expect(log.Size()).To(Equal(len(result.Results)))

			entries, err := audit.NewFileStore(auditPath).Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(len(result.Results)))

			statuses := make([]string, 0, len(entries))
			for _, e := range entries {
				statuses = append(statuses, e.Status)
			}
			Expect(statuses).To(ContainElement("blocked"))
		})

		It("feeds every outcome back into the gate's rate budget", func() {
			a, _ := buildAgent(client, auditPath, false)

			result := a.AnalyzeAndFix(ctx, "")
			status := a.SafetyStatus()
			Expect(status.ActionsLastHour).To(Equal(len(result.Results)))
			Expect(status.ActionsLimit).To(Equal(safety.DefaultMaxActionsPerHour))
		})

		It("blocks remediation once the hourly action budget is spent", func() {
			a, log := buildAgent(client, auditPath, false)

			// Recreate the crashing pods after each cycle so the cascade
			// keeps firing. Blocked outcomes are audited too, so the budget
			// drains even after the gate starts refusing.
			for log.Size() < safety.DefaultMaxActionsPerHour {
				a.AnalyzeAndFix(ctx, "")
				for _, name := range []string{"cart-1", "cart-2", "cart-3"} {
					_, _ = client.CoreV1().Pods("prod").Create(ctx, crashingPod(name, "prod"), metav1.CreateOptions{})
				}
			}

			result := a.AnalyzeAndFix(ctx, "")
			restartProd := resultFor(result.Results, interfaces.ActionBulkRestartPods, "cart-")
			Expect(restartProd).NotTo(BeNil())
			Expect(restartProd.Status).To(Equal(interfaces.StatusBlocked))
			Expect(restartProd.Message).To(ContainSubstring("rate limit exceeded"))
		})
	})

	Context("in dry-run mode", func() {
		It("simulates every allowed action and mutates nothing", func() {
			a, _ := buildAgent(client, auditPath, true)

			result := a.AnalyzeAndFix(ctx, "")
			Expect(result.Results).To(HaveLen(3))

			restartProd := resultFor(result.Results, interfaces.ActionBulkRestartPods, "cart-")
			Expect(restartProd).NotTo(BeNil())
			Expect(restartProd.Status).To(Equal(interfaces.StatusSimulated))

			restartSystem := resultFor(result.Results, interfaces.ActionBulkRestartPods, "dns-")
			Expect(restartSystem).NotTo(BeNil())
			Expect(restartSystem.Status).To(Equal(interfaces.StatusBlocked),
				"the gate blocks protected targets even in dry-run")

			prodPods, err := client.CoreV1().Pods("prod").List(ctx, metav1.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(prodPods.Items).To(HaveLen(3))
		})
	})

	Context("with a healthy cluster", func() {
		It("plans nothing and grades the cluster A", func() {
			healthy := fake.NewSimpleClientset(
				&corev1.Pod{
					ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "prod"},
					Status: corev1.PodStatus{
						Phase: corev1.PodRunning,
						ContainerStatuses: []corev1.ContainerStatus{
							{Name: "app", Ready: true},
						},
					},
				},
			)
			a, log := buildAgent(healthy, auditPath, false)

			result := a.AnalyzeAndFix(ctx, "")
			Expect(result.Health.Grade).To(Equal("A"))
			Expect(result.Issues).To(BeEmpty())
			Expect(result.Results).To(BeEmpty())
			Expect(log.Size()).To(BeZero())
		})
	})
})

var _ = Describe("Health scoring on live snapshots", func() {
	It("matches the analyzer's direct score", func() {
		client := fake.NewSimpleClientset(crashingPod("cart-1", "prod"))
		provider := cluster.NewKubeSnapshotProvider(client)

		snapshot, err := provider.GetSnapshot(context.Background())
		Expect(err).NotTo(HaveOccurred())

		score := analyzer.ScoreHealth(snapshot)
		Expect(score.PodHealth).To(BeZero())
		Expect(score.RestartHealth).To(Equal(float64(96)))
	})
})
