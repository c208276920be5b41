package safety

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/audit"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// fakeRecorder implements audit.Recorder with fixed counts.
type fakeRecorder struct {
	entries    []audit.Entry
	loadFailed bool
	appended   []audit.Entry
}

func (f *fakeRecorder) Append(entry audit.Entry) { f.appended = append(f.appended, entry) }

func (f *fakeRecorder) CountSince(cutoff time.Time) int {
	count := 0
	for _, e := range f.entries {
		if e.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

func (f *fakeRecorder) CountDeletionsSince(cutoff time.Time) int {
	count := 0
	for _, e := range f.entries {
		if e.Timestamp.After(cutoff) && (e.Action == "delete_pod" || e.Action == "bulk_delete_pods") {
			count++
		}
	}
	return count
}

func (f *fakeRecorder) Size() int        { return len(f.entries) }
func (f *fakeRecorder) LoadFailed() bool { return f.loadFailed }

func recentEntries(action string, n int) []audit.Entry {
	entries := make([]audit.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, audit.Entry{
			Action:    action,
			Status:    "success",
			Timestamp: time.Now().Add(-time.Minute),
		})
	}
	return entries
}

var _ = Describe("Gate", func() {
	var (
		recorder *fakeRecorder
		gate     *Gate
	)

	BeforeEach(func() {
		recorder = &fakeRecorder{}
		gate = NewGate(DefaultPolicy(), recorder, zap.NewNop())
	})

	restartAction := func(namespace, pod string) interfaces.ActionRecord {
		return interfaces.ActionRecord{
			Action:     interfaces.ActionRestartPod,
			Namespace:  namespace,
			Parameters: map[string]string{interfaces.ParamPodName: pod},
		}
	}

	Context("protected targets", func() {
		It("blocks actions in protected namespaces", func() {
			decision := gate.Validate(restartAction("kube-system", "web-1"))
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("protected namespace: kube-system"))
		})

		It("blocks resources whose name contains a protected substring", func() {
			decision := gate.Validate(restartAction("default", "coredns-5d78c9869d-x2v4k"))
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("protected resource"))
		})

		It("matches protected substrings case-insensitively", func() {
			decision := gate.Validate(restartAction("default", "CoreDNS-replica"))
			Expect(decision.Allowed).To(BeFalse())
		})

		It("matches mixed-case configured entries against lowercase names", func() {
			policy := DefaultPolicy()
			policy.ProtectedResources = []string{"CoreDNS"}
			gate = NewGate(policy, recorder, zap.NewNop())

			decision := gate.Validate(restartAction("default", "coredns-5d78c9869d-x2v4k"))
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("protected resource"))
		})

		It("allows ordinary workloads", func() {
			decision := gate.Validate(restartAction("default", "web-1"))
			Expect(decision.Allowed).To(BeTrue())
		})
	})

	Context("rate limits", func() {
		It("blocks when the hourly action limit is reached", func() {
			recorder.entries = recentEntries("restart_pod", DefaultMaxActionsPerHour)
			decision := gate.Validate(restartAction("default", "web-1"))
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("rate limit exceeded: 20/20"))
		})

		It("allows the last action under the hourly limit", func() {
			recorder.entries = recentEntries("restart_pod", DefaultMaxActionsPerHour-1)
			decision := gate.Validate(restartAction("default", "web-1"))
			Expect(decision.Allowed).To(BeTrue())
		})

		It("allows the last deletion under the hourly deletion limit", func() {
			recorder.entries = recentEntries("delete_pod", DefaultMaxDeletionsPerHour-1)
			decision := gate.Validate(interfaces.ActionRecord{
				Action:     interfaces.ActionDeletePod,
				Namespace:  "default",
				Parameters: map[string]string{interfaces.ParamPodName: "web-1"},
			})
			Expect(decision.Allowed).To(BeTrue())
		})

		It("blocks deletions when the hourly deletion limit is reached", func() {
			recorder.entries = recentEntries("delete_pod", DefaultMaxDeletionsPerHour)
			decision := gate.Validate(interfaces.ActionRecord{
				Action:     interfaces.ActionDeletePod,
				Namespace:  "default",
				Parameters: map[string]string{interfaces.ParamPodName: "web-1"},
			})
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("deletion limit exceeded: 5/5"))
		})

		It("does not apply the deletion limit to non-deletions", func() {
			recorder.entries = recentEntries("delete_pod", DefaultMaxDeletionsPerHour)
			decision := gate.Validate(restartAction("default", "web-1"))
			Expect(decision.Allowed).To(BeTrue())
		})

		It("does not consume budget when validating", func() {
			gate.Validate(restartAction("default", "web-1"))
			Expect(recorder.appended).To(BeEmpty())
		})
	})

	Context("size caps", func() {
		It("blocks bulk operations over the target cap", func() {
			decision := gate.Validate(interfaces.ActionRecord{
				Action:    interfaces.ActionBulkRestartPods,
				Namespace: "default",
				Parameters: map[string]string{
					interfaces.ParamPodNames: "p1,p2,p3,p4,p5,p6,p7,p8,p9,p10,p11",
				},
			})
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("bulk operation too large: 11 resources"))
		})

		It("allows bulk operations at the cap", func() {
			decision := gate.Validate(interfaces.ActionRecord{
				Action:    interfaces.ActionBulkRestartPods,
				Namespace: "default",
				Parameters: map[string]string{
					interfaces.ParamPodNames: "p1,p2,p3,p4,p5,p6,p7,p8,p9,p10",
				},
			})
			Expect(decision.Allowed).To(BeTrue())
		})

		It("blocks scaling beyond the replica cap", func() {
			decision := gate.Validate(interfaces.ActionRecord{
				Action:    interfaces.ActionScaleDeployment,
				Namespace: "default",
				Parameters: map[string]string{
					interfaces.ParamDeployment: "api",
					interfaces.ParamReplicas:   "21",
				},
			})
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("scale target too high: 21 replicas"))
		})

		It("blocks scaling beyond the percentage cap", func() {
			decision := gate.Validate(interfaces.ActionRecord{
				Action:    interfaces.ActionScaleDeploymentByPercentage,
				Namespace: "default",
				Parameters: map[string]string{
					interfaces.ParamDeployment: "api",
					interfaces.ParamPercentage: "301",
				},
			})
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("scale percentage too high: 301%"))
		})

		It("treats malformed numeric parameters as zero", func() {
			decision := gate.Validate(interfaces.ActionRecord{
				Action:    interfaces.ActionScaleDeployment,
				Namespace: "default",
				Parameters: map[string]string{
					interfaces.ParamDeployment: "api",
					interfaces.ParamReplicas:   "lots",
				},
			})
			Expect(decision.Allowed).To(BeTrue())
		})
	})

	Context("audit history availability", func() {
		It("fails open by default when history could not be loaded", func() {
			recorder.loadFailed = true
			decision := gate.Validate(restartAction("default", "web-1"))
			Expect(decision.Allowed).To(BeTrue())
		})

		It("fails closed when configured", func() {
			recorder.loadFailed = true
			policy := DefaultPolicy()
			policy.FailOpen = false
			gate = NewGate(policy, recorder, zap.NewNop())

			decision := gate.Validate(restartAction("default", "web-1"))
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(ContainSubstring("audit history unavailable"))
		})
	})

	Context("check ordering", func() {
		It("reports the protected namespace before the rate limit", func() {
			recorder.entries = recentEntries("restart_pod", DefaultMaxActionsPerHour)
			decision := gate.Validate(restartAction("kube-system", "web-1"))
			Expect(decision.Reason).To(ContainSubstring("protected namespace"))
		})
	})

	Describe("SafetyStatus", func() {
		It("reports current consumption against limits", func() {
			recorder.entries = append(recentEntries("restart_pod", 3), recentEntries("delete_pod", 2)...)
			status := gate.SafetyStatus()
			Expect(status.ActionsLastHour).To(Equal(5))
			Expect(status.ActionsLimit).To(Equal(DefaultMaxActionsPerHour))
			Expect(status.DeletionsLastHour).To(Equal(2))
			Expect(status.DeletionsLimit).To(Equal(DefaultMaxDeletionsPerHour))
			Expect(status.ProtectedNamespaces).To(ContainElement("kube-system"))
			Expect(status.TotalLoggedActions).To(Equal(5))
		})
	})
})
