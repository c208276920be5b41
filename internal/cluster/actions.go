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

package cluster

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

const (
	restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

	defaultHPAMinReplicas  = 1
	defaultHPAMaxReplicas  = 10
	defaultHPATargetCPU    = 80
	defaultScaledReplicas  = 1
)

// KubeActions dispatches remediation actions against the Kubernetes API.
// It implements the executor's Registry with an exhaustive match over the
// closed action enumeration.
type KubeActions struct {
	client kubernetes.Interface
}

// NewKubeActions creates a Kubernetes-backed action registry.
func NewKubeActions(client kubernetes.Interface) *KubeActions {
	return &KubeActions{client: client}
}

// Dispatch executes the record's action and returns a human-readable result
// message. Parameter conversion failures and API errors are returned as
// errors; the executor converts them into failed outcomes.
func (k *KubeActions) Dispatch(ctx context.Context, rec interfaces.ActionRecord) (string, error) {
	switch rec.Action {
	case interfaces.ActionRestartPod:
		return k.restartPod(ctx, rec.Namespace, rec.Parameters[interfaces.ParamPodName])
	case interfaces.ActionDeletePod:
		return k.deletePod(ctx, rec.Namespace, rec.Parameters[interfaces.ParamPodName])
	case interfaces.ActionRestartDeployment:
		return k.restartDeployment(ctx, rec.Namespace, rec.Parameters[interfaces.ParamDeployment])
	case interfaces.ActionScaleDeployment:
		replicas, err := intParam(rec.Parameters, interfaces.ParamReplicas, defaultScaledReplicas)
		if err != nil {
			return "", err
		}
		return k.scaleDeployment(ctx, rec.Namespace, rec.Parameters[interfaces.ParamDeployment], int32(replicas))
	case interfaces.ActionScaleDeploymentByPercentage:
		percentage, err := intParam(rec.Parameters, interfaces.ParamPercentage, 100)
		if err != nil {
			return "", err
		}
		return k.scaleDeploymentByPercentage(ctx, rec.Namespace, rec.Parameters[interfaces.ParamDeployment], percentage)
	case interfaces.ActionBulkRestartPods:
		return k.bulkPods(ctx, rec.Namespace, rec.TargetList(), "restarted", k.restartPod)
	case interfaces.ActionBulkDeletePods:
		return k.bulkPods(ctx, rec.Namespace, rec.TargetList(), "deleted", k.deletePod)
	case interfaces.ActionBulkScaleDeployments:
		replicas, err := intParam(rec.Parameters, interfaces.ParamReplicas, defaultScaledReplicas)
		if err != nil {
			return "", err
		}
		return k.bulkScaleDeployments(ctx, rec.Namespace, rec.TargetList(), int32(replicas))
	case interfaces.ActionUpdatePodResources:
		return k.updatePodResources(ctx, rec.Namespace, rec.Parameters)
	case interfaces.ActionApplyAutoscaler:
		return k.applyAutoscaler(ctx, rec.Namespace, rec.Parameters)
	default:
		return "", fmt.Errorf("unsupported action type: %q", rec.Action)
	}
}

// restartPod deletes the pod and relies on its controller to recreate it.
func (k *KubeActions) restartPod(ctx context.Context, namespace, podName string) (string, error) {
	if podName == "" {
		return "", fmt.Errorf("restart_pod requires %s", interfaces.ParamPodName)
	}
	if err := k.client.CoreV1().Pods(namespace).Delete(ctx, podName, metav1.DeleteOptions{}); err != nil {
		return "", fmt.Errorf("restarting pod %s/%s: %w", namespace, podName, err)
	}
	return fmt.Sprintf("restart triggered for %s/%s", namespace, podName), nil
}

func (k *KubeActions) deletePod(ctx context.Context, namespace, podName string) (string, error) {
	if podName == "" {
		return "", fmt.Errorf("delete_pod requires %s", interfaces.ParamPodName)
	}
	if err := k.client.CoreV1().Pods(namespace).Delete(ctx, podName, metav1.DeleteOptions{}); err != nil {
		return "", fmt.Errorf("deleting pod %s/%s: %w", namespace, podName, err)
	}
	return fmt.Sprintf("deleted %s/%s", namespace, podName), nil
}

// restartDeployment patches the pod template's restartedAt annotation,
// triggering a rolling restart the same way kubectl rollout restart does.
func (k *KubeActions) restartDeployment(ctx context.Context, namespace, deployment string) (string, error) {
	if deployment == "" {
		return "", fmt.Errorf("restart_deployment requires %s", interfaces.ParamDeployment)
	}
	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{%q:%q}}}}}`,
		restartedAtAnnotation, time.Now().UTC().Format(time.RFC3339),
	)
	_, err := k.client.AppsV1().Deployments(namespace).Patch(
		ctx, deployment, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return "", fmt.Errorf("restarting deployment %s/%s: %w", namespace, deployment, err)
	}
	return fmt.Sprintf("rolling restart triggered for %s/%s", namespace, deployment), nil
}

func (k *KubeActions) scaleDeployment(ctx context.Context, namespace, deployment string, replicas int32) (string, error) {
	if deployment == "" {
		return "", fmt.Errorf("scale_deployment requires %s", interfaces.ParamDeployment)
	}
	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas)
	_, err := k.client.AppsV1().Deployments(namespace).Patch(
		ctx, deployment, types.MergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return "", fmt.Errorf("scaling deployment %s/%s: %w", namespace, deployment, err)
	}
	return fmt.Sprintf("scaled %s/%s to %d replicas", namespace, deployment, replicas), nil
}

// scaleDeploymentByPercentage reads the current replica count and scales to
// the given percentage of it, rounding to nearest and never below one.
func (k *KubeActions) scaleDeploymentByPercentage(ctx context.Context, namespace, deployment string, percentage int) (string, error) {
	if deployment == "" {
		return "", fmt.Errorf("scale_deployment_by_percentage requires %s", interfaces.ParamDeployment)
	}
	dep, err := k.client.AppsV1().Deployments(namespace).Get(ctx, deployment, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("reading deployment %s/%s: %w", namespace, deployment, err)
	}
	current := int32(1)
	if dep.Spec.Replicas != nil {
		current = *dep.Spec.Replicas
	}
	target := int32(math.Round(float64(current) * float64(percentage) / 100.0))
	if target < 1 {
		target = 1
	}
	msg, err := k.scaleDeployment(ctx, namespace, deployment, target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%d%% of %d)", msg, percentage, current), nil
}

func (k *KubeActions) bulkPods(
	ctx context.Context,
	namespace string,
	podNames []string,
	verb string,
	op func(context.Context, string, string) (string, error),
) (string, error) {
	if len(podNames) == 0 {
		return "", fmt.Errorf("bulk pod action requires %s", interfaces.ParamPodNames)
	}
	for _, name := range podNames {
		if _, err := op(ctx, namespace, name); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s %d pods in %s", verb, len(podNames), namespace), nil
}

func (k *KubeActions) bulkScaleDeployments(ctx context.Context, namespace string, deployments []string, replicas int32) (string, error) {
	if len(deployments) == 0 {
		return "", fmt.Errorf("bulk_scale_deployments requires %s", interfaces.ParamDeploymentNames)
	}
	for _, name := range deployments {
		if _, err := k.scaleDeployment(ctx, namespace, name, replicas); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("scaled %d deployments in %s to %d replicas", len(deployments), namespace, replicas), nil
}

// updatePodResources patches container resource requests on the deployment's
// pod template. The container defaults to the deployment name, matching the
// common single-container convention.
func (k *KubeActions) updatePodResources(ctx context.Context, namespace string, params map[string]string) (string, error) {
	deployment := params[interfaces.ParamDeployment]
	if deployment == "" {
		return "", fmt.Errorf("update_pod_resources requires %s", interfaces.ParamDeployment)
	}
	container := params[interfaces.ParamContainer]
	if container == "" {
		container = deployment
	}
	cpu := params[interfaces.ParamCPU]
	memory := params[interfaces.ParamMemory]
	if cpu == "" && memory == "" {
		return "", fmt.Errorf("update_pod_resources requires %s or %s", interfaces.ParamCPU, interfaces.ParamMemory)
	}

	requests := ""
	switch {
	case cpu != "" && memory != "":
		requests = fmt.Sprintf(`{"cpu":%q,"memory":%q}`, cpu, memory)
	case cpu != "":
		requests = fmt.Sprintf(`{"cpu":%q}`, cpu)
	default:
		requests = fmt.Sprintf(`{"memory":%q}`, memory)
	}
	patch := fmt.Sprintf(
		`{"spec":{"template":{"spec":{"containers":[{"name":%q,"resources":{"requests":%s}}]}}}}`,
		container, requests,
	)
	_, err := k.client.AppsV1().Deployments(namespace).Patch(
		ctx, deployment, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return "", fmt.Errorf("updating resources for %s/%s: %w", namespace, deployment, err)
	}
	return fmt.Sprintf("updated resource requests for %s/%s container %s", namespace, deployment, container), nil
}

// applyAutoscaler creates a HorizontalPodAutoscaler targeting the
// deployment, or updates the existing one in place.
func (k *KubeActions) applyAutoscaler(ctx context.Context, namespace string, params map[string]string) (string, error) {
	deployment := params[interfaces.ParamDeployment]
	if deployment == "" {
		return "", fmt.Errorf("apply_autoscaler requires %s", interfaces.ParamDeployment)
	}
	minReplicas, err := intParam(params, interfaces.ParamMinReplicas, defaultHPAMinReplicas)
	if err != nil {
		return "", err
	}
	maxReplicas, err := intParam(params, interfaces.ParamMaxReplicas, defaultHPAMaxReplicas)
	if err != nil {
		return "", err
	}
	targetCPU, err := intParam(params, interfaces.ParamTargetCPU, defaultHPATargetCPU)
	if err != nil {
		return "", err
	}

	hpa := &autoscalingv1.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{
			Name:      deployment,
			Namespace: namespace,
		},
		Spec: autoscalingv1.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: autoscalingv1.CrossVersionObjectReference{
				APIVersion: "apps/v1",
				Kind:       "Deployment",
				Name:       deployment,
			},
			MinReplicas:                    ptr.To(int32(minReplicas)),
			MaxReplicas:                    int32(maxReplicas),
			TargetCPUUtilizationPercentage: ptr.To(int32(targetCPU)),
		},
	}

	hpas := k.client.AutoscalingV1().HorizontalPodAutoscalers(namespace)
	existing, err := hpas.Get(ctx, deployment, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := hpas.Create(ctx, hpa, metav1.CreateOptions{}); err != nil {
			return "", fmt.Errorf("creating autoscaler for %s/%s: %w", namespace, deployment, err)
		}
		return fmt.Sprintf("created autoscaler for %s/%s (min=%d max=%d cpu=%d%%)",
			namespace, deployment, minReplicas, maxReplicas, targetCPU), nil
	}
	if err != nil {
		return "", fmt.Errorf("reading autoscaler for %s/%s: %w", namespace, deployment, err)
	}

	existing.Spec = hpa.Spec
	if _, err := hpas.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return "", fmt.Errorf("updating autoscaler for %s/%s: %w", namespace, deployment, err)
	}
	return fmt.Sprintf("updated autoscaler for %s/%s (min=%d max=%d cpu=%d%%)",
		namespace, deployment, minReplicas, maxReplicas, targetCPU), nil
}

// intParam parses a decimal parameter, returning the fallback when absent.
func intParam(params map[string]string, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %s must be an integer, got %q", key, raw)
	}
	return value, nil
}
