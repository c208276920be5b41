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
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// SnapshotProvider supplies the current cluster state for one analysis
// cycle. Implementations must return either a complete snapshot or an
// error; callers degrade to an empty snapshot on error.
type SnapshotProvider interface {
	// GetSnapshot captures pod and deployment state across all namespaces.
	GetSnapshot(ctx context.Context) (*ClusterSnapshot, error)
}

// KubeSnapshotProvider reads snapshots from the Kubernetes API.
type KubeSnapshotProvider struct {
	client kubernetes.Interface
	clock  func() time.Time
}

// NewKubeSnapshotProvider creates a provider backed by the given clientset.
func NewKubeSnapshotProvider(client kubernetes.Interface) *KubeSnapshotProvider {
	return &KubeSnapshotProvider{
		client: client,
		clock:  time.Now,
	}
}

// GetSnapshot lists pods and deployments across all namespaces and converts
// them into snapshot records. Ready and restart counts aggregate over all
// containers in a pod.
func (p *KubeSnapshotProvider) GetSnapshot(ctx context.Context) (*ClusterSnapshot, error) {
	podList, err := p.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	deployList, err := p.client.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	snapshot := &ClusterSnapshot{
		Timestamp:   p.clock(),
		Pods:        make([]PodRecord, 0, len(podList.Items)),
		Deployments: make([]DeploymentRecord, 0, len(deployList.Items)),
	}

	for i := range podList.Items {
		pod := &podList.Items[i]
		record := PodRecord{
			Name:      pod.Name,
			Namespace: pod.Namespace,
			Phase:     string(pod.Status.Phase),
			Node:      pod.Spec.NodeName,
		}
		if len(pod.Status.ContainerStatuses) > 0 {
			record.Ready = true
			for _, cs := range pod.Status.ContainerStatuses {
				if !cs.Ready {
					record.Ready = false
				}
				record.Restarts += int(cs.RestartCount)
			}
		}
		snapshot.Pods = append(snapshot.Pods, record)
	}

	for i := range deployList.Items {
		dep := &deployList.Items[i]
		record := DeploymentRecord{
			Name:              dep.Name,
			Namespace:         dep.Namespace,
			ReadyReplicas:     dep.Status.ReadyReplicas,
			AvailableReplicas: dep.Status.AvailableReplicas,
		}
		if dep.Spec.Replicas != nil {
			record.DesiredReplicas = *dep.Spec.Replicas
		}
		snapshot.Deployments = append(snapshot.Deployments, record)
	}

	return snapshot, nil
}
