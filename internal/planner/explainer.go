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
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
)

const explainerSystemPrompt = `You are a Kubernetes cluster remediation assistant.
Given a cluster state summary, diagnose the problems and propose remediation
actions. Reply with an analysis followed by an action plan where each action
uses this exact format:

ACTION_1:
  action: <action_name>
  namespace: <namespace>
  reasoning: <one line>
  priority: <critical|high|medium|low>

Valid action names: restart_pod, delete_pod, restart_deployment,
scale_deployment, scale_deployment_by_percentage, bulk_restart_pods,
bulk_delete_pods, bulk_scale_deployments, update_pod_resources,
apply_autoscaler.`

// Explainer produces a free-text diagnosis for a snapshot. The text is fed
// through ExtractActions, so any explainer that emits ACTION_N blocks
// participates in planning; one that does not still contributes its
// analysis to the report.
type Explainer interface {
	Explain(ctx context.Context, snapshot *cluster.ClusterSnapshot, prompt string) (string, error)
}

// OpenAIExplainer asks a chat-completion model for a diagnosis.
type OpenAIExplainer struct {
	client *openai.Client
	model  string
}

// NewOpenAIExplainer builds an explainer for the given API key and model.
func NewOpenAIExplainer(apiKey, model string) (*OpenAIExplainer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("explainer requires an API key")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIExplainer{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Explain sends the cluster summary and optional operator prompt to the
// model and returns its text response.
func (e *OpenAIExplainer) Explain(ctx context.Context, snapshot *cluster.ClusterSnapshot, prompt string) (string, error) {
	user := "Cluster state:\n" + snapshot.Summary()
	if prompt != "" {
		user += "\n\nOperator request: " + prompt
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: explainerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("explainer request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("explainer returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
