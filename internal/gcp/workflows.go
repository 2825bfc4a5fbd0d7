package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// DocumentIDLabel is the execution label carrying the application's DocumentId.
const DocumentIDLabel = "document-id"

// WorkflowClient starts executions of one Cloud Workflow.
type WorkflowClient struct {
	client *executions.Client
	parent string
}

// NewWorkflowClient creates a client bound to projects/<p>/locations/<l>/workflows/<w>.
func NewWorkflowClient(ctx context.Context, projectID, location, workflowID string) (*WorkflowClient, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowClient: projectID, location and workflowID cannot be empty")
	}

	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowClient{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}, nil
}

// StartExecution starts one execution with argument as its JSON input and
// labels it with the DocumentId. It returns the execution resource name.
func (w *WorkflowClient) StartExecution(ctx context.Context, documentID string, argument any) (string, error) {
	payload, err := json.Marshal(argument)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow argument: %w", err)
	}

	req := &executionspb.CreateExecutionRequest{
		Parent: w.parent,
		Execution: &executionspb.Execution{
			Argument: string(payload),
			Labels:   map[string]string{DocumentIDLabel: documentID},
		},
	}
	exec, err := w.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

func (w *WorkflowClient) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
