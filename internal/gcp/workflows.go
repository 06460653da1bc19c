package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// WorkflowTrigger starts executions of the digitization workflow.
type WorkflowTrigger struct {
	client *executions.Client
	parent string
	create func(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error)
}

// NewWorkflowTrigger creates an executions client for one workflow.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflowID string) (*WorkflowTrigger, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowTrigger: projectID, location and workflowID cannot be empty")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowTrigger{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
		create: func(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
			return client.CreateExecution(ctx, req)
		},
	}, nil
}

func (w *WorkflowTrigger) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// Trigger starts an execution and returns its resource name.
func (w *WorkflowTrigger) Trigger(ctx context.Context, arg models.WorkflowArgument) (string, error) {
	payload, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := w.create(ctx, &executionspb.CreateExecutionRequest{
		Parent:    w.parent,
		Execution: &executionspb.Execution{Argument: string(payload)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}
