package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/googleapis/gax-go/v2"
)

// ExecutionCreator is the part of the Workflows Executions client the notifier uses.
type ExecutionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowNotifier hands each committed transition to a Cloud Workflow that
// owns email and CRM delivery.
type WorkflowNotifier struct {
	client ExecutionCreator
	parent string
}

func NewWorkflowNotifier(client ExecutionCreator, parent string) *WorkflowNotifier {
	return &WorkflowNotifier{client: client, parent: parent}
}

// notificationPayload is the workflow's input argument.
type notificationPayload struct {
	AuditID        string         `json:"auditId"`
	Action         string         `json:"action"`
	DocumentID     string         `json:"documentId"`
	DocumentNumber string         `json:"documentNumber,omitempty"`
	Kind           models.Kind    `json:"kind"`
	ContactID      string         `json:"contactId,omitempty"`
	ActorID        string         `json:"actorId"`
	Timestamp      string         `json:"timestamp"`
	Details        map[string]any `json:"details,omitempty"`
}

func (n *WorkflowNotifier) Notify(ctx context.Context, e *models.AuditEntry) error {
	payload := notificationPayload{
		AuditID:        e.ID,
		Action:         e.Action,
		DocumentID:     e.DocumentID,
		DocumentNumber: e.DocumentNumber,
		Kind:           e.Kind,
		ContactID:      e.ContactID,
		ActorID:        e.ActorID,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339),
		Details:        e.Details,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req := &executionspb.CreateExecutionRequest{
		Parent: n.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger notification workflow: %w", err)
	}
	slog.Info("Notification workflow triggered.", "documentId", e.DocumentID, "action", e.Action, "execution", exec.GetName())
	return nil
}
