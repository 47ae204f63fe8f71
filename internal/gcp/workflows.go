package gcp

import "fmt"

// WorkflowParent is the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}
