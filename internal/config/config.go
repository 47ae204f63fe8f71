package config

import (
	"fmt"
	"strconv"

	"github.com/Lllllllleong/authorizationflow/internal/gcp"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/workflow"
	"github.com/joho/godotenv"
)

// Config holds the settings shared by every authorization function.
type Config struct {
	ProjectID         string
	FirestoreDatabase string
	VertexAIRegion    string

	// SignatureBucket receives offloaded signature images. Empty keeps them inline.
	SignatureBucket string
	// SignedCopyTemplate is a gs:// PDF stamped on submit; empty disables stamping.
	SignedCopyTemplate string
	SignedCopyBucket   string

	// NotifyWorkflowID names the Cloud Workflow that delivers outbound
	// notifications. Empty disables notification hand-off.
	NotifyWorkflowID string
	WorkflowLocation string

	Workflow workflow.Settings
}

// Load reads configuration from the environment, after loading a .env file if
// one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	termMonths, err := intEnv("AGREEMENT_TERM_MONTHS", 0)
	if err != nil {
		return nil, err
	}
	if termMonths < 0 {
		return nil, fmt.Errorf("AGREEMENT_TERM_MONTHS must not be negative, got %d", termMonths)
	}
	countersign, err := boolEnv("POA_REQUIRES_COUNTERSIGN", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:          projectID,
		FirestoreDatabase:  gcp.GetEnv("FIRESTORE_DATABASE", ""),
		VertexAIRegion:     gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		SignatureBucket:    gcp.GetEnv("SIGNATURE_BUCKET", ""),
		SignedCopyTemplate: gcp.GetEnv("SIGNED_COPY_TEMPLATE", ""),
		SignedCopyBucket:   gcp.GetEnv("SIGNED_COPY_BUCKET", ""),
		NotifyWorkflowID:   gcp.GetEnv("NOTIFY_WORKFLOW_ID", ""),
		WorkflowLocation:   gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		Workflow: workflow.Settings{
			Prefixes: map[models.Kind]string{
				models.KindPaymentAuthorization: gcp.GetEnv("ACH_PREFIX", "ACH"),
				models.KindServiceAgreement:     gcp.GetEnv("AGREEMENT_PREFIX", "SCR"),
				models.KindPowerOfAttorney:      gcp.GetEnv("POA_PREFIX", "POA"),
			},
			AgreementTermMonths:    termMonths,
			POARequiresCountersign: countersign,
			AttorneyInFact: models.AttorneyInFact{
				CompanyName:    gcp.GetEnv("COMPANY_NAME", ""),
				Address:        gcp.GetEnv("COMPANY_ADDRESS", ""),
				Phone:          gcp.GetEnv("COMPANY_PHONE", ""),
				Email:          gcp.GetEnv("COMPANY_EMAIL", ""),
				Representative: gcp.GetEnv("COMPANY_REPRESENTATIVE", ""),
			},
		},
	}
	if cfg.SignedCopyTemplate != "" {
		if _, _, err := gcp.ParseGCSURI(cfg.SignedCopyTemplate); err != nil {
			return nil, fmt.Errorf("SIGNED_COPY_TEMPLATE: %w", err)
		}
		if cfg.SignedCopyBucket == "" {
			return nil, fmt.Errorf("SIGNED_COPY_BUCKET must be set when SIGNED_COPY_TEMPLATE is set")
		}
	}
	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}
