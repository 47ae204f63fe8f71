package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/authorizationflow/internal/gcp"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// stampDescription places the stamp in the bottom-left corner of every page.
const stampDescription = "fontname:Helvetica, points:9, position:bl, offset:36 36, scalefactor:1 abs, rotation:0, fillcolor:#1a1a1a, opacity:1"

// Stamper writes a signed copy of a finalized document: the configured
// template PDF with the document number, effective date and signer stamped on
// every page.
type Stamper struct {
	storageClient  *storage.Client
	templateBucket string
	templateObject string
	outputBucket   string

	mu       sync.Mutex
	template []byte
}

func NewStamper(client *storage.Client, templateURI, outputBucket string) (*Stamper, error) {
	bucket, object, err := gcp.ParseGCSURI(templateURI)
	if err != nil {
		return nil, err
	}
	if outputBucket == "" {
		return nil, fmt.Errorf("output bucket must be set")
	}
	return &Stamper{
		storageClient:  client,
		templateBucket: bucket,
		templateObject: object,
		outputBucket:   outputBucket,
	}, nil
}

// Stamp stores the signed copy and returns its gs:// URI.
func (s *Stamper) Stamp(ctx context.Context, d *models.Document) (string, error) {
	logCtx := slog.With("documentId", d.ID, "documentNumber", d.DocumentNumber)

	tpl, err := s.loadTemplate(ctx)
	if err != nil {
		return "", err
	}
	out, err := StampPDF(tpl, StampText(d))
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("%s/%s/%s.pdf", d.Kind, d.ID, d.DocumentNumber)
	if err := gcp.SaveToGCSAtomically(ctx, s.storageClient.Bucket(s.outputBucket), objectName, "application/pdf", out); err != nil {
		return "", err
	}
	logCtx.Info("Signed copy written.", "bytes", len(out))
	return gcp.GCSURI(s.outputBucket, objectName), nil
}

func (s *Stamper) loadTemplate(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.template != nil {
		return s.template, nil
	}
	data, err := gcp.ReadObject(ctx, s.storageClient, s.templateBucket, s.templateObject)
	if err != nil {
		return nil, fmt.Errorf("failed to load signed copy template: %w", err)
	}
	s.template = data
	return data, nil
}

// StampText is the multi-line stamp for d. Only masked or non-sensitive
// values appear on it.
func StampText(d *models.Document) string {
	lines := []string{"Document No. " + d.DocumentNumber}
	if d.EffectiveDate != nil {
		lines = append(lines, "Effective "+d.EffectiveDate.Format("January 2, 2006"))
	}
	if d.ExpirationDate != nil {
		lines = append(lines, "Expires "+d.ExpirationDate.Format("January 2, 2006"))
	}
	if p := d.Principal; p != nil {
		lines = append(lines, "Signed electronically by "+strings.TrimSpace(p.FirstName+" "+p.LastName))
	}
	lines = append(lines, "Status: "+string(d.Status))
	return strings.Join(lines, "\n")
}

// StampPDF overlays text on every page of template.
func StampPDF(template []byte, text string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	wm, err := api.TextWatermark(text, stampDescription, true, false, conf.Unit)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp PDF: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(template), &out, nil, wm, conf); err != nil {
		return nil, fmt.Errorf("failed to stamp PDF: %w", err)
	}
	return out.Bytes(), nil
}
