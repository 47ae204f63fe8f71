package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/authorizationflow/internal/gcp"
	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/Lllllllleong/authorizationflow/internal/signature"
	"golang.org/x/sync/errgroup"
)

// ImageStore keeps signature PNGs outside the document record.
type ImageStore interface {
	// Put stores data under object and returns its URI.
	Put(ctx context.Context, object string, data []byte) (string, error)
}

// GCSImageStore writes signature images to a bucket.
type GCSImageStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewGCSImageStore(client *storage.Client, bucket string) *GCSImageStore {
	return &GCSImageStore{bucket: client.Bucket(bucket), bucketName: bucket}
}

func (s *GCSImageStore) Put(ctx context.Context, object string, data []byte) (string, error) {
	if err := gcp.SaveToGCSAtomically(ctx, s.bucket, object, "image/png", data); err != nil {
		return "", err
	}
	return gcp.GCSURI(s.bucketName, object), nil
}

// SignatureObject names the object for one signature slot. The name includes a
// content hash so a re-signed slot never collides with its earlier image.
func SignatureObject(kind models.Kind, docID string, sig models.Signature, png []byte) string {
	slot := sig.Role
	if slot == "" {
		slot = models.RoleSigner
	}
	if sig.SectionKey != "" {
		slot = "initial-" + sig.SectionKey
	}
	sum := sha256.Sum256(png)
	return fmt.Sprintf("%s/%s/%s-%s.png", kind, docID, slot, hex.EncodeToString(sum[:8]))
}

// OffloadSignatures uploads every inline signature image of d concurrently and
// replaces ImageData with ImageURI. d is only modified when all uploads succeed.
func OffloadSignatures(ctx context.Context, images ImageStore, kind models.Kind, docID string, d *models.Document) error {
	uris := make([]string, len(d.Signatures))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)

	for i, sig := range d.Signatures {
		if sig.ImageData == "" {
			continue
		}
		eg.Go(func() error {
			png, err := signature.DecodePNG(sig.ImageData)
			if err != nil {
				return fmt.Errorf("signature %d: %w", i, err)
			}
			uri, err := images.Put(gctx, SignatureObject(kind, docID, sig, png), png)
			if err != nil {
				return fmt.Errorf("signature %d: %w", i, err)
			}
			uris[i] = uri
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to offload signature images: %w", err)
	}

	for i, uri := range uris {
		if uri == "" {
			continue
		}
		d.Signatures[i].ImageURI = uri
		d.Signatures[i].ImageData = ""
	}
	return nil
}
