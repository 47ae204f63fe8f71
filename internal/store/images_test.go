package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignature = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type memImages struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *memImages) Put(_ context.Context, object string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("bucket unavailable")
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[object] = data
	return "gs://signatures/" + object, nil
}

func TestSignatureObject(t *testing.T) {
	png := []byte("png-bytes")
	main := SignatureObject(models.KindServiceAgreement, "doc-1", models.Signature{}, png)
	initial := SignatureObject(models.KindServiceAgreement, "doc-1", models.Signature{SectionKey: "noGuarantee"}, png)
	counter := SignatureObject(models.KindServiceAgreement, "doc-1", models.Signature{Role: models.RoleCountersigner}, png)
	other := SignatureObject(models.KindServiceAgreement, "doc-1", models.Signature{}, []byte("other"))

	assert.True(t, strings.HasPrefix(main, "service_agreement/doc-1/signer-"))
	assert.True(t, strings.HasPrefix(initial, "service_agreement/doc-1/initial-noGuarantee-"))
	assert.True(t, strings.HasPrefix(counter, "service_agreement/doc-1/countersigner-"))
	assert.True(t, strings.HasSuffix(main, ".png"))
	assert.NotEqual(t, main, other)
}

func TestOffloadSignatures(t *testing.T) {
	images := &memImages{}
	d := &models.Document{Signatures: []models.Signature{
		{ImageData: testSignature},
		{ImageData: testSignature, SectionKey: "noGuarantee"},
		{ImageURI: "gs://signatures/already.png"},
	}}

	require.NoError(t, OffloadSignatures(context.Background(), images, models.KindServiceAgreement, "doc-1", d))
	assert.Len(t, images.objects, 2)
	for _, sig := range d.Signatures {
		assert.Empty(t, sig.ImageData)
		assert.True(t, strings.HasPrefix(sig.ImageURI, "gs://signatures/"))
	}
	assert.Equal(t, "gs://signatures/already.png", d.Signatures[2].ImageURI)
}

func TestOffloadSignaturesLeavesDocumentOnFailure(t *testing.T) {
	d := &models.Document{Signatures: []models.Signature{{ImageData: testSignature}}}

	err := OffloadSignatures(context.Background(), &memImages{fail: true}, models.KindPowerOfAttorney, "doc-2", d)
	require.Error(t, err)
	assert.Equal(t, testSignature, d.Signatures[0].ImageData)
	assert.Empty(t, d.Signatures[0].ImageURI)

	d.Signatures[0].ImageData = "data:image/jpeg;base64,AAAA"
	err = OffloadSignatures(context.Background(), &memImages{}, models.KindPowerOfAttorney, "doc-2", d)
	assert.Error(t, err)
}
