// Package signature wraps a drawing surface and extracts what the user drew.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/Lllllllleong/authorizationflow/internal/identifier"
	"github.com/Lllllllleong/authorizationflow/internal/models"
)

const (
	pngDataURLPrefix = "data:image/png;base64,"
	// MaxImageBytes caps a decoded signature so it fits inside one Firestore document.
	MaxImageBytes = 256 << 10
)

var (
	ErrNotPNGDataURL = errors.New("signature is not a PNG data URL")
	ErrImageTooLarge = errors.New("signature image exceeds size limit")
	ErrEmpty         = errors.New("signature is empty")
)

// Surface is the drawing capability the core depends on.
type Surface interface {
	IsEmpty() bool
	// DataURL returns the drawing as a PNG data URL.
	DataURL() (string, error)
	Clear()
}

// Adapter stamps captures with the controller's clock.
type Adapter struct {
	Clock identifier.Clock
}

func NewAdapter(clock identifier.Clock) *Adapter {
	if clock == nil {
		clock = identifier.SystemClock{}
	}
	return &Adapter{Clock: clock}
}

// Capture returns nil when the surface is empty.
func (a *Adapter) Capture(s Surface) (*models.Signature, error) {
	if s == nil || s.IsEmpty() {
		return nil, nil
	}
	data, err := s.DataURL()
	if err != nil {
		return nil, fmt.Errorf("failed to read signature surface: %w", err)
	}
	return &models.Signature{
		ImageData:  data,
		CapturedAt: a.Clock.Now(),
		Role:       models.RoleSigner,
	}, nil
}

// Verify reads a posted data URL as a surface. A blank drawing is ErrEmpty;
// a malformed one wraps ErrNotPNGDataURL or ErrImageTooLarge.
func (a *Adapter) Verify(dataURL string) error {
	sig, err := a.Capture(NewDataURLSurface(dataURL))
	if err != nil {
		return err
	}
	if sig == nil {
		return ErrEmpty
	}
	return nil
}

// CaptureInitial captures a per-clause initial keyed by section.
func (a *Adapter) CaptureInitial(s Surface, clause string) (*models.Signature, error) {
	sig, err := a.Capture(s)
	if sig == nil || err != nil {
		return nil, err
	}
	sig.SectionKey = clause
	return sig, nil
}

// Clear resets the surface; persisted signatures are unaffected.
func (a *Adapter) Clear(s Surface) {
	if s != nil {
		s.Clear()
	}
}

// DataURLSurface is the server-side view of a canvas posted as a PNG data URL.
// A blank string or a fully transparent image counts as empty.
type DataURLSurface struct {
	url string
}

func NewDataURLSurface(dataURL string) *DataURLSurface {
	return &DataURLSurface{url: strings.TrimSpace(dataURL)}
}

func (s *DataURLSurface) IsEmpty() bool {
	if s.url == "" {
		return true
	}
	img, err := decode(s.url)
	if err != nil {
		// Malformed payloads are not empty; DataURL reports why.
		return false
	}
	return blank(img)
}

func (s *DataURLSurface) DataURL() (string, error) {
	if _, err := decode(s.url); err != nil {
		return "", err
	}
	return s.url, nil
}

func (s *DataURLSurface) Clear() { s.url = "" }

// DecodePNG returns the raw PNG bytes behind a data URL.
func DecodePNG(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, ErrNotPNGDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL[len(pngDataURLPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPNGDataURL, err)
	}
	if len(raw) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	return raw, nil
}

func decode(dataURL string) (image.Image, error) {
	raw, err := DecodePNG(dataURL)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPNGDataURL, err)
	}
	return img, nil
}

func blank(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				return false
			}
		}
	}
	return true
}
