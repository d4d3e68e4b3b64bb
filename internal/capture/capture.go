// Package capture turns user-selected image files into transport-ready payloads.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"mime/multipart"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes bounds a single capture when the caller passes no limit.
const DefaultMaxBytes = 10 << 20

var (
	// ErrUnreadableFile is returned when the file is empty, corrupt, or too large.
	ErrUnreadableFile = errors.New("unreadable image file")
	// ErrUnsupportedType is returned for content that is not an accepted image type.
	ErrUnsupportedType = errors.New("unsupported file type")
)

var acceptedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Image is a captured upload. Payload is raw base64 without a data-URL header.
type Image struct {
	Payload  string `json:"payload"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int    `json:"size"`
}

// Preview returns a renderable data URL, distinct from the transport payload.
func (i *Image) Preview() string {
	return "data:" + i.MIMEType + ";base64," + i.Payload
}

// Bytes decodes the payload back to raw bytes.
func (i *Image) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(i.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return data, nil
}

// Capture reads at most limit bytes from r and validates them as an image.
func Capture(r io.Reader, limit int64) (*Image, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadableFile)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrUnreadableFile, limit)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), acceptedTypes...) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	img := &Image{
		Payload:  base64.StdEncoding.EncodeToString(data),
		MIMEType: mt.String(),
		Size:     len(data),
	}

	// The standard library has no webp decoder; sniffing is the only check there.
	if mt.Is("image/webp") {
		return img, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	img.Width = cfg.Width
	img.Height = cfg.Height
	return img, nil
}

// FromFile captures an image from disk.
func FromFile(path string, limit int64) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()
	return Capture(f, limit)
}

// FromMultipart captures an uploaded multipart file.
func FromMultipart(fh *multipart.FileHeader, limit int64) (*Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()
	return Capture(f, limit)
}

// FromPayload validates an already-encoded payload, accepting an optional
// data-URL header.
func FromPayload(encoded string, limit int64) (*Image, error) {
	if strings.HasPrefix(encoded, "data:") {
		if _, rest, ok := strings.Cut(encoded, ","); ok {
			encoded = rest
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrUnreadableFile)
	}
	return Capture(bytes.NewReader(data), limit)
}
