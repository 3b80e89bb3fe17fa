package attachments

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"messaging-service/internal/storage"
)

var (
	// ErrInvalidPayload marks an attachment whose encoding could not be
	// decoded. The operation fails; the session stays usable.
	ErrInvalidPayload = errors.New("invalid attachment payload")
	// ErrUploadFailed marks a storage backend failure. A message is never
	// persisted when its upload did not complete.
	ErrUploadFailed = errors.New("attachment upload failed")
)

// Source tags reported on references for diagnostics.
const (
	SourceMedia = "media"
	SourceRaw   = "raw"
)

// Upload is an inbound encoded attachment.
type Upload struct {
	// Data is either bare base64 or a full data:<mime>;base64,<payload> URI.
	Data     string
	FileName string
	// TypeHint is the client's declared type; empty means infer.
	TypeHint string
}

// Reference describes a stored attachment, decoupled from the raw bytes.
type Reference struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Source string `json:"source"`
	Name   string `json:"name"`
}

// Pipeline decodes, classifies and stores inbound attachments. Image bytes
// go through the media store, which may validate and transform; everything
// else goes through the raw store untouched, since image backends tend to
// reject non-image content.
type Pipeline struct {
	media storage.BlobStore
	raw   storage.BlobStore
}

// NewPipeline constructs a Pipeline over the two storage paths.
func NewPipeline(media, raw storage.BlobStore) *Pipeline {
	return &Pipeline{media: media, raw: raw}
}

// Process turns an encoded upload into a stored, retrievable reference.
// It runs before the owning message is persisted, so a failure here leaves
// no half-written row behind.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*Reference, error) {
	data, err := decode(up.Data)
	if err != nil {
		return nil, err
	}

	tag := Classify(up.TypeHint, up.FileName, data)
	name := uniqueName(up.FileName)

	store, source := p.raw, SourceRaw
	if tag == TypeImage {
		store, source = p.media, SourceMedia
	}

	url, err := store.Save(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return &Reference{URL: url, Type: tag, Source: source, Name: name}, nil
}

// decode strips an optional data-URI prefix and base64-decodes the payload.
func decode(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		_, encoded, found := strings.Cut(payload, ",")
		if !found {
			return nil, fmt.Errorf("%w: data uri without payload", ErrInvalidPayload)
		}
		payload = encoded
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

// uniqueName prefixes the client filename so concurrent uploads of the same
// file never collide in the store.
func uniqueName(fileName string) string {
	if fileName == "" {
		fileName = "attachment"
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "") + "_" + fileName
}
