package attachments_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/attachments"
	"messaging-service/internal/mocks"
)

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func TestProcessImageRoutesThroughMediaStore(t *testing.T) {
	media := new(mocks.BlobStoreMock)
	raw := new(mocks.BlobStoreMock)
	p := attachments.NewPipeline(media, raw)

	payload := []byte{0x89, 0x50, 0x4E, 0x47}
	media.On("Save", mock.Anything, mock.AnythingOfType("string"), payload).
		Return("http://cdn/media/images/x_photo.png", nil).Once()

	ref, err := p.Process(context.Background(), attachments.Upload{Data: b64(payload), FileName: "photo.png"})
	require.NoError(t, err)

	assert.Equal(t, "http://cdn/media/images/x_photo.png", ref.URL)
	assert.Equal(t, attachments.TypeImage, ref.Type)
	assert.Equal(t, attachments.SourceMedia, ref.Source)
	assert.Contains(t, ref.Name, "_photo.png")
	media.AssertExpectations(t)
	raw.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDocumentRoutesThroughRawStore(t *testing.T) {
	media := new(mocks.BlobStoreMock)
	raw := new(mocks.BlobStoreMock)
	p := attachments.NewPipeline(media, raw)

	payload := []byte("%PDF-1.4 pretend")
	raw.On("Save", mock.Anything, mock.AnythingOfType("string"), payload).
		Return("http://cdn/media/raw/x_report.pdf", nil).Once()

	ref, err := p.Process(context.Background(), attachments.Upload{Data: b64(payload), FileName: "report.pdf"})
	require.NoError(t, err)

	assert.Equal(t, attachments.TypeDocument, ref.Type)
	assert.Equal(t, attachments.SourceRaw, ref.Source)
	raw.AssertExpectations(t)
	media.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDataURI(t *testing.T) {
	media := new(mocks.BlobStoreMock)
	raw := new(mocks.BlobStoreMock)
	p := attachments.NewPipeline(media, raw)

	payload := []byte{0x89, 0x50, 0x4E, 0x47}
	media.On("Save", mock.Anything, mock.AnythingOfType("string"), payload).
		Return("http://cdn/x", nil).Once()

	uri := "data:image/png;base64," + b64(payload)
	ref, err := p.Process(context.Background(), attachments.Upload{Data: uri, FileName: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, attachments.TypeImage, ref.Type)
	media.AssertExpectations(t)
}

func TestProcessMalformedBase64(t *testing.T) {
	media := new(mocks.BlobStoreMock)
	raw := new(mocks.BlobStoreMock)
	p := attachments.NewPipeline(media, raw)

	_, err := p.Process(context.Background(), attachments.Upload{Data: "!!not-base64!!", FileName: "a.png"})
	assert.ErrorIs(t, err, attachments.ErrInvalidPayload)

	// Nothing reached either storage path.
	media.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	raw.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessUploadFailure(t *testing.T) {
	media := new(mocks.BlobStoreMock)
	raw := new(mocks.BlobStoreMock)
	p := attachments.NewPipeline(media, raw)

	raw.On("Save", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return("", assert.AnError).Once()

	_, err := p.Process(context.Background(), attachments.Upload{Data: b64([]byte{0x00, 0x01, 0xFF}), FileName: "blob.xyz"})
	assert.ErrorIs(t, err, attachments.ErrUploadFailed)
	raw.AssertExpectations(t)
}
