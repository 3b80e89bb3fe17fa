package attachments

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Classification tags.
const (
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeFile     = "file"
)

// extensionTypes maps lowercase filename extensions to classification tags.
// Precedence lives in Classify; this table only answers lookups.
var extensionTypes = map[string]string{
	".jpg":  TypeImage,
	".jpeg": TypeImage,
	".png":  TypeImage,
	".gif":  TypeImage,
	".webp": TypeImage,
	".bmp":  TypeImage,

	".m4a":  TypeAudio,
	".mp3":  TypeAudio,
	".wav":  TypeAudio,
	".ogg":  TypeAudio,
	".aac":  TypeAudio,
	".flac": TypeAudio,

	".mp4":  TypeVideo,
	".mov":  TypeVideo,
	".avi":  TypeVideo,
	".mkv":  TypeVideo,
	".webm": TypeVideo,

	".pdf":  TypeDocument,
	".doc":  TypeDocument,
	".docx": TypeDocument,
	".txt":  TypeDocument,
	".xls":  TypeDocument,
	".xlsx": TypeDocument,
	".ppt":  TypeDocument,
	".pptx": TypeDocument,
}

var knownTypes = map[string]bool{
	TypeImage:    true,
	TypeAudio:    true,
	TypeVideo:    true,
	TypeDocument: true,
	TypeFile:     true,
}

// Classify resolves the display type for an attachment. The fallback order
// is fixed: explicit hint, filename extension, content probe, generic file.
// Classification never fails; anything unrecognized degrades to TypeFile.
func Classify(hint, fileName string, data []byte) string {
	if t, ok := fromHint(hint); ok {
		return t
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return t
	}
	if t, ok := fromMIME(mimetype.Detect(data).String()); ok {
		return t
	}
	return TypeFile
}

// fromHint accepts either a bare category name ("image") or a MIME string
// ("image/png") as declared by the client.
func fromHint(hint string) (string, bool) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return "", false
	}
	if knownTypes[hint] {
		return hint, true
	}
	return fromMIME(hint)
}

func fromMIME(mime string) (string, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return TypeImage, true
	case strings.HasPrefix(mime, "audio/"):
		return TypeAudio, true
	case strings.HasPrefix(mime, "video/"):
		return TypeVideo, true
	case strings.HasPrefix(mime, "application/pdf"),
		strings.HasPrefix(mime, "application/msword"),
		strings.HasPrefix(mime, "application/vnd."),
		strings.HasPrefix(mime, "text/plain"):
		return TypeDocument, true
	}
	return "", false
}
