package types

import "strings"

// FileType is the coarse kind of a file as announced in a batch.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypePdf   FileType = "pdf"
	FileTypeText  FileType = "text"
	FileTypeOther FileType = "other"
)

// FileTypeFromMime maps a MIME type to a FileType.
func FileTypeFromMime(mime string) FileType {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mime, "video/"):
		return FileTypeVideo
	case strings.HasPrefix(mime, "application/pdf"):
		return FileTypePdf
	case strings.HasPrefix(mime, "text/"):
		return FileTypeText
	default:
		return FileTypeOther
	}
}

// IsMedia reports whether the file belongs in a media gallery.
func (t FileType) IsMedia() bool {
	return t == FileTypeImage || t == FileTypeVideo
}

// FileMetadata describes one file of a batch. Immutable once the batch is formed.
type FileMetadata struct {
	ID       string   `json:"id"`
	FileName string   `json:"fileName"`
	Size     int64    `json:"size"`
	FileType FileType `json:"fileType"`
	Preview  string   `json:"preview,omitempty"`
}

// LocalFile is the content source for one outgoing file: a path on disk or in-memory bytes.
// Text is a convenience for the local API and is sent as in-memory bytes.
type LocalFile struct {
	Path     string   `json:"path,omitempty"`
	Name     string   `json:"name,omitempty"`
	Text     string   `json:"text,omitempty"`
	Data     []byte   `json:"-"`
	FileType FileType `json:"fileType,omitempty"`
}

// InMemory reports whether the content does not come from disk.
func (f LocalFile) InMemory() bool {
	return f.Path == ""
}

// Bytes returns the in-memory content.
func (f LocalFile) Bytes() []byte {
	if f.Data != nil {
		return f.Data
	}
	return []byte(f.Text)
}
