package tool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/moyoez/localsend-session/types"
)

// DetectFileType classifies a file on disk by sniffing its content.
func DetectFileType(path string) types.FileType {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		DefaultLogger.Debugf("Failed to detect mime type of %s: %v", path, err)
		return types.FileTypeOther
	}
	return types.FileTypeFromMime(mime.String())
}

// DetectBytesType classifies in-memory content.
func DetectBytesType(data []byte) types.FileType {
	return types.FileTypeFromMime(mimetype.Detect(data).String())
}

// LocalFileMetadata fills name, size and type of a local content source. The id is left empty.
func LocalFileMetadata(f types.LocalFile) (types.FileMetadata, error) {
	if f.InMemory() {
		data := f.Bytes()
		name := f.Name
		if name == "" {
			name = "message.txt"
		}
		fileType := f.FileType
		if fileType == "" {
			if f.Text != "" {
				fileType = types.FileTypeText
			} else {
				fileType = DetectBytesType(data)
			}
		}
		return types.FileMetadata{
			FileName: name,
			Size:     int64(len(data)),
			FileType: fileType,
		}, nil
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		return types.FileMetadata{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return types.FileMetadata{}, fmt.Errorf("path is a directory, not a file: %s", f.Path)
	}
	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	fileType := f.FileType
	if fileType == "" {
		fileType = DetectFileType(f.Path)
	}
	return types.FileMetadata{
		FileName: name,
		Size:     info.Size(),
		FileType: fileType,
	}, nil
}
