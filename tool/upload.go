package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxNameAttempts bounds the naming loop of CreateUnique.
const maxNameAttempts = 10000

// SanitizeFileName strips any directory part and rejects names that cannot be a plain file.
// It returns fallback when nothing usable is left.
func SanitizeFileName(name, fallback string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" || name == "" {
		return fallback
	}
	return name
}

// candidatePath returns the n-th candidate for fileName under dir: n=1 is the bare name,
// then base-2.ext, base-3.ext, ... (e.g. txt.txt -> txt-2.txt, txt-3.txt).
func candidatePath(dir, fileName string, n int) string {
	if n <= 1 {
		return filepath.Join(dir, fileName)
	}
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	if base == "" {
		base = fileName
		ext = ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
}

// CreateUnique creates a new file under dir named after fileName, advancing the counter
// when a candidate already exists, including one created by another process in the meantime.
func CreateUnique(dir, fileName string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create upload dir failed: %w", err)
	}
	for n := 1; n <= maxNameAttempts; n++ {
		try := candidatePath(dir, fileName, n)
		f, err := os.OpenFile(try, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, try, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return nil, "", fmt.Errorf("create file failed: %w", err)
	}
	return nil, "", fmt.Errorf("no free file name for %s after %d attempts", fileName, maxNameAttempts)
}

// CopyWithContext copies from src to dst while respecting context cancellation.
// onWrite, when set, receives the cumulative number of bytes written after every chunk.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader, onWrite func(written int64)) (int64, error) {
	buf := make([]byte, 2*1024*1024) // 2MB buffer
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if writeErr == nil {
					writeErr = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if onWrite != nil && nw > 0 {
				onWrite(written)
			}
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, readErr
		}
	}
}
