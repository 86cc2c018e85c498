package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// progressReader reports the cumulative number of bytes read.
type progressReader struct {
	r      io.Reader
	read   int64
	onRead func(read int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.onRead != nil {
			p.onRead(p.read)
		}
	}
	return n, err
}

// Upload streams one file body to the receiver. size becomes the Content-Length.
// Cancelling ctx aborts the request.
func Upload(ctx context.Context, target types.Device, fileId, token string, data io.Reader, size int64, onProgress func(sent int64)) error {
	if fileId == "" || token == "" {
		return fmt.Errorf("%w: fileId and token must not be empty", types.ErrMissingParameters)
	}

	url := tool.BuildSendURL(target, fileId, token)
	body := &progressReader{r: data, onRead: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := tool.GetTransferHttpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: failed to upload file: %w", types.ErrTransportFailure, err)
	}
	defer tool.CloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newHTTPError(resp.StatusCode, msg)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
