package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// SendRequest announces a batch and waits for the receiver's decision, which may take as long as a human does.
// Any non-200 answer is returned as *HTTPError.
func SendRequest(ctx context.Context, target types.Device, request *types.SendRequest) (types.SendRequestResponse, error) {
	if request == nil {
		return nil, fmt.Errorf("%w: nil send-request", types.ErrInvalidRequest)
	}
	payload, err := sonic.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send-request: %w", err)
	}

	url := tool.BuildSendRequestURL(target)
	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create send-request: %w", err)
	}
	resp, err := tool.GetTransferHttpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send send-request: %w", types.ErrTransportFailure, err)
	}
	defer tool.CloseBody(resp.Body)

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read send-request response: %w", types.ErrTransportFailure, readErr)
	}
	tool.DefaultLogger.Debugf("[SendRequest] %s answered %d: %s", url, resp.StatusCode, string(body))

	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.StatusCode, body)
	}
	response := types.SendRequestResponse{}
	if len(bytes.TrimSpace(body)) == 0 {
		return response, nil
	}
	if err := sonic.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to parse send-request response: %w", types.ErrTransportFailure, err)
	}
	return response, nil
}
