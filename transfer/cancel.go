package transfer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// Cancel tells the receiver to drop the session it holds for us.
func Cancel(ctx context.Context, target types.Device) error {
	url := tool.BuildCancelURL(target)
	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodPost, url, nil))
	if err != nil {
		return fmt.Errorf("failed to create cancel request: %w", err)
	}
	resp, err := tool.GetHttpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send cancel request: %w", types.ErrTransportFailure, err)
	}
	defer tool.CloseBody(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newHTTPError(resp.StatusCode, nil)
	}
	tool.DefaultLogger.Infof("Cancel request sent successfully to %s", url)
	return nil
}
