package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/bytedance/sonic"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// InfoCacheTTL bounds how long a peer's /info answer is reused.
var InfoCacheTTL = 60 * time.Second

var infoCache = ttlworker.NewCache[string, *types.InfoResponse](InfoCacheTTL)

// FetchInfo asks the receiver who it is, sending our fingerprint so it can refuse to talk to itself.
// A 412 answer yields types.ErrSelfDiscovered.
func FetchInfo(ctx context.Context, target types.Device, selfFingerprint string) (*types.InfoResponse, error) {
	url := tool.BuildInfoURL(target, selfFingerprint)
	if cached := infoCache.Get(url); cached != nil {
		copied := *cached
		return &copied, nil
	}

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodGet, url, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create info request: %w", err)
	}
	resp, err := tool.GetHttpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send info request to %s: %w", types.ErrTransportFailure, url, err)
	}
	defer tool.CloseBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read info response: %w", types.ErrTransportFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.StatusCode, body)
	}

	var info types.InfoResponse
	if err := sonic.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse info response: %w", types.ErrTransportFailure, err)
	}
	infoCache.Set(url, &info)
	tool.DefaultLogger.Debugf("[Info] %s is %s (%s)", target.BaseURL(), info.Alias, info.DeviceModel)
	copied := info
	return &copied, nil
}
