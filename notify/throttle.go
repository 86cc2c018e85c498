package notify

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/localsend-session/types"
)

// Throttle forwards events to next, rate limiting file_progress events.
// A progress event that completes a file (progress >= 1) is always forwarded.
type Throttle struct {
	next    Observer
	limiter *rate.Limiter
}

// NewThrottle allows perSecond progress events with a small burst.
func NewThrottle(next Observer, perSecond float64) *Throttle {
	if next == nil {
		next = Nop
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttle) Notify(notification *types.Notification) {
	if notification == nil {
		return
	}
	if notification.Type == types.NotifyTypeFileProgress {
		if p, ok := notification.Data["progress"].(float64); !ok || p < 1 {
			if !t.limiter.AllowN(time.Now(), 1) {
				return
			}
		}
	}
	t.next.Notify(notification)
}
