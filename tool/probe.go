package tool

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Probe sends a few unprivileged ICMP echo requests to host and reports the average round trip.
func Probe(ctx context.Context, host string, count int) (time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, fmt.Errorf("create pinger: %w", err)
	}
	if count <= 0 {
		count = 3
	}
	pinger.Count = count
	pinger.Timeout = time.Duration(count) * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("ping %s: %w", host, err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("ping %s: no reply", host)
	}
	DefaultLogger.Debugf("[Probe] %s: %d/%d replies, avg %v", host, stats.PacketsRecv, stats.PacketsSent, stats.AvgRtt)
	return stats.AvgRtt, nil
}
