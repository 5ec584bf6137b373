package checks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ping/ping"

	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
)

// PingStats summarises an ICMP probe of a robot host.
type PingStats struct {
	Host     string        `json:"host"`
	IP       string        `json:"ip"`
	Sent     int           `json:"sent"`
	Received int           `json:"received"`
	Loss     float64       `json:"loss"`
	MinRTT   time.Duration `json:"min_rtt"`
	AvgRTT   time.Duration `json:"avg_rtt"`
	MaxRTT   time.Duration `json:"max_rtt"`
}

func (s PingStats) Payload() map[string]any {
	return map[string]any{
		"ping": map[string]any{
			"host": s.Host,
			"ip":   s.IP,
			"packets": map[string]any{
				"transmitted": s.Sent,
				"received":    s.Received,
				"loss":        fmt.Sprintf("%.0f%%", s.Loss),
			},
			"roundTrip": map[string]any{
				"min": formatMilliseconds(s.MinRTT),
				"avg": formatMilliseconds(s.AvgRTT),
				"max": formatMilliseconds(s.MaxRTT),
			},
		},
	}
}

type ProbeFunc func(ctx context.Context, host string) (*PingStats, error)

// PingChecker probes the host of a robot's master (or control) URI.
type PingChecker struct {
	flight     flight
	timeout    time.Duration
	count      int
	privileged bool
	probe      ProbeFunc
	log        *slog.Logger
}

func NewPingChecker(timeout time.Duration, count int, privileged bool, log *slog.Logger) *PingChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if count <= 0 {
		count = 4
	}
	if log == nil {
		log = sl.Discard()
	}

	p := &PingChecker{
		timeout:    timeout,
		count:      count,
		privileged: privileged,
		log:        log.With("checker", string(domain.TaskTypePing)),
	}
	p.probe = p.defaultProbe
	p.flight.log = p.log

	return p
}

// SetProbeFunction replaces the ICMP probe. Useful for testing.
func (p *PingChecker) SetProbeFunction(fn ProbeFunc) {
	p.probe = fn
}

func (p *PingChecker) BeginChecking(robot domain.RobotID) <-chan Result {
	host, err := robotHost(robot)
	if err != nil {
		return p.flight.resolve(failed(robot, KindInvalidInput, err.Error()))
	}

	return p.flight.start(robot, func(ctx context.Context) Result {
		stats, err := p.probe(ctx, host)
		if err != nil {
			p.log.Error("ping failed", "host", host, sl.Err(err))
			return failed(robot, KindUnreachable, err.Error())
		}
		if stats.Received == 0 {
			return Result{
				Robot:   robot,
				Ping:    stats,
				Failure: &Failure{Kind: KindUnreachable, Reason: "no packets received"},
			}
		}
		return Result{Robot: robot, Ping: stats}
	})
}

func (p *PingChecker) StopChecking() {
	p.flight.stop()
}

func (p *PingChecker) defaultProbe(ctx context.Context, host string) (*PingStats, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", host, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := pinger.Statistics()
	ip := host
	if stats.IPAddr != nil {
		ip = stats.IPAddr.String()
	}

	return &PingStats{
		Host:     host,
		IP:       ip,
		Sent:     stats.PacketsSent,
		Received: stats.PacketsRecv,
		Loss:     stats.PacketLoss,
		MinRTT:   stats.MinRtt,
		AvgRTT:   stats.AvgRtt,
		MaxRTT:   stats.MaxRtt,
	}, nil
}
