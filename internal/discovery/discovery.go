// Package discovery finds candidate robots advertised over mDNS.
//
// A robot advertises its ROS master as a DNS-SD service. TXT records
// "master=<uri>" and "control=<uri>" override the URIs derived from the
// service address.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
)

const (
	DefaultService = "_ros-master._tcp"
	DefaultDomain  = "local."

	txtMaster  = "master="
	txtControl = "control="
)

// Candidate is one robot seen on the network.
type Candidate struct {
	Instance string         `json:"instance"`
	Host     string         `json:"host"`
	Robot    domain.RobotID `json:"robot"`
}

type Config struct {
	Service string
	Domain  string
	Timeout time.Duration
}

type Browser struct {
	service string
	domain  string
	timeout time.Duration
	log     *slog.Logger
}

func NewBrowser(cfg Config, log *slog.Logger) *Browser {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if log == nil {
		log = sl.Discard()
	}

	return &Browser{
		service: cfg.Service,
		domain:  cfg.Domain,
		timeout: cfg.Timeout,
		log:     log.With("component", "discovery"),
	}
}

// Browse listens for advertisements until timeout (or the browser default
// when timeout <= 0) and returns the robots seen, sorted by instance.
func (b *Browser) Browse(ctx context.Context, timeout time.Duration) ([]Candidate, error) {
	if timeout <= 0 {
		timeout = b.timeout
	}

	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, b.service, b.domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", b.service, err)
	}

	seen := make(map[string]Candidate)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return collect(seen), nil
			}
			candidate, ok := FromEntry(entry)
			if !ok {
				b.log.Debug("ignoring advertisement without address", "instance", entry.Instance)
				continue
			}
			if _, dup := seen[candidate.Instance]; !dup {
				b.log.Info("robot discovered", "instance", candidate.Instance, "master", candidate.Robot.MasterURI)
			}
			seen[candidate.Instance] = candidate
		case <-ctx.Done():
			return collect(seen), nil
		}
	}
}

// FromEntry converts an mDNS service entry into a candidate robot.
func FromEntry(entry *zeroconf.ServiceEntry) (Candidate, bool) {
	if entry == nil {
		return Candidate{}, false
	}

	var master, ctrl string
	for _, txt := range entry.Text {
		switch {
		case strings.HasPrefix(txt, txtMaster):
			master = strings.TrimSpace(strings.TrimPrefix(txt, txtMaster))
		case strings.HasPrefix(txt, txtControl):
			ctrl = strings.TrimSpace(strings.TrimPrefix(txt, txtControl))
		}
	}

	host := entryHost(entry)
	if master == "" {
		if host == "" || entry.Port <= 0 {
			return Candidate{}, false
		}
		master = "http://" + net.JoinHostPort(host, strconv.Itoa(entry.Port)) + "/"
	}

	return Candidate{
		Instance: entry.Instance,
		Host:     host,
		Robot:    domain.NewRobotID(master, ctrl),
	}, true
}

func entryHost(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if host := strings.TrimSuffix(entry.HostName, "."); host != "" {
		return host
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}

func collect(seen map[string]Candidate) []Candidate {
	out := make([]Candidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
