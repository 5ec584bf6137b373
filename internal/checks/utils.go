package checks

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ozzus/robot-agent/internal/domain"
)

// robotHost picks the host to probe: the master host, else the control host.
func robotHost(robot domain.RobotID) (string, error) {
	for _, target := range []string{robot.MasterURI, robot.ControlURI} {
		if target == "" {
			continue
		}
		return normalizeHostname(target)
	}
	return "", errors.New("robot has no URI to probe")
}

func normalizeHostname(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("empty target")
	}

	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("invalid target: %s", target)
	}

	return host, nil
}

func formatMilliseconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1f ms", float64(d.Microseconds())/1000.0)
}
