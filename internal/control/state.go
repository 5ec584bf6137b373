package control

import (
	"strings"

	"ozzus/robot-agent/internal/domain"
)

const (
	inUseTag   = "STATE_IN_USE"
	validTag   = "STATE_VALID"
	offTag     = "STATE_OFF"
	userTag    = "USER:"
	messageTag = "MESSAGE:"
)

// ParseState scans every line of a control page. Later lines overwrite
// values taken from earlier ones, so the last status, user and message
// tags on the page win. A page without any status tag is flagged with
// ParseError and Status UNKNOWN.
func ParseState(page string) domain.RobotState {
	state := domain.RobotState{Status: domain.RobotStatusUnknown}
	found := false

	for _, raw := range strings.Split(page, "\n") {
		line := strings.TrimSpace(raw)

		if strings.Contains(line, inUseTag) {
			state.Status = domain.RobotStatusInUse
			found = true
		}
		if strings.Contains(line, validTag) {
			state.Status = domain.RobotStatusValid
			found = true
		}
		if strings.Contains(line, offTag) {
			state.Status = domain.RobotStatusOff
			found = true
		}
		if v, ok := tagValue(line, userTag); ok {
			state.User = v
		}
		if v, ok := tagValue(line, messageTag); ok {
			state.Message = v
		}
	}

	if !found {
		state.ParseError = true
	}

	return state
}

// tagValue returns the trimmed text after the first occurrence of tag.
func tagValue(line, tag string) (string, bool) {
	idx := strings.Index(line, tag)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+len(tag):]), true
}
