package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ozzus/robot-agent/internal/domain"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		name string
		page string
		want domain.RobotState
	}{
		{
			name: "valid",
			page: "<html>\nSTATE_VALID\n</html>\n",
			want: domain.RobotState{Status: domain.RobotStatusValid},
		},
		{
			name: "in use with user and message",
			page: "STATE_IN_USE\nUSER: alice\nMESSAGE: busy\n",
			want: domain.RobotState{Status: domain.RobotStatusInUse, User: "alice", Message: "busy"},
		},
		{
			name: "last status wins",
			page: "STATE_OFF\nsomething\nSTATE_VALID\n",
			want: domain.RobotState{Status: domain.RobotStatusValid},
		},
		{
			name: "last user and message win",
			page: "USER: bob\nMESSAGE: first\nSTATE_IN_USE\nUSER: carol\nMESSAGE:  second one  \n",
			want: domain.RobotState{Status: domain.RobotStatusInUse, User: "carol", Message: "second one"},
		},
		{
			name: "indented tags",
			page: "   <p>STATE_OFF</p>\n\t USER: dave \n",
			want: domain.RobotState{Status: domain.RobotStatusOff, User: "dave"},
		},
		{
			name: "no status tag",
			page: "USER: eve\nMESSAGE: hello\n",
			want: domain.RobotState{Status: domain.RobotStatusUnknown, User: "eve", Message: "hello", ParseError: true},
		},
		{
			name: "empty page",
			page: "",
			want: domain.RobotState{Status: domain.RobotStatusUnknown, ParseError: true},
		},
		{
			name: "tags are case sensitive",
			page: "state_valid\n",
			want: domain.RobotState{Status: domain.RobotStatusUnknown, ParseError: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseState(tt.page))
		})
	}
}
