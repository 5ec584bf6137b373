package domain

import "time"

// RobotID names one candidate robot: the parameter registry (ROS master)
// that identifies it and the control endpoint that hands out ownership.
// An empty URI means the robot does not expose that service.
type RobotID struct {
	MasterURI  string `json:"master_uri,omitempty"`
	ControlURI string `json:"control_uri,omitempty"`
}

func NewRobotID(masterURI, controlURI string) RobotID {
	return RobotID{MasterURI: masterURI, ControlURI: controlURI}
}

func (id RobotID) HasMaster() bool {
	return id.MasterURI != ""
}

func (id RobotID) HasControl() bool {
	return id.ControlURI != ""
}

func (id RobotID) String() string {
	if id.ControlURI == "" {
		return id.MasterURI
	}
	return id.MasterURI + " (control " + id.ControlURI + ")"
}

// RobotDescription is the identity a parameter registry reported for a robot.
type RobotDescription struct {
	Robot        RobotID   `json:"robot"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

type RobotStatus string

const (
	RobotStatusInUse   RobotStatus = "IN_USE"
	RobotStatusOff     RobotStatus = "OFF"
	RobotStatusValid   RobotStatus = "VALID"
	RobotStatusUnknown RobotStatus = "UNKNOWN"
)

// RobotState is one snapshot of a control endpoint page.
type RobotState struct {
	Status     RobotStatus `json:"status"`
	User       string      `json:"user,omitempty"`
	Message    string      `json:"message,omitempty"`
	ParseError bool        `json:"parse_error,omitempty"`
}
