package domain

// AgentRegistrationRequest announces an acquisition agent to the backend.
type AgentRegistrationRequest struct {
	AgentName    string     `json:"agentName"`
	Site         string     `json:"site"`
	Capabilities []TaskType `json:"capabilities"`
}

type AgentRegistrationResponse struct {
	Token string `json:"token"`
}
