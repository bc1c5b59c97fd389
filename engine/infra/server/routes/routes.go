package routes

// Version is the API version segment used in routing.
const Version = "v0"

// Base returns the versioned API base path (e.g., "/api/v0").
func Base() string {
	return "/api/" + Version
}

// Ask is the mode-selected question endpoint.
func Ask() string {
	return "/ask"
}

// SingleAsk returns the single-turn question endpoint.
func SingleAsk() string {
	return Base() + "/ask"
}

// ChatAsk returns the conversational question endpoint.
func ChatAsk() string {
	return Base() + "/chat/ask"
}

func Health() string {
	return "/health"
}

// HealthVersioned returns the health endpoint under the API base.
func HealthVersioned() string {
	return Base() + "/health"
}
