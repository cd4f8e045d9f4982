package instance

import (
	"os"
	"strings"
)

const fallbackID = "carbridge-0"

// ID identifies this process in lock owners and log fields. It prefers
// CARBRIDGE_INSTANCE_ID, then the host name (the pod name on Cloud Run/GKE).
func ID() string {
	if id := strings.TrimSpace(os.Getenv("CARBRIDGE_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
