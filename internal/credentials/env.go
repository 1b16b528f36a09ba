package credentials

import (
	"os"
	"strings"
)

const (
	// TokenEnvVar holds the remote token when no keyring entry exists
	TokenEnvVar = "TASKSYNC_TOKEN"
)

// GetToken retrieves the remote token from the environment
func GetToken() string {
	return strings.TrimSpace(os.Getenv(TokenEnvVar))
}

// HasToken checks if a token is set in the environment
func HasToken() bool {
	return GetToken() != ""
}
