package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name every tasksync token is stored under
	KeyringService = "tasksync"
)

// ErrNotFound is returned when the keyring holds no token for a user
var ErrNotFound = errors.New("no token in keyring")

// Set stores the remote token for userID in the OS keyring
func Set(userID, token string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if err := keyring.Set(KeyringService, userID, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Get retrieves the remote token for userID from the OS keyring
func Get(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}

	token, err := keyring.Get(KeyringService, userID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w for user %q", ErrNotFound, userID)
		}
		return "", fmt.Errorf("failed to retrieve token from keyring: %w", err)
	}
	return token, nil
}

// Delete removes the remote token for userID from the OS keyring
func Delete(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	if err := keyring.Delete(KeyringService, userID); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w for user %q", ErrNotFound, userID)
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the keyring is accessible.
// A lookup of an unknown entry answers ErrNotFound only when the keyring works.
func IsAvailable() bool {
	_, err := keyring.Get(KeyringService+"-probe", "probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
