package credentials

import (
	"errors"
	"fmt"

	"tasksync/internal/utils"
)

// Source indicates where a token was found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceConfig  Source = "config"
	SourceNone    Source = "none"
)

// Credentials is the resolved identity sent to the remote
type Credentials struct {
	UserID string
	Token  string
	Source Source
}

// Resolver finds the remote token, in priority order:
// keyring, then TASKSYNC_TOKEN, then the config file.
type Resolver struct {
	keyringAvailable func() bool
	keyringGet       func(userID string) (string, error)
}

// NewResolver creates a resolver backed by the OS keyring
func NewResolver() *Resolver {
	return &Resolver{
		keyringAvailable: IsAvailable,
		keyringGet:       Get,
	}
}

// Resolve returns the token for userID. configToken is the fallback from the
// config file. A remote without authentication is allowed, so finding nothing
// returns SourceNone with an empty token rather than an error.
func (r *Resolver) Resolve(userID, configToken string) (*Credentials, error) {
	if userID == "" {
		return nil, utils.ErrMissingUserID()
	}

	creds := &Credentials{UserID: userID, Source: SourceNone}

	if r.keyringAvailable() {
		token, err := r.keyringGet(userID)
		switch {
		case err == nil:
			creds.Token = token
			creds.Source = SourceKeyring
			return creds, nil
		case !errors.Is(err, ErrNotFound):
			utils.Debugf("Keyring lookup for %s failed, trying environment: %v", userID, err)
		}
	}

	if token := GetToken(); token != "" {
		creds.Token = token
		creds.Source = SourceEnv
		return creds, nil
	}

	if configToken != "" {
		creds.Token = configToken
		creds.Source = SourceConfig
		return creds, nil
	}

	return creds, nil
}

// MustResolve is Resolve but fails when no token was found
func (r *Resolver) MustResolve(userID, configToken string) (*Credentials, error) {
	creds, err := r.Resolve(userID, configToken)
	if err != nil {
		return nil, err
	}
	if creds.Source == SourceNone {
		return nil, fmt.Errorf("resolve token: %w", utils.ErrCredentialsNotFound(userID))
	}
	return creds, nil
}
