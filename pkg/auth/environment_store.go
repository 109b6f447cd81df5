package auth

import (
	"os"
	"time"
)

// apiKeyEnvVars are read in order; the first one set wins
var apiKeyEnvVars = []string{"LADDERHARVEST_API_KEY", "RIOT_API_KEY"}

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the key from the environment under the requested profile name
func (e *EnvironmentStore) Retrieve(profile string) (*Credential, error) {
	key := envAPIKey()
	if key == "" {
		return nil, ErrCredentialsNotFound
	}

	if profile == "" {
		profile = DefaultProfile
	}

	return &Credential{
		Profile:      profile,
		APIKey:       key,
		LastModified: time.Now(),
	}, nil
}

// List returns a single credential if the environment carries a key
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment carries a key
func (e *EnvironmentStore) Exists(profile string) bool {
	return envAPIKey() != ""
}

func envAPIKey() string {
	for _, name := range apiKeyEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
