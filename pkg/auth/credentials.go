package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultProfile is the profile used when none is named
const DefaultProfile = "default"

// KeyPrefix starts every Riot API key
const KeyPrefix = "RGAPI-"

// DevelopmentKeyLifetime is how long a development key stays valid after it is issued
const DevelopmentKeyLifetime = 24 * time.Hour

// Credential is an API key stored under a profile name
type Credential struct {
	Profile      string    `json:"profile"`
	APIKey       string    `json:"api_key"`
	Development  bool      `json:"development,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Expired reports whether a development key is past its lifetime at now
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves the credential under its profile
	Store(cred *Credential) error

	// Retrieve gets the credential for a profile
	Retrieve(profile string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential for a profile
	Delete(profile string) error

	// Exists checks if a credential exists for a profile
	Exists(profile string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager: system keyring first, then an
// encrypted file, then the environment.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if IsKeyringAvailable() {
		if keyringStore, err := NewKeyringStore(); err == nil {
			stores = append(stores, keyringStore)
		}
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// ValidateAPIKey checks the RGAPI-<uuid> shape of a key without contacting the API
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCredentials)
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		return fmt.Errorf("%w: key must start with %s", ErrInvalidCredentials, KeyPrefix)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(key, KeyPrefix)); err != nil {
		return fmt.Errorf("%w: key body is not a uuid", ErrInvalidCredentials)
	}
	return nil
}

// Store saves the credential using the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil {
		return ErrInvalidCredentials
	}
	if cred.Profile == "" {
		cred.Profile = DefaultProfile
	}
	cred.APIKey = strings.TrimSpace(cred.APIKey)
	if err := ValidateAPIKey(cred.APIKey); err != nil {
		return err
	}

	cred.LastModified = time.Now()
	if cred.Development && cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = cred.LastModified.Add(DevelopmentKeyLifetime)
	}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(cred); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the credential from the first store that has it
func (m *Manager) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(profile); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
}

// RetrieveDefault returns the environment key when set, then the default
// profile, then any stored credential.
func (m *Manager) RetrieveDefault() (*Credential, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if cred, err := envStore.Retrieve(""); err == nil && cred != nil {
			return cred, nil
		}
	}

	if cred, err := m.Retrieve(DefaultProfile); err == nil {
		return cred, nil
	}

	creds, err := m.List()
	if err == nil && len(creds) > 0 {
		return creds[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns all stored credentials from all stores
func (m *Manager) List() ([]*Credential, error) {
	byProfile := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			// Use the most recently modified version
			if existing, ok := byProfile[cred.Profile]; !ok || cred.LastModified.After(existing.LastModified) {
				byProfile[cred.Profile] = cred
			}
		}
	}

	var result []*Credential
	for _, cred := range byProfile {
		result = append(result, cred)
	}

	return result, nil
}

// Delete removes the profile from all stores
func (m *Manager) Delete(profile string) error {
	if profile == "" {
		profile = DefaultProfile
	}

	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch {
	case os.Getenv("LADDERHARVEST_CONFIG_DIR") != "":
		configDir = os.Getenv("LADDERHARVEST_CONFIG_DIR")
	case runtime.GOOS == "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "ladderharvest")
	case runtime.GOOS == "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "ladderharvest")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "ladderharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "ladderharvest")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredential returns a copy of cred with the key masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}

	masked := *cred
	masked.APIKey = maskString(cred.APIKey)
	return &masked
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
