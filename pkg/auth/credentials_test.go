package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testKey = "RGAPI-0b7c6a4e-5f38-4d2a-9a61-2c1e8d3f4b57"

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	cred := &Credential{APIKey: "  " + testKey + "\n", Development: true}

	if err := manager.Store(cred); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	retrieved, err := manager.Retrieve(DefaultProfile)
	if err != nil {
		t.Fatalf("Failed to retrieve credential: %v", err)
	}

	if retrieved.Profile != DefaultProfile {
		t.Errorf("Profile mismatch: got %s, want %s", retrieved.Profile, DefaultProfile)
	}
	if retrieved.APIKey != testKey {
		t.Errorf("Key was not trimmed: got %q", retrieved.APIKey)
	}
	if retrieved.ExpiresAt.Sub(retrieved.LastModified) != DevelopmentKeyLifetime {
		t.Errorf("Development key expiry not set: %v", retrieved.ExpiresAt)
	}
	if retrieved.Expired(time.Now()) {
		t.Error("Fresh key should not be expired")
	}
	if !retrieved.Expired(time.Now().Add(25 * time.Hour)) {
		t.Error("Development key should expire after a day")
	}

	creds, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list credentials: %v", err)
	}
	if len(creds) != 1 {
		t.Errorf("Expected 1 credential in list, got %d", len(creds))
	}

	sanitized := SanitizeCredential(retrieved)
	if sanitized.APIKey == retrieved.APIKey {
		t.Error("APIKey should be masked")
	}
	if !strings.HasPrefix(sanitized.APIKey, "RGAP") || !strings.HasSuffix(sanitized.APIKey, "4b57") {
		t.Errorf("Unexpected mask: %s", sanitized.APIKey)
	}
	if sanitized.Profile != retrieved.Profile {
		t.Error("Profile should not be masked")
	}

	if err := manager.Delete(""); err != nil {
		t.Errorf("Failed to delete credential: %v", err)
	}

	if _, err := manager.Retrieve(DefaultProfile); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound after deletion, got %v", err)
	}

	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 credentials after deletion, got %d", mockStore.Count())
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{testKey, true},
		{"", false},
		{"0b7c6a4e-5f38-4d2a-9a61-2c1e8d3f4b57", false},
		{"RGAPI-not-a-uuid", false},
		{"rgapi-0b7c6a4e-5f38-4d2a-9a61-2c1e8d3f4b57", false},
	}

	for _, tt := range tests {
		err := ValidateAPIKey(tt.key)
		if tt.valid && err != nil {
			t.Errorf("ValidateAPIKey(%q) = %v, want nil", tt.key, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("ValidateAPIKey(%q) = %v, want ErrInvalidCredentials", tt.key, err)
		}
	}
}

func TestManagerRejectsMalformedKey(t *testing.T) {
	manager, mockStore := NewMockManager()

	if err := manager.Store(&Credential{APIKey: "hunter2"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if mockStore.Count() != 0 {
		t.Error("Malformed key must not be stored")
	}
}

func TestEncryptedFileStore(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "credentials.enc")
	t.Setenv("LADDERHARVEST_PASSPHRASE", "test_passphrase_123")

	store, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	cred := &Credential{Profile: "prod", APIKey: testKey}
	if err := store.Store(cred); err != nil {
		t.Fatalf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("prod")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.APIKey != cred.APIKey {
		t.Errorf("APIKey mismatch after encryption/decryption")
	}

	fileContent, err := os.ReadFile(tempFile)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(fileContent, []byte(testKey)) {
		t.Error("File contains plaintext API key")
	}

	// A different passphrase cannot read the file
	t.Setenv("LADDERHARVEST_PASSPHRASE", "wrong")
	other, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Retrieve("prod"); err == nil {
		t.Error("Expected decryption failure with the wrong passphrase")
	}

	t.Setenv("LADDERHARVEST_PASSPHRASE", "test_passphrase_123")
	if err := store.Delete("prod"); err != nil {
		t.Errorf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(tempFile); !os.IsNotExist(err) {
		t.Error("Deleting the last profile should remove the file")
	}
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LADDERHARVEST_PASSPHRASE", "")

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}
	if err := store.Store(&Credential{Profile: DefaultProfile, APIKey: testKey}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	if err != nil {
		t.Fatalf("Passphrase file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Passphrase file mode = %v, want 0600", info.Mode().Perm())
	}

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Exists(DefaultProfile) {
		t.Error("Reopened store should read the saved credential")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("LADDERHARVEST_API_KEY", "")
	t.Setenv("RIOT_API_KEY", testKey)

	store := NewEnvironmentStore()

	cred, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if cred.APIKey != testKey {
		t.Errorf("APIKey mismatch: got %s", cred.APIKey)
	}
	if cred.Profile != DefaultProfile {
		t.Errorf("Profile mismatch: got %s", cred.Profile)
	}

	t.Setenv("LADDERHARVEST_API_KEY", "RGAPI-override")
	cred, _ = store.Retrieve("")
	if cred.APIKey != "RGAPI-override" {
		t.Errorf("Prefixed variable should win, got %s", cred.APIKey)
	}

	if err := store.Store(&Credential{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
}

func TestRetrieveDefaultPrefersEnvironment(t *testing.T) {
	t.Setenv("LADDERHARVEST_API_KEY", "")
	t.Setenv("RIOT_API_KEY", "")

	mock := NewMockStore()
	manager := NewManagerWithStores(mock, NewEnvironmentStore())

	if _, err := manager.RetrieveDefault(); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}

	if err := manager.Store(&Credential{Profile: "prod", APIKey: testKey}); err != nil {
		t.Fatal(err)
	}
	cred, err := manager.RetrieveDefault()
	if err != nil || cred.Profile != "prod" {
		t.Errorf("Expected stored profile, got %v, %v", cred, err)
	}

	t.Setenv("RIOT_API_KEY", "RGAPI-from-env")
	cred, err = manager.RetrieveDefault()
	if err != nil || cred.APIKey != "RGAPI-from-env" {
		t.Errorf("Expected environment key, got %v, %v", cred, err)
	}
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	failing := NewMockStore()
	failing.StoreError = fmt.Errorf("keychain locked")
	fallback := NewMockStore()

	manager := NewManagerWithStores(failing, fallback)
	if err := manager.Store(&Credential{APIKey: testKey}); err != nil {
		t.Fatalf("Store should fall back: %v", err)
	}
	if fallback.Count() != 1 {
		t.Errorf("Expected fallback store to hold the key, got %d", fallback.Count())
	}
}

func TestShowAPIKeyGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowAPIKeyGuide(&buf)

	if !strings.Contains(buf.String(), "developer.riotgames.com") {
		t.Error("Guide should point at the developer portal")
	}
}
