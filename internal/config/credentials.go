package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// KeysURL is where platform credentials are issued.
const KeysURL = "https://www.chanjing.cc/platform/api_keys"

// Credentials identify an API account. They are reloaded from disk on
// every token request so out-of-band edits take effect without a
// restart.
type Credentials struct {
	AppID     string `json:"app_id"`
	SecretKey string `json:"secret_key"`
}

// Fingerprint returns a deterministic hash of the credential fields,
// used to detect credential changes and to bind issued tokens to the
// credentials that produced them.
func (c Credentials) Fingerprint() string {
	sum := md5.Sum([]byte(c.AppID + ":" + c.SecretKey))
	return hex.EncodeToString(sum[:])
}

// LoadCredentials reads and validates the credential file at path.
// Missing files, malformed JSON, empty fields, and sample placeholder
// values are all reported with remediation guidance.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return creds, fmt.Errorf(
				"credential file %s not found; create it with `cicada config init` and fill in the app_id and secret_key issued at %s",
				path, KeysURL)
		}
		return creds, fmt.Errorf("read credential file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("credential file %s is not valid JSON: %w", path, err)
	}

	creds.AppID = strings.TrimSpace(creds.AppID)
	creds.SecretKey = strings.TrimSpace(creds.SecretKey)

	if creds.AppID == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf(
			"credential file %s has an empty app_id or secret_key; obtain credentials at %s",
			path, KeysURL)
	}
	if strings.Contains(creds.AppID, "your_") || strings.Contains(creds.SecretKey, "your_") {
		return Credentials{}, fmt.Errorf(
			"credential file %s still contains sample placeholders; replace them with the real app_id and secret_key from %s",
			path, KeysURL)
	}

	return creds, nil
}

// WriteCredentialsTemplate writes a placeholder credential file for the
// user to fill in. Existing files are left untouched.
func WriteCredentialsTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat credential file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create credential directory: %w", err)
		}
	}

	template := Credentials{AppID: "your_app_id", SecretKey: "your_secret_key"}
	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential template: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write credential template: %w", err)
	}
	return nil
}
