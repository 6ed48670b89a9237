package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const secretsService = "howdo"

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// fileSecrets keeps secrets in a 0600 JSON file under the data directory,
// keyed by service and account.
type fileSecrets struct {
	path string
}

func newFileSecrets() fileSecrets {
	return fileSecrets{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "howdo", "secrets.json")
}

func (f fileSecrets) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f fileSecrets) Get(service, account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", fmt.Errorf("secrets not available: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func (f fileSecrets) Set(service, account, value string) error {
	secrets, _ := f.read()
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}
