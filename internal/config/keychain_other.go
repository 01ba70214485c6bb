//go:build !darwin

package config

import "path/filepath"

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return secretsFile{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := xdgDir("XDG_DATA_HOME", ".local", "share")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "reuse", "secrets.json")
}
