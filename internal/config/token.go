package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// APITokenEnv overrides the stored management API token.
const APITokenEnv = "REUSE_API_TOKEN"

// GetAPIToken returns the bearer token guarding the local API. The first
// call generates a random token and stores it in kc.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv(APITokenEnv); tok != "" {
		return tok, nil
	}

	tok, err := kc.Get(secretService, apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading api token: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
