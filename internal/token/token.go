// Package token generates the shared access secret and persists it for
// operators to hand out.
package token

import (
	"crypto/rand"
	"fmt"
	"os"
)

const rawLen = 16

// Generate returns a fresh access token: 16 random bytes formatted as 32
// uppercase hex characters.
func Generate() (string, error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate random access token: %w", err)
	}
	return fmt.Sprintf("%X", buf), nil
}

// WriteFile stores the token at path. The file contains only the token
// bytes, no trailing newline.
func WriteFile(path, tok string) error {
	if err := os.WriteFile(path, []byte(tok), 0o600); err != nil {
		return fmt.Errorf("could not create token file %s: %w", path, err)
	}
	return nil
}
