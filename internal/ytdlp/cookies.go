package ytdlp

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteCookies materializes the cookie jar carried in envVar to a file
// the downloader can read via --cookies. It returns "" when the variable
// is unset or empty.
func WriteCookies(name, envVar string) (string, error) {
	if envVar == "" {
		return "", nil
	}
	raw := os.Getenv(envVar)
	if raw == "" {
		return "", nil
	}
	path := filepath.Join(os.TempDir(), name+"-cookies.txt")
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		return "", fmt.Errorf("write cookies: %w", err)
	}
	return path, nil
}
