/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package identity keeps the anonymous player id of this device.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LoadOrCreate returns the player id stored at path, creating and persisting
// a new one when the file does not exist yet.
func LoadOrCreate(path string) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read player id: %w", err)
	}

	id := New()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create player id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write player id: %w", err)
	}

	return id, nil
}

// New returns a random UUID, falling back to a timestamp plus random suffix
// when the UUID source fails.
func New() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}

	buf := make([]byte, 6)
	_, _ = rand.Read(buf)

	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(buf)
}

// DefaultPath is where the player id lives when no path is configured.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "yardbox", "player-id")
}
