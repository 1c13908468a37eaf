package substack

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/herald/internal/apperr"
)

// AuthProvider supplies the session credential for the remote platform.
type AuthProvider interface {
	ObtainCredential(ctx context.Context) (string, error)
}

// StaticCredential is a credential taken from configuration.
type StaticCredential string

// ObtainCredential returns the configured value, or ErrSessionInvalid when empty.
func (s StaticCredential) ObtainCredential(context.Context) (string, error) {
	v := strings.TrimSpace(string(s))
	if v == "" {
		return "", fmt.Errorf("no session cookie configured: %w", apperr.ErrSessionInvalid)
	}
	return v, nil
}
