package tracker

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
)

// Password returns the shared password, or the default when none is set.
func (s *Service) Password(_ context.Context) string {
	pw := localstore.Get(s.store, models.KeyPassword, "")
	if pw == "" {
		return models.DefaultPassword
	}
	return pw
}

// CheckPassword reports whether candidate matches the stored password.
func (s *Service) CheckPassword(ctx context.Context, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.Password(ctx))) == 1
}

// SetPassword replaces the password. confirm must repeat it.
func (s *Service) SetPassword(_ context.Context, password, confirm string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", apperr.ErrInvalid)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", apperr.ErrInvalid)
	}
	if err := s.store.Set(models.KeyPassword, password); err != nil {
		return fmt.Errorf("tracker: set password: %w", err)
	}
	return nil
}
