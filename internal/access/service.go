// Package access decides who may talk to the bot and who may run admin commands.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	ReasonNotRegistered = "Вы не зарегистрированы! Введите /start для начала регистрации."
	ReasonNotAdmin      = "Эта команда доступна только администраторам."
)

// Registry answers whether a user completed registration.
type Registry interface {
	IsRegistered(ctx context.Context, userID int64) (bool, error)
}

// Service checks membership against the user store and admin rights against
// the configured admin list.
type Service struct {
	registry Registry
	admins   map[int64]struct{}
	logger   zerolog.Logger
}

func NewService(registry Registry, admins []int64, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	set := make(map[int64]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return &Service{
		registry: registry,
		admins:   set,
		logger:   logger.With().Str("component", "access").Logger(),
	}
}

// IsAdmin checks if a user is in the admin list.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// AdminIDs returns the configured admins in no particular order.
func (s *Service) AdminIDs() []int64 {
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	return ids
}

// Middleware rejects users that have not registered yet.
func (s *Service) Middleware(ctx context.Context, userID int64) error {
	ok, err := s.registry.IsRegistered(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking registration: %w", err)
	}
	if !ok {
		s.logger.Debug().Int64("user_id", userID).Msg("unregistered user rejected")
		return &AccessDeniedError{Reason: ReasonNotRegistered}
	}
	return nil
}

// AdminMiddleware rejects users outside the admin list.
func (s *Service) AdminMiddleware(userID int64) error {
	if !s.IsAdmin(userID) {
		s.logger.Warn().Int64("user_id", userID).Msg("admin command denied")
		return &AccessDeniedError{Reason: ReasonNotAdmin}
	}
	return nil
}

// AccessDeniedError is returned when user access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
