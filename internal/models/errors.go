package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrConflict                = errors.New("already registered")
	ErrNotFound                = errors.New("not found")
	ErrInvalidRegistrationCode = fmt.Errorf("%w: invalid or expired registration code", ErrValidation)
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrUpstreamTimeout         = fmt.Errorf("%w: timed out or cancelled", ErrUpstreamUnavailable)
	ErrAuthenticationGap       = errors.New("upstream permission denied")
)

// Subsystem names used when wrapping upstream failures.
const (
	SubsystemInfluxDB      = "influxdb"
	SubsystemFirestore     = "firestore"
	SubsystemRedis         = "redis"
	SubsystemSecretManager = "secretmanager"
	SubsystemMQTT          = "mqtt"
)

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Upstream wraps err from subsystem with the subject id. Context
// cancellation and deadlines become ErrUpstreamTimeout so callers can retry.
// Errors already classified by an adapter keep their class.
func Upstream(subsystem, subject string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s %s: %w: %v", subsystem, subject, ErrUpstreamTimeout, err)
	case errors.Is(err, ErrAuthenticationGap),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict):
		return fmt.Errorf("%s %s: %w", subsystem, subject, err)
	}
	return fmt.Errorf("%s %s: %w: %v", subsystem, subject, ErrUpstreamUnavailable, err)
}
