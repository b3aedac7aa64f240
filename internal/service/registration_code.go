package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"farmiot/internal/models"
	"farmiot/internal/repository"

	log "github.com/sirupsen/logrus"
)

// DefaultCodeTTL is how long a pairing code stays valid.
const DefaultCodeTTL = 15 * time.Minute

// RegistrationCodeService issues six-digit pairing codes and checks them
// against the code stored for the subject.
type RegistrationCodeService struct {
	store repository.CodeStore
	ttl   time.Duration
	now   func() time.Time
}

func NewRegistrationCodeService(store repository.CodeStore, ttl time.Duration) *RegistrationCodeService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &RegistrationCodeService{store: store, ttl: ttl, now: time.Now}
}

// ComputeCode derives the code for subjectID issued at issuedAt: SHA-256 of
// "{subjectID}-{unix seconds}", first eight bytes big-endian, modulo 10^6.
func ComputeCode(subjectID string, issuedAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", subjectID, issuedAt.Unix())))
	n := binary.BigEndian.Uint64(sum[:8]) % 1_000_000
	return fmt.Sprintf("%06d", n)
}

// Generate issues a fresh code for the subject and stores it, replacing any
// earlier code for the same kind and subject.
func (s *RegistrationCodeService) Generate(ctx context.Context, kind models.SubjectKind, subjectID string) (models.RegistrationCode, error) {
	if err := checkKind(kind); err != nil {
		return models.RegistrationCode{}, err
	}
	if err := models.CheckID(string(kind)+" id", subjectID); err != nil {
		return models.RegistrationCode{}, err
	}
	issued := s.now().UTC().Truncate(time.Second)
	code := models.RegistrationCode{
		Kind:      kind,
		SubjectID: subjectID,
		Code:      ComputeCode(subjectID, issued),
		IssuedAt:  issued,
		ExpiresAt: issued.Add(s.ttl),
	}
	if err := s.store.Put(ctx, code, s.ttl); err != nil {
		return models.RegistrationCode{}, err
	}
	log.WithFields(log.Fields{"kind": kind, "subject_id": subjectID}).Debug("Issued registration code")
	return code, nil
}

// Validate reports whether code is the one issued for this kind and subject
// and is still unexpired at now. A store failure is returned as an error.
func (s *RegistrationCodeService) Validate(ctx context.Context, kind models.SubjectKind, subjectID, code string, now time.Time) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	stored, err := s.store.Get(ctx, kind, subjectID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if stored.Kind != kind || stored.SubjectID != subjectID || stored.Expired(now) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored.Code), []byte(strings.TrimSpace(code))) == 1, nil
}

// Consume removes the code so it cannot authorise a second registration.
func (s *RegistrationCodeService) Consume(ctx context.Context, kind models.SubjectKind, subjectID string) error {
	return s.store.Delete(ctx, kind, subjectID)
}

func checkKind(kind models.SubjectKind) error {
	switch kind {
	case models.SubjectGateway, models.SubjectDevice:
		return nil
	}
	return models.Validationf("unknown registration subject kind %q", kind)
}

// ExpiresIn is the whole number of seconds code remains valid after now.
func ExpiresIn(code models.RegistrationCode, now time.Time) int64 {
	left := code.ExpiresAt.Sub(now).Seconds()
	if left <= 0 {
		return 0
	}
	return int64(math.Ceil(left))
}
