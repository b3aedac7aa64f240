package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"farmiot/internal/models"
	"farmiot/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCodeStore struct{ err error }

func (f failingCodeStore) Put(ctx context.Context, code models.RegistrationCode, ttl time.Duration) error {
	return f.err
}

func (f failingCodeStore) Get(ctx context.Context, kind models.SubjectKind, subjectID string) (models.RegistrationCode, error) {
	return models.RegistrationCode{}, f.err
}

func (f failingCodeStore) Delete(ctx context.Context, kind models.SubjectKind, subjectID string) error {
	return f.err
}

func newTestCodes(now time.Time) *RegistrationCodeService {
	s := NewRegistrationCodeService(repository.NewMemoryCodeStore(), 15*time.Minute)
	s.now = func() time.Time { return now }
	return s
}

func TestComputeCode(t *testing.T) {
	issued := time.Unix(1714564800, 0)
	code := ComputeCode("gw-1", issued)

	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), code)
	assert.Equal(t, code, ComputeCode("gw-1", issued))
	assert.Equal(t, code, ComputeCode("gw-1", issued.Add(300*time.Millisecond)))
	assert.NotEqual(t, code, ComputeCode("gw-2", issued))
}

func TestGenerate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestCodes(now)

	code, err := s.Generate(context.Background(), models.SubjectGateway, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubjectGateway, code.Kind)
	assert.Equal(t, "gw-1", code.SubjectID)
	assert.True(t, now.Equal(code.IssuedAt))
	assert.True(t, now.Add(15*time.Minute).Equal(code.ExpiresAt))
	assert.Equal(t, ComputeCode("gw-1", now), code.Code)
	assert.Equal(t, int64(900), ExpiresIn(code, now))

	cases := []struct {
		name    string
		kind    models.SubjectKind
		subject string
	}{
		{name: "blank subject", kind: models.SubjectGateway, subject: " "},
		{name: "path separator", kind: models.SubjectDevice, subject: "a/b"},
		{name: "unknown kind", kind: "sensor", subject: "gw-1"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Generate(context.Background(), tt.kind, tt.subject)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestValidate_Expiry(t *testing.T) {
	issued := time.Now().UTC()
	s := newTestCodes(issued)
	code, err := s.Generate(context.Background(), models.SubjectDevice, "dev-1")
	require.NoError(t, err)
	issued = code.IssuedAt

	ok, err := s.Validate(context.Background(), models.SubjectDevice, "dev-1", code.Code, issued.Add(14*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Validate(context.Background(), models.SubjectDevice, "dev-1", code.Code, issued.Add(16*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_ComparesAgainstIssuedCode(t *testing.T) {
	now := time.Now().UTC()
	s := newTestCodes(now)
	ctx := context.Background()

	code, err := s.Generate(ctx, models.SubjectGateway, "gw-1")
	require.NoError(t, err)

	wrong := "000000"
	if code.Code == wrong {
		wrong = "000001"
	}

	cases := []struct {
		name    string
		kind    models.SubjectKind
		subject string
		code    string
		want    bool
	}{
		{name: "issued code", kind: models.SubjectGateway, subject: "gw-1", code: code.Code, want: true},
		{name: "surrounding space", kind: models.SubjectGateway, subject: "gw-1", code: " " + code.Code + " ", want: true},
		{name: "well formed but wrong", kind: models.SubjectGateway, subject: "gw-1", code: wrong, want: false},
		{name: "other subject", kind: models.SubjectGateway, subject: "gw-2", code: code.Code, want: false},
		{name: "same id other kind", kind: models.SubjectDevice, subject: "gw-1", code: code.Code, want: false},
		{name: "empty", kind: models.SubjectGateway, subject: "gw-1", code: "", want: false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.Validate(ctx, tt.kind, tt.subject, tt.code, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestConsume_PreventsReplay(t *testing.T) {
	now := time.Now().UTC()
	s := newTestCodes(now)
	ctx := context.Background()

	code, err := s.Generate(ctx, models.SubjectGateway, "gw-1")
	require.NoError(t, err)
	require.NoError(t, s.Consume(ctx, models.SubjectGateway, "gw-1"))

	ok, err := s.Validate(ctx, models.SubjectGateway, "gw-1", code.Code, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_StoreFailure(t *testing.T) {
	down := errors.New("redis down")
	s := NewRegistrationCodeService(failingCodeStore{err: down}, 0)

	_, err := s.Validate(context.Background(), models.SubjectGateway, "gw-1", "123456", time.Now())
	assert.ErrorIs(t, err, down)

	_, err = s.Generate(context.Background(), models.SubjectGateway, "gw-1")
	assert.ErrorIs(t, err, down)
}

func TestExpiresIn(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	code := models.RegistrationCode{ExpiresAt: now.Add(90 * time.Second)}

	assert.Equal(t, int64(90), ExpiresIn(code, now))
	assert.Equal(t, int64(1), ExpiresIn(code, now.Add(89500*time.Millisecond)))
	assert.Equal(t, int64(0), ExpiresIn(code, now.Add(2*time.Minute)))
}
