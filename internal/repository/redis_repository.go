package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"farmiot/internal/models"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// RedisCodeStore keeps registration codes under
// registration:{kind}:{subject}:code with the code's TTL, so every replica sees the same issued code.
type RedisCodeStore struct {
	client *redis.Client
}

// RedisOptions configure NewRedisCodeStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCodeStore connects and pings the server.
func NewRedisCodeStore(ctx context.Context, opts RedisOptions) (*RedisCodeStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.WithField("addr", opts.Addr).Errorf("Could not connect to Redis: %v", err)
		_ = client.Close()
		return nil, models.Upstream(models.SubsystemRedis, opts.Addr, err)
	}
	log.Println("Connected to Redis successfully!")
	return &RedisCodeStore{client: client}, nil
}

func codeKey(kind models.SubjectKind, subjectID string) string {
	return fmt.Sprintf("registration:%s:%s:code", kind, subjectID)
}

func (s *RedisCodeStore) Put(ctx context.Context, code models.RegistrationCode, ttl time.Duration) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("encode registration code: %w", err)
	}
	if err := s.client.Set(ctx, codeKey(code.Kind, code.SubjectID), payload, ttl).Err(); err != nil {
		return models.Upstream(models.SubsystemRedis, code.SubjectID, err)
	}
	return nil
}

func (s *RedisCodeStore) Get(ctx context.Context, kind models.SubjectKind, subjectID string) (models.RegistrationCode, error) {
	payload, err := s.client.Get(ctx, codeKey(kind, subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.RegistrationCode{}, fmt.Errorf("%s registration code for %s: %w", kind, subjectID, models.ErrNotFound)
		}
		return models.RegistrationCode{}, models.Upstream(models.SubsystemRedis, subjectID, err)
	}

	var code models.RegistrationCode
	if err := json.Unmarshal(payload, &code); err != nil {
		return models.RegistrationCode{}, fmt.Errorf("decode %s registration code for %s: %w", kind, subjectID, err)
	}
	return code, nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, kind models.SubjectKind, subjectID string) error {
	if err := s.client.Del(ctx, codeKey(kind, subjectID)).Err(); err != nil {
		return models.Upstream(models.SubsystemRedis, subjectID, err)
	}
	return nil
}

func (s *RedisCodeStore) Close() error {
	return s.client.Close()
}
