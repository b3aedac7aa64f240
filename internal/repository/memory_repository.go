package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"farmiot/internal/models"
)

type gatewayKey struct{ userID, gatewayID string }

type deviceKey struct{ userID, gatewayID, deviceID string }

// MemoryDocumentRepository keeps the ownership hierarchy in process memory.
// It backs local runs with documentstore:driver=memory and the tests.
type MemoryDocumentRepository struct {
	users    map[string]models.User
	gateways map[gatewayKey]models.Gateway
	devices  map[deviceKey]models.Device
	now      func() time.Time
	sync.RWMutex
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{
		users:    make(map[string]models.User),
		gateways: make(map[gatewayKey]models.Gateway),
		devices:  make(map[deviceKey]models.Device),
		now:      time.Now,
	}
}

func (s *MemoryDocumentRepository) EnsureUser(ctx context.Context, userID string) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = models.User{ID: userID, CreatedAt: s.now().UTC()}
	}
	return nil
}

// HasUser reports whether EnsureUser ran for userID.
func (s *MemoryDocumentRepository) HasUser(userID string) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.users[userID]
	return ok
}

func (s *MemoryDocumentRepository) GetGateway(ctx context.Context, userID, gatewayID string) (models.Gateway, error) {
	s.RLock()
	defer s.RUnlock()
	if g, ok := s.gateways[gatewayKey{userID, gatewayID}]; ok {
		return g, nil
	}
	return models.Gateway{}, fmt.Errorf("gateway %s: %w", gatewayID, models.ErrNotFound)
}

func (s *MemoryDocumentRepository) CreateGateway(ctx context.Context, gateway models.Gateway) error {
	s.Lock()
	defer s.Unlock()
	key := gatewayKey{gateway.UserID, gateway.ID}
	if _, ok := s.gateways[key]; ok {
		return fmt.Errorf("gateway %s: %w", gateway.ID, models.ErrConflict)
	}
	s.gateways[key] = gateway
	return nil
}

func (s *MemoryDocumentRepository) ListGateways(ctx context.Context, userID string) ([]models.Gateway, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]models.Gateway, 0)
	for k, g := range s.gateways {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out, nil
}

func (s *MemoryDocumentRepository) RenameGateway(ctx context.Context, userID, gatewayID, name string) error {
	s.Lock()
	defer s.Unlock()
	key := gatewayKey{userID, gatewayID}
	g, ok := s.gateways[key]
	if !ok {
		return fmt.Errorf("gateway %s: %w", gatewayID, models.ErrNotFound)
	}
	g.Name = name
	s.gateways[key] = g
	return nil
}

func (s *MemoryDocumentRepository) GetDevice(ctx context.Context, userID, gatewayID, deviceID string) (models.Device, error) {
	s.RLock()
	defer s.RUnlock()
	if d, ok := s.devices[deviceKey{userID, gatewayID, deviceID}]; ok {
		return d, nil
	}
	return models.Device{}, fmt.Errorf("device %s: %w", deviceID, models.ErrNotFound)
}

func (s *MemoryDocumentRepository) CreateDevice(ctx context.Context, device models.Device) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.gateways[gatewayKey{device.UserID, device.GatewayID}]; !ok {
		return fmt.Errorf("gateway %s: %w", device.GatewayID, models.ErrNotFound)
	}
	key := deviceKey{device.UserID, device.GatewayID, device.ID}
	if _, ok := s.devices[key]; ok {
		return fmt.Errorf("device %s: %w", device.ID, models.ErrConflict)
	}
	s.devices[key] = device
	return nil
}

func (s *MemoryDocumentRepository) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]models.Device, 0)
	for k, d := range s.devices {
		if k.userID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GatewayID != out[j].GatewayID {
			return out[i].GatewayID < out[j].GatewayID
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out, nil
}

// MemoryCodeStore is a CodeStore for single-process deployments and tests.
// Expired entries are dropped lazily on read.
type MemoryCodeStore struct {
	codes map[codeKeyOf]memoryCode
	now   func() time.Time
	sync.Mutex
}

type codeKeyOf struct {
	kind      models.SubjectKind
	subjectID string
}

type memoryCode struct {
	code    models.RegistrationCode
	evictAt time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[codeKeyOf]memoryCode), now: time.Now}
}

// WithClock replaces the clock used for eviction.
func (s *MemoryCodeStore) WithClock(now func() time.Time) *MemoryCodeStore {
	s.now = now
	return s
}

func (s *MemoryCodeStore) Put(ctx context.Context, code models.RegistrationCode, ttl time.Duration) error {
	s.Lock()
	defer s.Unlock()
	s.codes[codeKeyOf{code.Kind, code.SubjectID}] = memoryCode{code: code, evictAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(ctx context.Context, kind models.SubjectKind, subjectID string) (models.RegistrationCode, error) {
	s.Lock()
	defer s.Unlock()
	key := codeKeyOf{kind, subjectID}
	entry, ok := s.codes[key]
	if ok && s.now().After(entry.evictAt) {
		delete(s.codes, key)
		ok = false
	}
	if !ok {
		return models.RegistrationCode{}, fmt.Errorf("%s registration code for %s: %w", kind, subjectID, models.ErrNotFound)
	}
	return entry.code, nil
}

func (s *MemoryCodeStore) Delete(ctx context.Context, kind models.SubjectKind, subjectID string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.codes, codeKeyOf{kind, subjectID})
	return nil
}
