package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"farmiot/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// PendingRegistry remembers devices a gateway has discovered but nobody has
// claimed yet. Entries live in process memory until their code expires or
// the device registers.
type PendingRegistry struct {
	codes *RegistrationCodeService
	now   func() time.Time

	mu        sync.Mutex
	byGateway map[string][]models.PendingRegistration
}

func NewPendingRegistry(codes *RegistrationCodeService) *PendingRegistry {
	return &PendingRegistry{
		codes:     codes,
		now:       time.Now,
		byGateway: make(map[string][]models.PendingRegistration),
	}
}

// Announce records an unclaimed device for a gateway and issues its code.
// A device announced again replaces its earlier entry.
func (p *PendingRegistry) Announce(ctx context.Context, req models.AnnounceDeviceRequest) (models.PendingRegistration, error) {
	gatewayID := strings.TrimSpace(req.GatewayID)
	if err := models.CheckID("gatewayId", gatewayID); err != nil {
		return models.PendingRegistration{}, err
	}
	id := strings.TrimSpace(req.DeviceID)
	if id == "" {
		id = uuid.NewString()
	} else if err := models.CheckID("deviceId", id); err != nil {
		return models.PendingRegistration{}, err
	}
	deviceType := strings.TrimSpace(req.Type)
	if deviceType == "" {
		deviceType = models.DefaultDeviceType
	}

	code, err := p.codes.Generate(ctx, models.SubjectDevice, id)
	if err != nil {
		return models.PendingRegistration{}, err
	}
	entry := models.PendingRegistration{
		ID:               id,
		Type:             deviceType,
		RegistrationCode: code.Code,
		GatewayID:        gatewayID,
		AnnouncedAt:      p.now(),
		ExpiresAt:        code.ExpiresAt,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.live(gatewayID)
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	p.byGateway[gatewayID] = append(kept, entry)

	log.WithFields(log.Fields{"gateway_id": gatewayID, "device_id": id}).Info("Device announced for registration")
	return entry, nil
}

// Latest returns the most recently announced device still waiting on the
// gateway.
func (p *PendingRegistry) Latest(gatewayID string) (models.PendingRegistration, error) {
	if err := models.CheckID("gatewayId", gatewayID); err != nil {
		return models.PendingRegistration{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.live(gatewayID)
	if len(entries) == 0 {
		return models.PendingRegistration{}, fmt.Errorf("pending registration for gateway %s: %w", gatewayID, models.ErrNotFound)
	}
	return entries[len(entries)-1], nil
}

// Find returns the pending entry for one device.
func (p *PendingRegistry) Find(gatewayID, deviceID string) (models.PendingRegistration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.live(gatewayID) {
		if e.ID == deviceID {
			return e, true
		}
	}
	return models.PendingRegistration{}, false
}

// Remove drops a device once it has been claimed.
func (p *PendingRegistry) Remove(gatewayID, deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.byGateway[gatewayID]
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != deviceID {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(p.byGateway, gatewayID)
		return
	}
	p.byGateway[gatewayID] = kept
}

// live prunes expired entries of a gateway. Callers hold mu.
func (p *PendingRegistry) live(gatewayID string) []models.PendingRegistration {
	now := p.now()
	entries := p.byGateway[gatewayID]
	kept := entries[:0]
	for _, e := range entries {
		if !now.After(e.ExpiresAt) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(p.byGateway, gatewayID)
		return nil
	}
	p.byGateway[gatewayID] = kept
	return kept
}
