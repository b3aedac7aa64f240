package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"farmiot/internal/metrics"
	"farmiot/internal/models"
	"farmiot/internal/repository"

	log "github.com/sirupsen/logrus"
)

// ProvisioningService runs the gateway then device registration workflow
// against the document store.
type ProvisioningService struct {
	docs    repository.DocumentRepository
	codes   *RegistrationCodeService
	pending *PendingRegistry
	now     func() time.Time
}

func NewProvisioningService(docs repository.DocumentRepository, codes *RegistrationCodeService, pending *PendingRegistry) *ProvisioningService {
	return &ProvisioningService{docs: docs, codes: codes, pending: pending, now: time.Now}
}

// EnsureUser creates the user document on first contact. Safe to call on
// every request.
func (s *ProvisioningService) EnsureUser(ctx context.Context, userID string) error {
	if err := models.CheckID("userId", userID); err != nil {
		return err
	}
	return s.docs.EnsureUser(ctx, userID)
}

// RegisterGateway claims a gateway for userID. A gateway already registered
// for the user is rejected with ErrConflict, never overwritten.
func (s *ProvisioningService) RegisterGateway(ctx context.Context, userID string, req models.RegisterGatewayRequest) (models.Gateway, error) {
	gatewayID := strings.TrimSpace(req.GatewayID)
	if err := checkIDs("userId", userID, "gatewayId", gatewayID); err != nil {
		return models.Gateway{}, err
	}
	if strings.TrimSpace(req.RegistrationCode) == "" {
		return models.Gateway{}, models.Validationf("registrationCode is required")
	}

	if err := s.EnsureUser(ctx, userID); err != nil {
		return models.Gateway{}, err
	}
	if err := s.ensureAbsent(s.docs.GetGateway(ctx, userID, gatewayID)); err != nil {
		return models.Gateway{}, s.failed("gateway", fmt.Errorf("gateway %s: %w", gatewayID, err))
	}
	if err := s.checkCode(ctx, models.SubjectGateway, gatewayID, req.RegistrationCode); err != nil {
		return models.Gateway{}, s.failed("gateway", err)
	}

	gatewayType := orDefault(req.Type, models.DefaultGatewayType)
	gateway := models.Gateway{
		ID:       gatewayID,
		Name:     orDefault(req.GatewayName, gatewayType+" "+gatewayID),
		Type:     gatewayType,
		Location: orDefault(req.Location, models.DefaultLocation),
		UserID:   userID,
	}
	if err := s.docs.CreateGateway(ctx, gateway); err != nil {
		return models.Gateway{}, s.failed("gateway", err)
	}
	s.consume(ctx, models.SubjectGateway, gatewayID)

	metrics.Registrations.WithLabelValues("gateway", "success").Inc()
	log.WithFields(log.Fields{"user_id": userID, "gateway_id": gatewayID}).Info("Gateway registered")
	return gateway, nil
}

// RegisterDevice claims a device under one of the user's gateways. The
// gateway must already be registered for the same user.
func (s *ProvisioningService) RegisterDevice(ctx context.Context, userID string, req models.RegisterDeviceRequest) (models.Device, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	gatewayID := strings.TrimSpace(req.GatewayID)
	if err := checkIDs("userId", userID, "deviceId", deviceID, "gatewayId", gatewayID); err != nil {
		return models.Device{}, err
	}
	if strings.TrimSpace(req.RegistrationCode) == "" {
		return models.Device{}, models.Validationf("registrationCode is required")
	}

	if err := s.EnsureUser(ctx, userID); err != nil {
		return models.Device{}, err
	}
	if _, err := s.docs.GetGateway(ctx, userID, gatewayID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = fmt.Errorf("gateway %s is not registered: %w", gatewayID, models.ErrNotFound)
		}
		return models.Device{}, s.failed("device", err)
	}
	if err := s.ensureAbsent(s.docs.GetDevice(ctx, userID, gatewayID, deviceID)); err != nil {
		return models.Device{}, s.failed("device", fmt.Errorf("device %s: %w", deviceID, err))
	}
	if err := s.checkCode(ctx, models.SubjectDevice, deviceID, req.RegistrationCode); err != nil {
		return models.Device{}, s.failed("device", err)
	}

	deviceType := models.DefaultDeviceType
	if s.pending != nil {
		if entry, ok := s.pending.Find(gatewayID, deviceID); ok {
			deviceType = entry.Type
		}
	}
	device := models.Device{
		ID:           deviceID,
		Name:         orDefault(req.DeviceName, deviceType+" "+deviceID),
		Type:         deviceType,
		Location:     orDefault(req.Location, models.DefaultLocation),
		GatewayID:    gatewayID,
		UserID:       userID,
		IsRegistered: true,
	}
	if err := s.docs.CreateDevice(ctx, device); err != nil {
		return models.Device{}, s.failed("device", err)
	}
	s.consume(ctx, models.SubjectDevice, deviceID)
	if s.pending != nil {
		s.pending.Remove(gatewayID, deviceID)
	}

	metrics.Registrations.WithLabelValues("device", "success").Inc()
	log.WithFields(log.Fields{"user_id": userID, "gateway_id": gatewayID, "device_id": deviceID}).Info("Device registered")
	return device, nil
}

func (s *ProvisioningService) ListGateways(ctx context.Context, userID string) ([]models.Gateway, error) {
	if err := models.CheckID("userId", userID); err != nil {
		return nil, err
	}
	return s.docs.ListGateways(ctx, userID)
}

func (s *ProvisioningService) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	if err := models.CheckID("userId", userID); err != nil {
		return nil, err
	}
	return s.docs.ListDevices(ctx, userID)
}

// RenameGateway changes only the display name of a registered gateway.
func (s *ProvisioningService) RenameGateway(ctx context.Context, userID, gatewayID, name string) (models.Gateway, error) {
	name = strings.TrimSpace(name)
	if err := checkIDs("userId", userID, "gatewayId", gatewayID); err != nil {
		return models.Gateway{}, err
	}
	if name == "" {
		return models.Gateway{}, models.Validationf("name is required")
	}
	if err := s.docs.RenameGateway(ctx, userID, gatewayID, name); err != nil {
		return models.Gateway{}, err
	}
	return s.docs.GetGateway(ctx, userID, gatewayID)
}

// ensureAbsent turns a lookup result into ErrConflict when the document
// exists and nil when it does not.
func (s *ProvisioningService) ensureAbsent(_ any, err error) error {
	switch {
	case err == nil:
		return models.ErrConflict
	case errors.Is(err, models.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *ProvisioningService) checkCode(ctx context.Context, kind models.SubjectKind, subjectID, code string) error {
	ok, err := s.codes.Validate(ctx, kind, subjectID, code, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", subjectID, models.ErrInvalidRegistrationCode)
	}
	return nil
}

// consume is best effort: the registration already succeeded and the code
// expires on its own.
func (s *ProvisioningService) consume(ctx context.Context, kind models.SubjectKind, subjectID string) {
	if err := s.codes.Consume(ctx, kind, subjectID); err != nil {
		log.WithField("subject_id", subjectID).Warnf("Failed to consume registration code: %v", err)
	}
}

func (s *ProvisioningService) failed(kind string, err error) error {
	outcome := "error"
	switch {
	case errors.Is(err, models.ErrConflict):
		outcome = "conflict"
	case errors.Is(err, models.ErrInvalidRegistrationCode):
		outcome = "invalid_code"
	case errors.Is(err, models.ErrNotFound):
		outcome = "not_found"
	}
	metrics.Registrations.WithLabelValues(kind, outcome).Inc()
	return err
}

// checkIDs runs models.CheckID over field/id pairs.
func checkIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := models.CheckID(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
