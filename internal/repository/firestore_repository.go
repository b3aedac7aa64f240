package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farmiot/internal/models"
	"farmiot/internal/utils"

	"cloud.google.com/go/firestore"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

const (
	usersCollection    = "users"
	gatewaysCollection = "gateways"
	devicesCollection  = "devices"
)

// FirestoreRepository stores the ownership hierarchy in Cloud Firestore.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository connects with application default credentials, or
// to the emulator named by FIRESTORE_EMULATOR_HOST.
func NewFirestoreRepository(ctx context.Context, project string) (*FirestoreRepository, error) {
	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		return nil, models.Upstream(models.SubsystemFirestore, project, utils.ClassifyGRPC(err))
	}
	return &FirestoreRepository{client: client}, nil
}

func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}

func (r *FirestoreRepository) userDoc(userID string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(userID)
}

func (r *FirestoreRepository) gatewayDoc(userID, gatewayID string) *firestore.DocumentRef {
	return r.userDoc(userID).Collection(gatewaysCollection).Doc(gatewayID)
}

// EnsureUser creates users/{userId} on first contact and leaves an existing
// document untouched.
func (r *FirestoreRepository) EnsureUser(ctx context.Context, userID string) error {
	_, err := r.userDoc(userID).Create(ctx, models.User{CreatedAt: time.Now().UTC()})
	if err == nil {
		log.WithField("user_id", userID).Info("Created user document")
		return nil
	}
	if err = utils.ClassifyGRPC(err); errors.Is(err, models.ErrConflict) {
		return nil
	}
	return models.Upstream(models.SubsystemFirestore, "user "+userID, err)
}

func (r *FirestoreRepository) GetGateway(ctx context.Context, userID, gatewayID string) (models.Gateway, error) {
	snap, err := r.gatewayDoc(userID, gatewayID).Get(ctx)
	if err != nil {
		return models.Gateway{}, models.Upstream(models.SubsystemFirestore, "gateway "+gatewayID, utils.ClassifyGRPC(err))
	}
	var g models.Gateway
	if err := snap.DataTo(&g); err != nil {
		return models.Gateway{}, fmt.Errorf("decode gateway %s: %w", gatewayID, err)
	}
	g.ID = snap.Ref.ID
	return g, nil
}

// CreateGateway fails with ErrConflict when the document already exists.
func (r *FirestoreRepository) CreateGateway(ctx context.Context, gateway models.Gateway) error {
	_, err := r.gatewayDoc(gateway.UserID, gateway.ID).Create(ctx, gateway)
	if err != nil {
		return models.Upstream(models.SubsystemFirestore, "gateway "+gateway.ID, utils.ClassifyGRPC(err))
	}
	return nil
}

func (r *FirestoreRepository) ListGateways(ctx context.Context, userID string) ([]models.Gateway, error) {
	iter := r.userDoc(userID).Collection(gatewaysCollection).Limit(listLimit).Documents(ctx)
	defer iter.Stop()

	gateways := make([]models.Gateway, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, models.Upstream(models.SubsystemFirestore, "gateways of "+userID, utils.ClassifyGRPC(err))
		}
		var g models.Gateway
		if err := snap.DataTo(&g); err != nil {
			log.WithFields(log.Fields{"user_id": userID, "gateway_id": snap.Ref.ID}).Warnf("Skipping undecodable gateway: %v", err)
			continue
		}
		g.ID = snap.Ref.ID
		gateways = append(gateways, g)
	}
	return gateways, nil
}

// RenameGateway updates only the display name.
func (r *FirestoreRepository) RenameGateway(ctx context.Context, userID, gatewayID, name string) error {
	_, err := r.gatewayDoc(userID, gatewayID).Update(ctx, []firestore.Update{{Path: "name", Value: name}})
	if err != nil {
		return models.Upstream(models.SubsystemFirestore, "gateway "+gatewayID, utils.ClassifyGRPC(err))
	}
	return nil
}

func (r *FirestoreRepository) deviceDoc(userID, gatewayID, deviceID string) *firestore.DocumentRef {
	return r.gatewayDoc(userID, gatewayID).Collection(devicesCollection).Doc(deviceID)
}

func (r *FirestoreRepository) GetDevice(ctx context.Context, userID, gatewayID, deviceID string) (models.Device, error) {
	snap, err := r.deviceDoc(userID, gatewayID, deviceID).Get(ctx)
	if err != nil {
		return models.Device{}, models.Upstream(models.SubsystemFirestore, "device "+deviceID, utils.ClassifyGRPC(err))
	}
	var d models.Device
	if err := snap.DataTo(&d); err != nil {
		return models.Device{}, fmt.Errorf("decode device %s: %w", deviceID, err)
	}
	d.ID = snap.Ref.ID
	return d, nil
}

// CreateDevice fails with ErrConflict when the document already exists.
func (r *FirestoreRepository) CreateDevice(ctx context.Context, device models.Device) error {
	if _, err := r.deviceDoc(device.UserID, device.GatewayID, device.ID).Create(ctx, device); err != nil {
		return models.Upstream(models.SubsystemFirestore, "device "+device.ID, utils.ClassifyGRPC(err))
	}
	return nil
}

// ListDevices walks every gateway of the user, stopping at listLimit
// devices in total.
func (r *FirestoreRepository) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	gateways, err := r.ListGateways(ctx, userID)
	if err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0)
	for _, g := range gateways {
		if len(devices) >= listLimit {
			break
		}
		iter := r.gatewayDoc(userID, g.ID).Collection(devicesCollection).Limit(listLimit - len(devices)).Documents(ctx)
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				iter.Stop()
				return nil, models.Upstream(models.SubsystemFirestore, "devices of gateway "+g.ID, utils.ClassifyGRPC(err))
			}
			var d models.Device
			if err := snap.DataTo(&d); err != nil {
				log.WithFields(log.Fields{"gateway_id": g.ID, "device_id": snap.Ref.ID}).Warnf("Skipping undecodable device: %v", err)
				continue
			}
			d.ID = snap.Ref.ID
			devices = append(devices, d)
		}
		iter.Stop()
	}
	return devices, nil
}
