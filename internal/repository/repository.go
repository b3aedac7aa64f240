package repository

import (
	"context"
	"time"

	"farmiot/internal/models"
	"farmiot/internal/query"
)

// RecordIterator walks a long-format query result one field record at a
// time. Err reports the first failure after Next returns false.
type RecordIterator interface {
	Next() bool
	Record() models.FieldRecord
	Err() error
	Close() error
}

// TimeSeriesRepository is the read and write surface of the time-series store.
type TimeSeriesRepository interface {
	QueryRecords(ctx context.Context, q query.Query) (RecordIterator, error)
	QueryValues(ctx context.Context, q query.Query) ([]string, error)
	WriteReading(ctx context.Context, reading models.SensorReading) error
	EnsureBucket(ctx context.Context, name string) error
	Health(ctx context.Context) error
}

// DocumentRepository stores the users/{userId}/gateways/{gatewayId}/devices
// hierarchy. Create operations fail with models.ErrConflict when the
// document already exists; lookups fail with models.ErrNotFound.
type DocumentRepository interface {
	EnsureUser(ctx context.Context, userID string) error
	GetGateway(ctx context.Context, userID, gatewayID string) (models.Gateway, error)
	CreateGateway(ctx context.Context, gateway models.Gateway) error
	ListGateways(ctx context.Context, userID string) ([]models.Gateway, error)
	RenameGateway(ctx context.Context, userID, gatewayID, name string) error
	GetDevice(ctx context.Context, userID, gatewayID, deviceID string) (models.Device, error)
	CreateDevice(ctx context.Context, device models.Device) error
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
}

// CodeStore keeps the registration code issued for each (kind, subject)
// until it expires or is consumed. Put keys by code.Kind and code.SubjectID.
type CodeStore interface {
	Put(ctx context.Context, code models.RegistrationCode, ttl time.Duration) error
	Get(ctx context.Context, kind models.SubjectKind, subjectID string) (models.RegistrationCode, error)
	Delete(ctx context.Context, kind models.SubjectKind, subjectID string) error
}

// listLimit bounds every collection listing.
const listLimit = 100
