package service

import (
	"context"
	"errors"
	"time"

	"farmiot/internal/metrics"
	"farmiot/internal/models"
	"farmiot/internal/query"
	"farmiot/internal/repository"

	log "github.com/sirupsen/logrus"
)

// ReadingService answers telemetry reads. Store failures degrade to an
// empty result flagged as degraded; only caller mistakes are returned as
// errors.
type ReadingService struct {
	repo         repository.TimeSeriesRepository
	builder      query.Builder
	defaultHours int
	maxHours     int
	now          func() time.Time
}

// ReadingOptions configure NewReadingService.
type ReadingOptions struct {
	Builder      query.Builder
	DefaultHours int
	MaxHours     int
}

func NewReadingService(repo repository.TimeSeriesRepository, opts ReadingOptions) *ReadingService {
	return &ReadingService{
		repo:         repo,
		builder:      opts.Builder,
		defaultHours: opts.DefaultHours,
		maxHours:     opts.MaxHours,
		now:          time.Now,
	}
}

// DefaultHours is the window used when the caller gives none.
func (s *ReadingService) DefaultHours() int { return s.defaultHours }

// Fields lists the field names a device has reported.
func (s *ReadingService) Fields(ctx context.Context, deviceID string) (fields []string, degraded bool, err error) {
	q, err := s.builder.BuildFieldDiscoveryQuery(deviceID, s.now())
	if err != nil {
		return nil, false, err
	}
	fields, err = s.repo.QueryValues(ctx, q)
	if err != nil {
		return degrade("fields", deviceID, err, []string{})
	}
	if fields == nil {
		fields = []string{}
	}
	return fields, false, nil
}

// Readings returns the device's readings for the last hours hours.
func (s *ReadingService) Readings(ctx context.Context, deviceID string, hours int) ([]models.SensorReading, bool, error) {
	if hours <= 0 || hours > s.maxHours {
		return nil, false, models.Validationf("hours must be between 1 and %d, got %d", s.maxHours, hours)
	}
	q, err := s.builder.BuildReadingsQuery(deviceID, query.LastHours(s.now(), hours))
	if err != nil {
		return nil, false, err
	}

	it, err := s.repo.QueryRecords(ctx, q)
	if err != nil {
		return s.degradeReadings(deviceID, err)
	}
	counted := &countingIterator{RecordIterator: it}
	readings, err := Aggregate(counted)
	if err != nil {
		return s.degradeReadings(deviceID, err)
	}
	if counted.n >= s.builder.RowLimit {
		readings = dropOldest(readings)
	}
	return readings, false, nil
}

// countingIterator counts the records it yields.
type countingIterator struct {
	repository.RecordIterator
	n int
}

func (c *countingIterator) Next() bool {
	if c.RecordIterator.Next() {
		c.n++
		return true
	}
	return false
}

// dropOldest removes the readings at the earliest timestamp. When the row
// cap is reached the limit may have cut those readings between fields.
func dropOldest(readings []models.SensorReading) []models.SensorReading {
	if len(readings) == 0 {
		return readings
	}
	oldest := readings[0].Timestamp
	for _, r := range readings[1:] {
		if r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
	}
	kept := readings[:0]
	for _, r := range readings {
		if !r.Timestamp.Equal(oldest) {
			kept = append(kept, r)
		}
	}
	return kept
}

func (s *ReadingService) degradeReadings(deviceID string, err error) ([]models.SensorReading, bool, error) {
	return degrade("readings", deviceID, err, []models.SensorReading{})
}

// degrade logs a store failure and returns empty instead. Errors that are not
// store failures pass through.
func degrade[T any](endpoint, deviceID string, err error, empty T) (T, bool, error) {
	var zero T
	if errors.Is(err, models.ErrValidation) {
		return zero, false, err
	}
	log.WithFields(log.Fields{
		"subsystem": models.SubsystemInfluxDB,
		"device_id": deviceID,
		"endpoint":  endpoint,
	}).Warnf("Serving empty %s: %v", endpoint, err)
	metrics.DegradedReads.WithLabelValues(endpoint).Inc()
	return empty, true, nil
}
