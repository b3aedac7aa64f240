package service

import (
	"context"
	"strings"

	"farmiot/internal/models"
	"farmiot/internal/repository"

	log "github.com/sirupsen/logrus"
)

// DataService handles the business logic for incoming sensor data.
type DataService struct {
	repo repository.TimeSeriesRepository
}

// NewDataService creates a new DataService.
func NewDataService(repo repository.TimeSeriesRepository) *DataService {
	return &DataService{repo: repo}
}

// ProcessAndSaveReading validates one reading and writes it as a point.
func (s *DataService) ProcessAndSaveReading(ctx context.Context, reading models.SensorReading) error {
	reading.DeviceID = strings.TrimSpace(reading.DeviceID)
	if reading.DeviceID == "" {
		return models.Validationf("device_id is required")
	}
	if len(reading.Fields) == 0 {
		return models.Validationf("reading for %s has no fields", reading.DeviceID)
	}
	if err := s.repo.WriteReading(ctx, reading); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"device_id": reading.DeviceID,
		"fields":    len(reading.Fields),
	}).Debug("Data point written to InfluxDB")
	return nil
}

// Bootstrap checks the store is reachable and that the bucket exists.
func (s *DataService) Bootstrap(ctx context.Context, bucket string) error {
	if err := s.repo.Health(ctx); err != nil {
		return err
	}
	return s.repo.EnsureBucket(ctx, bucket)
}
