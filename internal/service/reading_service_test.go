package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"farmiot/internal/models"
	"farmiot/internal/query"
	"farmiot/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimeSeries struct {
	records  []models.FieldRecord
	iterErr  error
	queryErr error
	values   []string
	written  []models.SensorReading
	writeErr error
	lastQ    query.Query
}

func (f *fakeTimeSeries) QueryRecords(ctx context.Context, q query.Query) (repository.RecordIterator, error) {
	f.lastQ = q
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return NewSliceIterator(f.records, f.iterErr), nil
}

func (f *fakeTimeSeries) QueryValues(ctx context.Context, q query.Query) ([]string, error) {
	f.lastQ = q
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.values, nil
}

func (f *fakeTimeSeries) WriteReading(ctx context.Context, reading models.SensorReading) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, reading)
	return nil
}

func (f *fakeTimeSeries) EnsureBucket(ctx context.Context, name string) error { return f.queryErr }
func (f *fakeTimeSeries) Health(ctx context.Context) error                  { return f.queryErr }

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestReadingService(repo repository.TimeSeriesRepository) *ReadingService {
	s := NewReadingService(repo, ReadingOptions{
		Builder:      query.Builder{Bucket: "readings", Measurement: "sensor_readings", RowLimit: 100},
		DefaultHours: 24,
		MaxHours:     8760,
	})
	s.now = func() time.Time { return testNow }
	return s
}

func TestReadingService_Readings(t *testing.T) {
	repo := &fakeTimeSeries{records: []models.FieldRecord{
		rec("D", 5, "temperature", models.Number(20), nil),
		rec("D", 5, "humidity", models.Number(40), nil),
	}}
	s := newTestReadingService(repo)

	readings, degraded, err := s.Readings(context.Background(), "D", 48)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Len(t, readings, 1)

	assert.Equal(t, "2024-04-29T12:00:00Z", repo.lastQ.Params["start"])
	assert.Equal(t, 100, repo.lastQ.Params["rowLimit"])
}

func TestReadingService_RowCapDropsPartialReading(t *testing.T) {
	newCapped := func(repo repository.TimeSeriesRepository) *ReadingService {
		s := NewReadingService(repo, ReadingOptions{
			Builder:      query.Builder{Bucket: "readings", Measurement: "sensor_readings", RowLimit: 3},
			DefaultHours: 24,
			MaxHours:     8760,
		})
		s.now = func() time.Time { return testNow }
		return s
	}

	// Newest first, cut at three rows: the reading at t=8 lost its humidity.
	capped := &fakeTimeSeries{records: []models.FieldRecord{
		rec("D", 9, "temperature", models.Number(21), nil),
		rec("D", 9, "humidity", models.Number(41), nil),
		rec("D", 8, "temperature", models.Number(20), nil),
	}}
	readings, degraded, err := newCapped(capped).Readings(context.Background(), "D", 24)
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, readings, 1)
	assert.True(t, at(9).Equal(readings[0].Timestamp))
	assert.Len(t, readings[0].Fields, 2)

	underCap := &fakeTimeSeries{records: []models.FieldRecord{
		rec("D", 9, "temperature", models.Number(21), nil),
		rec("D", 8, "temperature", models.Number(20), nil),
	}}
	readings, _, err = newCapped(underCap).Readings(context.Background(), "D", 24)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestReadingService_HoursValidation(t *testing.T) {
	s := newTestReadingService(&fakeTimeSeries{})
	for _, hours := range []int{0, -1, 8761} {
		t.Run(fmt.Sprint(hours), func(t *testing.T) {
			_, _, err := s.Readings(context.Background(), "D", hours)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestReadingService_DegradesOnStoreFailure(t *testing.T) {
	cases := []struct {
		name string
		repo *fakeTimeSeries
	}{
		{name: "query fails", repo: &fakeTimeSeries{queryErr: fmt.Errorf("influxdb query: %w", models.ErrUpstreamUnavailable)}},
		{name: "timeout", repo: &fakeTimeSeries{queryErr: fmt.Errorf("influxdb query: %w", models.ErrUpstreamTimeout)}},
		{name: "stream fails", repo: &fakeTimeSeries{
			records: []models.FieldRecord{rec("D", 5, "temperature", models.Number(20), nil)},
			iterErr: errors.New("connection reset"),
		}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			readings, degraded, err := newTestReadingService(tt.repo).Readings(context.Background(), "D", 24)
			require.NoError(t, err)
			assert.True(t, degraded)
			assert.NotNil(t, readings)
			assert.Empty(t, readings)
		})
	}
}

func TestReadingService_Fields(t *testing.T) {
	s := newTestReadingService(&fakeTimeSeries{values: []string{"humidity", "temperature"}})
	fields, degraded, err := s.Fields(context.Background(), "D")
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, []string{"humidity", "temperature"}, fields)

	s = newTestReadingService(&fakeTimeSeries{})
	fields, _, err = s.Fields(context.Background(), "D")
	require.NoError(t, err)
	assert.Equal(t, []string{}, fields)

	s = newTestReadingService(&fakeTimeSeries{queryErr: models.ErrAuthenticationGap})
	fields, degraded, err = s.Fields(context.Background(), "D")
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Empty(t, fields)

	_, _, err = s.Fields(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
}
