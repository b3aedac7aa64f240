package service

import (
	"sort"

	"farmiot/internal/models"
	"farmiot/internal/repository"
)

type readingKey struct {
	deviceID  string
	timestamp int64
}

// Aggregate pivots long-format field records into one reading per
// (device, timestamp). Fields sharing a key merge into the same reading and
// tags merge last-write-wins. The iterator is drained and closed; its error,
// if any, is returned with no readings.
//
// The output is sorted by timestamp then device id, but callers must treat
// the order as unspecified.
func Aggregate(it repository.RecordIterator) ([]models.SensorReading, error) {
	defer it.Close()

	index := make(map[readingKey]*models.SensorReading)
	for it.Next() {
		rec := it.Record()
		key := readingKey{deviceID: rec.DeviceID(), timestamp: rec.Timestamp.UnixNano()}

		reading, ok := index[key]
		if !ok {
			reading = &models.SensorReading{
				DeviceID:  key.deviceID,
				Timestamp: rec.Timestamp.UTC(),
				Fields:    make(map[string]models.FieldValue),
				Tags:      make(map[string]string),
			}
			index[key] = reading
		}
		reading.Fields[rec.Field] = rec.Value
		for k, v := range rec.Tags {
			reading.Tags[k] = v
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	readings := make([]models.SensorReading, 0, len(index))
	for _, r := range index {
		readings = append(readings, *r)
	}
	sort.Slice(readings, func(i, j int) bool {
		if !readings[i].Timestamp.Equal(readings[j].Timestamp) {
			return readings[i].Timestamp.Before(readings[j].Timestamp)
		}
		return readings[i].DeviceID < readings[j].DeviceID
	})
	return readings, nil
}

// SliceIterator replays an in-memory record set.
type SliceIterator struct {
	records []models.FieldRecord
	pos     int
	err     error
}

// NewSliceIterator iterates records, then reports err.
func NewSliceIterator(records []models.FieldRecord, err error) *SliceIterator {
	return &SliceIterator{records: records, pos: -1, err: err}
}

func (s *SliceIterator) Next() bool {
	if s.pos+1 >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceIterator) Record() models.FieldRecord { return s.records[s.pos] }
func (s *SliceIterator) Err() error                 { return s.err }
func (s *SliceIterator) Close() error               { return nil }

var _ repository.RecordIterator = (*SliceIterator)(nil)
