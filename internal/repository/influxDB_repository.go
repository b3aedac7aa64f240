package repository

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"farmiot/internal/models"
	"farmiot/internal/query"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	fluxquery "github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	log "github.com/sirupsen/logrus"
)

// Columns the store adds to every record that are not point tags.
var nonTagColumns = map[string]struct{}{
	"_value":       {},
	"_field":       {},
	"_time":        {},
	"_start":       {},
	"_stop":        {},
	"_measurement": {},
	"result":       {},
	"table":        {},
}

// InfluxDBRepository talks to one InfluxDB organisation.
type InfluxDBRepository struct {
	client      influxdb2.Client
	org         string
	bucket      string
	measurement string
	// inline renders parameters as escaped literals for servers that do not
	// accept parameterized queries.
	inline bool
}

// InfluxDBOptions configure NewInfluxDBRepository.
type InfluxDBOptions struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	InlineQuery bool
}

// NewInfluxDBRepository creates a new InfluxDBRepository.
func NewInfluxDBRepository(opts InfluxDBOptions) *InfluxDBRepository {
	return &InfluxDBRepository{
		client:      influxdb2.NewClient(opts.URL, opts.Token),
		org:         opts.Org,
		bucket:      opts.Bucket,
		measurement: opts.Measurement,
		inline:      opts.InlineQuery,
	}
}

// Close releases the client's idle connections.
func (r *InfluxDBRepository) Close() {
	r.client.Close()
}

// Health checks the server's health endpoint.
func (r *InfluxDBRepository) Health(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return models.Upstream(models.SubsystemInfluxDB, "health", classifyInflux(err))
	}
	if health.Status != domain.HealthCheckStatusPass {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("%s health: %w: status %s %s", models.SubsystemInfluxDB, models.ErrUpstreamUnavailable, health.Status, msg)
	}
	log.Println("Successfully connected to InfluxDB!")
	return nil
}

// EnsureBucket creates the bucket in the organisation when it does not
// exist yet.
func (r *InfluxDBRepository) EnsureBucket(ctx context.Context, name string) error {
	buckets := r.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, name); err == nil {
		log.Printf("Bucket '%s' already exists", name)
		return nil
	} else if !isInfluxNotFound(err) {
		return models.Upstream(models.SubsystemInfluxDB, "bucket "+name, classifyInflux(err))
	}

	org, err := r.client.OrganizationsAPI().FindOrganizationByName(ctx, r.org)
	if err != nil {
		return models.Upstream(models.SubsystemInfluxDB, "org "+r.org, classifyInflux(err))
	}
	if org == nil {
		return fmt.Errorf("%s org %s: %w", models.SubsystemInfluxDB, r.org, models.ErrNotFound)
	}
	if _, err := buckets.CreateBucketWithName(ctx, org, name); err != nil {
		return models.Upstream(models.SubsystemInfluxDB, "bucket "+name, classifyInflux(err))
	}
	log.Printf("Bucket '%s' created successfully.", name)
	return nil
}

// WriteReading stores one wide reading as a single point.
func (r *InfluxDBRepository) WriteReading(ctx context.Context, reading models.SensorReading) error {
	if reading.DeviceID == "" {
		return models.Validationf("device_id is required")
	}
	if len(reading.Fields) == 0 {
		return models.Validationf("reading for %s has no fields", reading.DeviceID)
	}

	tags := make(map[string]string, len(reading.Tags)+1)
	for k, v := range reading.Tags {
		if v != "" {
			tags[k] = v
		}
	}
	tags[models.DeviceTag] = reading.DeviceID

	fields := make(map[string]interface{}, len(reading.Fields))
	for k, v := range reading.Fields {
		fields[k] = v.Raw()
	}

	ts := reading.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	point := influxdb2.NewPoint(r.measurement, tags, fields, ts)
	if err := r.client.WriteAPIBlocking(r.org, r.bucket).WritePoint(ctx, point); err != nil {
		return models.Upstream(models.SubsystemInfluxDB, "device "+reading.DeviceID, classifyInflux(err))
	}
	return nil
}

// QueryRecords runs q and returns its records as field records.
func (r *InfluxDBRepository) QueryRecords(ctx context.Context, q query.Query) (RecordIterator, error) {
	result, err := r.run(ctx, q)
	if err != nil {
		return nil, err
	}
	return &influxRecordIterator{result: result}, nil
}

// QueryValues runs q and collects the string _value of every record.
func (r *InfluxDBRepository) QueryValues(ctx context.Context, q query.Query) ([]string, error) {
	result, err := r.run(ctx, q)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var values []string
	for result.Next() {
		if v, ok := result.Record().Value().(string); ok {
			values = append(values, v)
		}
	}
	if result.Err() != nil {
		return nil, models.Upstream(models.SubsystemInfluxDB, "query", classifyInflux(result.Err()))
	}
	return values, nil
}

func (r *InfluxDBRepository) run(ctx context.Context, q query.Query) (*api.QueryTableResult, error) {
	queryAPI := r.client.QueryAPI(r.org)

	var (
		result *api.QueryTableResult
		err    error
	)
	if r.inline {
		text, inlineErr := q.Inline()
		if inlineErr != nil {
			return nil, inlineErr
		}
		log.Debugf("Executing InfluxDB query: %s", text)
		result, err = queryAPI.Query(ctx, text)
	} else {
		log.Debugf("Executing InfluxDB query: %s params=%v", q.Text, q.Params)
		result, err = queryAPI.QueryWithParams(ctx, q.Text, q.Params)
	}
	if err != nil {
		return nil, models.Upstream(models.SubsystemInfluxDB, "query", classifyInflux(err))
	}
	return result, nil
}

type influxRecordIterator struct {
	result *api.QueryTableResult
	record models.FieldRecord
}

func (it *influxRecordIterator) Next() bool {
	if !it.result.Next() {
		return false
	}
	it.record = toFieldRecord(it.result.Record())
	return true
}

func (it *influxRecordIterator) Record() models.FieldRecord { return it.record }

func (it *influxRecordIterator) Err() error {
	if err := it.result.Err(); err != nil {
		return models.Upstream(models.SubsystemInfluxDB, "query", classifyInflux(err))
	}
	return nil
}

func (it *influxRecordIterator) Close() error { return it.result.Close() }

// toFieldRecord keeps every string column that is not store metadata as a
// tag.
func toFieldRecord(rec *fluxquery.FluxRecord) models.FieldRecord {
	tags := make(map[string]string)
	for k, v := range rec.Values() {
		if _, skip := nonTagColumns[k]; skip {
			continue
		}
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}
	return models.FieldRecord{
		Timestamp: rec.Time(),
		Field:     rec.Field(),
		Value:     models.FieldValueOf(rec.Value()),
		Tags:      tags,
	}
}

// classifyInflux maps HTTP failures from the client onto the error taxonomy.
func classifyInflux(err error) error {
	var herr *ihttp.Error
	if errors.As(err, &herr) {
		switch herr.StatusCode {
		case nethttp.StatusUnauthorized, nethttp.StatusForbidden:
			return fmt.Errorf("%w: %v", models.ErrAuthenticationGap, err)
		case nethttp.StatusNotFound:
			return fmt.Errorf("%w: %v", models.ErrNotFound, err)
		case nethttp.StatusGatewayTimeout, nethttp.StatusRequestTimeout:
			return fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, err)
		}
	}
	return err
}

func isInfluxNotFound(err error) bool {
	var herr *ihttp.Error
	if errors.As(err, &herr) && herr.StatusCode == nethttp.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "not found")
}
