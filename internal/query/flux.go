// Package query builds the Flux queries the read path runs against InfluxDB.
//
// Caller-supplied values never become part of the query text. They travel as
// query parameters (referenced as params.<name>) and, for servers without
// parameter support, are rendered by Inline as escaped Flux string literals.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"farmiot/internal/models"
)

var ErrMissingRowLimit = errors.New("readings query requires a positive row limit")

// Query is Flux text plus the parameters it references.
type Query struct {
	Text   string
	Params map[string]any
}

// Window is a closed time range [Start, Stop].
type Window struct {
	Start time.Time
	Stop  time.Time
}

// LastHours is the window ending at now and spanning hours.
func LastHours(now time.Time, hours int) Window {
	return Window{Start: now.Add(-time.Duration(hours) * time.Hour), Stop: now}
}

// Builder holds the fixed parts of every query.
type Builder struct {
	Bucket      string
	Measurement string
	// RowLimit caps the rows a readings query may return, independent of the
	// window. Zero is rejected. Rows are single fields, not readings: at the
	// cap the oldest reading returned may be missing some of its fields, so
	// callers that see RowLimit rows drop that reading.
	RowLimit int
	// DiscoveryRange bounds field discovery; defaults to 30 days.
	DiscoveryRange time.Duration
}

const fieldDiscoveryFlux = `import "influxdata/influxdb/schema"

schema.fieldKeys(
	bucket: params.bucket,
	predicate: (r) => r._measurement == params.measurement and r.device_id == params.deviceId,
	start: time(v: params.start),
)`

const readingsFlux = `from(bucket: params.bucket)
	|> range(start: time(v: params.start), stop: time(v: params.stop))
	|> filter(fn: (r) => r._measurement == params.measurement)
	|> filter(fn: (r) => r.device_id == params.deviceId)
	|> group()
	|> sort(columns: ["_time"], desc: true)
	|> limit(n: params.rowLimit)`

// BuildFieldDiscoveryQuery asks which field names a device has written
// within the discovery range before now.
func (b Builder) BuildFieldDiscoveryQuery(deviceID string, now time.Time) (Query, error) {
	if strings.TrimSpace(deviceID) == "" {
		return Query{}, models.Validationf("deviceId is required")
	}
	discovery := b.DiscoveryRange
	if discovery <= 0 {
		discovery = 30 * 24 * time.Hour
	}
	return Query{
		Text: fieldDiscoveryFlux,
		Params: map[string]any{
			"bucket":      b.Bucket,
			"measurement": b.Measurement,
			"deviceId":    deviceID,
			"start":       now.Add(-discovery).UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// BuildReadingsQuery selects every field of one device inside window,
// newest first, capped at RowLimit rows.
func (b Builder) BuildReadingsQuery(deviceID string, window Window) (Query, error) {
	if strings.TrimSpace(deviceID) == "" {
		return Query{}, models.Validationf("deviceId is required")
	}
	if b.RowLimit <= 0 {
		return Query{}, ErrMissingRowLimit
	}
	if window.Start.IsZero() || window.Stop.IsZero() || !window.Start.Before(window.Stop) {
		return Query{}, models.Validationf("invalid time window %s - %s", window.Start, window.Stop)
	}
	return Query{
		Text: readingsFlux,
		Params: map[string]any{
			"bucket":      b.Bucket,
			"measurement": b.Measurement,
			"deviceId":    deviceID,
			"start":       window.Start.UTC().Format(time.RFC3339Nano),
			"stop":        window.Stop.UTC().Format(time.RFC3339Nano),
			"rowLimit":    b.RowLimit,
		},
	}, nil
}

// Inline renders the query with every params.<name> reference replaced by a
// Flux literal. String values are escaped so they cannot terminate the
// literal or open an interpolation.
func (q Query) Inline() (string, error) {
	names := make([]string, 0, len(q.Params))
	for name := range q.Params {
		names = append(names, name)
	}
	// Longest first so params.start never clobbers a params.startTime.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		lit, err := literal(q.Params[name])
		if err != nil {
			return "", fmt.Errorf("param %s: %w", name, err)
		}
		pairs = append(pairs, "params."+name, lit)
	}
	return strings.NewReplacer(pairs...).Replace(q.Text), nil
}

func literal(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return QuoteString(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", v)
	}
}

var fluxStringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`${`, `\${`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// QuoteString returns s as a double-quoted Flux string literal.
func QuoteString(s string) string {
	return `"` + fluxStringEscaper.Replace(s) + `"`
}
