package query

import (
	"strings"
	"testing"
	"time"

	"farmiot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBuilder = Builder{Bucket: "readings", Measurement: "sensor_readings", RowLimit: 500}

func TestBuildReadingsQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	q, err := testBuilder.BuildReadingsQuery("dev-1", LastHours(now, 24))
	require.NoError(t, err)

	assert.Contains(t, q.Text, "|> limit(n: params.rowLimit)")
	assert.Contains(t, q.Text, `r.device_id == params.deviceId`)
	assert.Equal(t, "dev-1", q.Params["deviceId"])
	assert.Equal(t, 500, q.Params["rowLimit"])
	assert.Equal(t, "2024-04-30T12:00:00Z", q.Params["start"])
	assert.Equal(t, "2024-05-01T12:00:00Z", q.Params["stop"])
}

func TestBuildReadingsQuery_AlwaysCapped(t *testing.T) {
	now := time.Now()
	for _, hours := range []int{1, 24, 24 * 365, 24 * 365 * 10} {
		q, err := testBuilder.BuildReadingsQuery("dev-1", LastHours(now, hours))
		require.NoError(t, err)
		assert.Equal(t, testBuilder.RowLimit, q.Params["rowLimit"])

		inline, err := q.Inline()
		require.NoError(t, err)
		assert.Contains(t, inline, "|> limit(n: 500)")
	}
}

func TestBuildReadingsQuery_Errors(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name     string
		builder  Builder
		deviceID string
		window   Window
		wantErr  error
	}{
		{name: "missing row limit", builder: Builder{Bucket: "b", Measurement: "m"}, deviceID: "d", window: LastHours(now, 1), wantErr: ErrMissingRowLimit},
		{name: "empty device", builder: testBuilder, deviceID: " ", window: LastHours(now, 1), wantErr: models.ErrValidation},
		{name: "inverted window", builder: testBuilder, deviceID: "d", window: Window{Start: now, Stop: now.Add(-time.Hour)}, wantErr: models.ErrValidation},
		{name: "zero window", builder: testBuilder, deviceID: "d", window: Window{}, wantErr: models.ErrValidation},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.BuildReadingsQuery(tt.deviceID, tt.window)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildFieldDiscoveryQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	q, err := testBuilder.BuildFieldDiscoveryQuery("dev-1", now)
	require.NoError(t, err)
	assert.Contains(t, q.Text, "schema.fieldKeys(")
	assert.Equal(t, "dev-1", q.Params["deviceId"])
	assert.Equal(t, "sensor_readings", q.Params["measurement"])
	assert.Equal(t, "2024-04-01T00:00:00Z", q.Params["start"])

	_, err = testBuilder.BuildFieldDiscoveryQuery("", now)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestQuoteString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "dev-1", want: `"dev-1"`},
		{in: `a"b`, want: `"a\"b"`},
		{in: `a\b`, want: `"a\\b"`},
		{in: "${x}", want: `"\${x}"`},
		{in: "line\nbreak", want: `"line\nbreak"`},
	}
	for _, tt := range cases {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteString(tt.in))
		})
	}
}

// A device id carrying Flux syntax must stay one opaque string value.
func TestReadingsQuery_InjectionCannotBroadenResult(t *testing.T) {
	malicious := `dev-1" or r.device_id != "`
	q, err := testBuilder.BuildReadingsQuery(malicious, LastHours(time.Now(), 1))
	require.NoError(t, err)

	assert.NotContains(t, q.Text, malicious)
	assert.Equal(t, malicious, q.Params["deviceId"])

	inline, err := q.Inline()
	require.NoError(t, err)
	assert.Contains(t, inline, `r.device_id == "dev-1\" or r.device_id != \""`)
	assert.Equal(t, 1, strings.Count(inline, "r.device_id =="))
	assert.NotContains(t, inline, `r.device_id != "`+"\n")

	// The device filter is one equality against one string literal whose
	// decoded value is the whole malicious id.
	var filter string
	for _, line := range strings.Split(inline, "\n") {
		if strings.Contains(line, "r.device_id") {
			require.Empty(t, filter, "more than one device filter line")
			filter = strings.TrimSpace(line)
		}
	}
	const prefix = "|> filter(fn: (r) => r.device_id == "
	require.True(t, strings.HasPrefix(filter, prefix), filter)

	value, rest, ok := scanFluxString(strings.TrimPrefix(filter, prefix))
	require.True(t, ok, filter)
	assert.Equal(t, malicious, value)
	assert.Equal(t, ")", rest)
}

// scanFluxString decodes the Flux string literal at the start of s and
// returns its value and whatever follows the closing quote.
func scanFluxString(s string) (value, rest string, ok bool) {
	if !strings.HasPrefix(s, `"`) {
		return "", s, false
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			return b.String(), s[i+1:], true
		case '\\':
			i++
			if i >= len(s) {
				return "", "", false
			}
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", "", false
}

func TestInline_InterpolationAndParamNamesAreNotExpanded(t *testing.T) {
	q, err := testBuilder.BuildReadingsQuery("params.bucket ${params.rowLimit}", LastHours(time.Now(), 1))
	require.NoError(t, err)

	inline, err := q.Inline()
	require.NoError(t, err)
	assert.Contains(t, inline, `r.device_id == "params.bucket \${params.rowLimit}"`)
	assert.Contains(t, inline, `from(bucket: "readings")`)
}

func TestInline_UnsupportedParam(t *testing.T) {
	q := Query{Text: "x = params.v", Params: map[string]any{"v": []string{"a"}}}
	_, err := q.Inline()
	assert.Error(t, err)
}
