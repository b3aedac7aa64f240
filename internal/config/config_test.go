package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.Set("influxdb:url", "http://localhost:8086")
	s.Set("influxdb:token", "token")
	s.Set("influxdb:org", "farm")
	s.Set("influxdb:bucket", "readings")
	return s
}

func TestResolve_Defaults(t *testing.T) {
	cfg, err := completeStore(t).Resolve()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "sensor_readings", cfg.InfluxDBMeasurement)
	assert.Equal(t, 5000, cfg.ReadingsRowLimit)
	assert.Equal(t, 24, cfg.ReadingsDefaultHours)
	assert.Equal(t, 15*time.Minute, cfg.RegistrationTTL)
	assert.Equal(t, "firestore", cfg.DocumentStoreDriver)
	assert.Equal(t, "redis", cfg.CodeStoreDriver)
	assert.True(t, cfg.SecretsEnabled)
}

func TestResolve_EnvironmentMapsToColonKeys(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "http://influx.internal:8086")
	t.Setenv("INFLUXDB_TOKEN", "env-token")
	t.Setenv("INFLUXDB_ORG", "env-org")
	t.Setenv("INFLUXDB_BUCKET", "env-bucket")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("REGISTRATION_TTL", "10m")

	cfg, err := NewStore().Resolve()
	require.NoError(t, err)

	assert.Equal(t, "http://influx.internal:8086", cfg.InfluxDBURL)
	assert.Equal(t, "env-token", cfg.InfluxDBToken)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.RegistrationTTL)
}

func TestResolve_IncompleteInfluxConfig(t *testing.T) {
	s := NewStore()
	s.Set("influxdb:url", "http://localhost:8086")

	_, err := s.Resolve()
	assert.ErrorContains(t, err, "InfluxDB configuration is incomplete")
}

func TestResolve_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  any
	}{
		{name: "zero row limit", key: "readings:row_limit", val: 0},
		{name: "default hours above max", key: "readings:default_hours", val: 9000},
		{name: "unknown document store", key: "documentstore:driver", val: "mongo"},
		{name: "unknown code store", key: "codestore:driver", val: "etcd"},
		{name: "zero ttl", key: "registration:ttl", val: "0s"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			s := completeStore(t)
			s.Set(tt.key, tt.val)
			_, err := s.Resolve()
			assert.Error(t, err)
		})
	}
}

func TestMergeSecrets_OverridesAndRunsOnce(t *testing.T) {
	t.Setenv("INFLUXDB_TOKEN", "from-env")
	s := completeStore(t)

	require.NoError(t, s.MergeSecrets(map[string]string{
		"influxdb:token": "from-vault",
		"service:token":  "svc",
	}))
	assert.Equal(t, "from-vault", s.GetString("influxdb:token"))
	assert.Equal(t, "svc", s.GetString("service:token"))

	assert.ErrorIs(t, s.MergeSecrets(map[string]string{"x": "y"}), errSecretsAlreadyMerged)
	assert.Empty(t, s.GetString("x"))
}
