package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRegistrationCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/gateways/gw-1/registration-code":
			_, _ = w.Write([]byte(`{"registrationCode":"042137","gatewayId":"gw-1","expiresIn":900}`))
		case "/api/devices/dev-1/registration-code":
			_, _ = w.Write([]byte(`{"registrationCode":"000001","deviceId":"dev-1","expiresIn":61}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"upstream_timeout","message":"code store timed out"}`))
		}
	}))
	defer srv.Close()

	client := resty.New()

	res, err := fetchRegistrationCode(client, srv.URL+"/", "gateway", "gw-1")
	require.NoError(t, err)
	assert.Equal(t, "042137", res.RegistrationCode)
	assert.Equal(t, int64(900), res.ExpiresIn)

	var out bytes.Buffer
	printRegistrationCode(&out, res)
	assert.Equal(t, "gw-1:042137\nexpires in 15m0s\n", out.String())

	res, err = fetchRegistrationCode(client, srv.URL, "device", "dev-1")
	require.NoError(t, err)
	out.Reset()
	printRegistrationCode(&out, res)
	assert.Equal(t, "dev-1:000001\nexpires in 1m1s\n", out.String())

	_, err = fetchRegistrationCode(client, srv.URL, "gateway", "gw-down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "code store timed out")
}

func TestFetchRegistrationCode_UnknownKind(t *testing.T) {
	_, err := fetchRegistrationCode(resty.New(), "http://localhost:1", "sensor", "x")
	assert.Error(t, err)
}
