package routes

import (
	"fmt"
	"net/http"

	"farmiot/internal/controller"
	"farmiot/internal/metrics"
	"farmiot/internal/middleware"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers all application routes.
func RegisterRoutes(router *mux.Router, devices *controller.DeviceController, registration *controller.RegistrationController) {
	router.Use(middleware.AccessLog)

	api := router.PathPrefix("/api").Subrouter()

	// Devices and telemetry
	api.HandleFunc("/devices", middleware.RequireUser(devices.HandleListDevices)).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/fields", devices.HandleFields).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/readings", devices.HandleReadings).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/registration-code", devices.HandleDeviceRegistrationCode).Methods(http.MethodGet)

	// Gateways
	api.HandleFunc("/gateways", middleware.RequireUser(registration.HandleListGateways)).Methods(http.MethodGet)
	api.HandleFunc("/gateways/{id}", middleware.RequireUser(registration.HandleRenameGateway)).Methods(http.MethodPatch)
	api.HandleFunc("/gateways/{id}/registration-code", registration.HandleGatewayRegistrationCode).Methods(http.MethodGet)

	// Provisioning
	api.HandleFunc("/pending-registration", registration.HandlePendingRegistration).Methods(http.MethodGet)
	api.HandleFunc("/pending-registration", registration.HandleAnnounceDevice).Methods(http.MethodPost)
	api.HandleFunc("/register-gateway", middleware.RequireUser(registration.HandleRegisterGateway)).Methods(http.MethodPost)
	api.HandleFunc("/register-device", middleware.RequireUser(registration.HandleRegisterDevice)).Methods(http.MethodPost)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Health check (GET only)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}).Methods(http.MethodGet)
}
