package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"farmiot/internal/middleware"
	"farmiot/internal/models"
	"farmiot/internal/service"
	"farmiot/internal/utils"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// DeviceController handles HTTP requests for devices and their telemetry.
type DeviceController struct {
	readings     *service.ReadingService
	provisioning *service.ProvisioningService
	codes        *service.RegistrationCodeService
	now          func() time.Time
}

// NewDeviceController creates a new DeviceController.
func NewDeviceController(readings *service.ReadingService, provisioning *service.ProvisioningService, codes *service.RegistrationCodeService) *DeviceController {
	return &DeviceController{
		readings:     readings,
		provisioning: provisioning,
		codes:        codes,
		now:          time.Now,
	}
}

// HandleListDevices returns every device of the caller.
func (c *DeviceController) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := c.provisioning.ListDevices(r.Context(), middleware.UserID(r))
	if err != nil {
		logFailure(r, err)
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, devices)
}

// HandleFields returns the field names a device reports.
func (c *DeviceController) HandleFields(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	fields, degraded, err := c.readings.Fields(r.Context(), deviceID)
	if err != nil {
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	if degraded {
		utils.RespondDegraded(w, fields)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, fields)
}

// HandleReadings returns the device's readings for the last ?hours=N hours.
func (c *DeviceController) HandleReadings(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	hours := c.readings.DefaultHours()
	if raw := strings.TrimSpace(r.URL.Query().Get("hours")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apiErr := models.NewAPIError(models.ErrorCodeInvalidFormat, "hours must be an integer", nil, http.StatusBadRequest)
			utils.RespondWithError(w, apiErr)
			return
		}
		hours = n
	}

	readings, degraded, err := c.readings.Readings(r.Context(), deviceID, hours)
	if err != nil {
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	if degraded {
		utils.RespondDegraded(w, readings)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, readings)
}

// HandleDeviceRegistrationCode issues a pairing code for a device.
func (c *DeviceController) HandleDeviceRegistrationCode(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	code, err := c.codes.Generate(r.Context(), models.SubjectDevice, deviceID)
	if err != nil {
		logFailure(r, err)
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.RegistrationCodeResponse{
		RegistrationCode: code.Code,
		DeviceID:         deviceID,
		ExpiresIn:        service.ExpiresIn(code, c.now()),
	})
}

func logFailure(r *http.Request, err error) {
	log.WithFields(log.Fields{
		"method":  r.Method,
		"path":    r.URL.Path,
		"user_id": middleware.UserID(r),
	}).Errorf("Request failed: %v", err)
}
