package controller

import (
	"encoding/json"
	"net/http"
	"time"

	"farmiot/internal/middleware"
	"farmiot/internal/models"
	"farmiot/internal/service"
	"farmiot/internal/utils"

	"github.com/gorilla/mux"
)

// RegistrationController handles gateway and device provisioning.
type RegistrationController struct {
	provisioning *service.ProvisioningService
	codes        *service.RegistrationCodeService
	pending      *service.PendingRegistry
	now          func() time.Time
}

func NewRegistrationController(provisioning *service.ProvisioningService, codes *service.RegistrationCodeService, pending *service.PendingRegistry) *RegistrationController {
	return &RegistrationController{
		provisioning: provisioning,
		codes:        codes,
		pending:      pending,
		now:          time.Now,
	}
}

// HandleRegisterGateway claims a gateway for the caller.
func (c *RegistrationController) HandleRegisterGateway(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondRegistrationError(w, r, models.Validationf("invalid request payload"))
		return
	}
	defer r.Body.Close()

	gateway, err := c.provisioning.RegisterGateway(r.Context(), middleware.UserID(r), req)
	if err != nil {
		respondRegistrationError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.RegisterGatewayResponse{
		Success: true,
		Message: "Gateway registered successfully",
		Gateway: &gateway,
	})
}

// HandleRegisterDevice claims a device under one of the caller's gateways.
func (c *RegistrationController) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondRegistrationError(w, r, models.Validationf("invalid request payload"))
		return
	}
	defer r.Body.Close()

	device, err := c.provisioning.RegisterDevice(r.Context(), middleware.UserID(r), req)
	if err != nil {
		respondRegistrationError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.RegisterDeviceResponse{
		Success: true,
		Message: "Device registered successfully",
		Device:  &device,
	})
}

// HandleGatewayRegistrationCode issues the code a gateway shows on its
// display.
func (c *RegistrationController) HandleGatewayRegistrationCode(w http.ResponseWriter, r *http.Request) {
	gatewayID := mux.Vars(r)["id"]

	code, err := c.codes.Generate(r.Context(), models.SubjectGateway, gatewayID)
	if err != nil {
		logFailure(r, err)
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.RegistrationCodeResponse{
		RegistrationCode: code.Code,
		GatewayID:        gatewayID,
		ExpiresIn:        service.ExpiresIn(code, c.now()),
	})
}

// HandleAnnounceDevice records a device a gateway discovered.
func (c *RegistrationController) HandleAnnounceDevice(w http.ResponseWriter, r *http.Request) {
	var req models.AnnounceDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErr := models.NewAPIError(models.ErrorCodeBadRequest, "Invalid request payload", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}
	defer r.Body.Close()

	entry, err := c.pending.Announce(r.Context(), req)
	if err != nil {
		logFailure(r, err)
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, entry)
}

// HandlePendingRegistration returns the newest unclaimed device of
// ?gatewayId.
func (c *RegistrationController) HandlePendingRegistration(w http.ResponseWriter, r *http.Request) {
	gatewayID := r.URL.Query().Get("gatewayId")
	if gatewayID == "" {
		apiErr := models.NewAPIError(models.ErrorCodeMissingParameter, "gatewayId is required", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}

	entry, err := c.pending.Latest(gatewayID)
	if err != nil {
		apiErr := utils.APIErrorFrom(err)
		if apiErr.Code == models.ErrorCodeResourceNotFound {
			apiErr.StatusCode = http.StatusNotFound
		}
		utils.RespondWithError(w, apiErr)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, entry)
}

// HandleListGateways returns every gateway of the caller.
func (c *RegistrationController) HandleListGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := c.provisioning.ListGateways(r.Context(), middleware.UserID(r))
	if err != nil {
		logFailure(r, err)
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, gateways)
}

// HandleRenameGateway changes a gateway's display name.
func (c *RegistrationController) HandleRenameGateway(w http.ResponseWriter, r *http.Request) {
	var req models.RenameGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErr := models.NewAPIError(models.ErrorCodeBadRequest, "Invalid request payload", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}
	defer r.Body.Close()

	gateway, err := c.provisioning.RenameGateway(r.Context(), middleware.UserID(r), mux.Vars(r)["id"], req.Name)
	if err != nil {
		logFailure(r, err)
		utils.RespondWithError(w, utils.APIErrorFrom(err))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, gateway)
}

// respondRegistrationError answers {success:false, message} with the status
// of the error's class.
func respondRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(r, err)
	apiErr := utils.APIErrorFrom(err)
	utils.RespondWithJSON(w, apiErr.StatusCode, models.RegisterGatewayResponse{
		Success: false,
		Message: apiErr.Message,
	})
}
