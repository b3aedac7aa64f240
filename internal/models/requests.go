package models

type RegisterGatewayRequest struct {
	RegistrationCode string `json:"registrationCode"`
	GatewayID        string `json:"gatewayId"`
	GatewayName      string `json:"gatewayName,omitempty"`
	Location         string `json:"location,omitempty"`
	Type             string `json:"type,omitempty"`
}

type RegisterDeviceRequest struct {
	RegistrationCode string `json:"registrationCode"`
	DeviceID         string `json:"deviceId"`
	DeviceName       string `json:"deviceName,omitempty"`
	Location         string `json:"location,omitempty"`
	GatewayID        string `json:"gatewayId"`
}

type AnnounceDeviceRequest struct {
	GatewayID string `json:"gatewayId"`
	DeviceID  string `json:"deviceId,omitempty"`
	Type      string `json:"type,omitempty"`
}

type RenameGatewayRequest struct {
	Name string `json:"name"`
}

type RegisterGatewayResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Gateway *Gateway `json:"gateway,omitempty"`
}

type RegisterDeviceResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Device  *Device `json:"device,omitempty"`
}

// RegistrationCodeResponse is returned by the registration-code endpoints.
// ExpiresIn is in seconds.
type RegistrationCodeResponse struct {
	RegistrationCode string `json:"registrationCode"`
	DeviceID         string `json:"deviceId,omitempty"`
	GatewayID        string `json:"gatewayId,omitempty"`
	ExpiresIn        int64  `json:"expiresIn"`
}
