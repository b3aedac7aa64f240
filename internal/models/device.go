package models

import "time"

// Defaults applied to registration requests that leave optional fields empty.
const (
	DefaultGatewayType = "Gateway"
	DefaultDeviceType  = "Sensor"
	DefaultLocation    = "Unknown"
)

// Gateway is stored at users/{userId}/gateways/{gatewayId}.
// The document id is the gateway id and is not repeated inside the document.
type Gateway struct {
	ID       string `json:"id" firestore:"-"`
	Name     string `json:"name" firestore:"name"`
	Type     string `json:"type" firestore:"type"`
	Location string `json:"location" firestore:"location"`
	UserID   string `json:"userId" firestore:"userId"`
}

// Device is stored at users/{userId}/gateways/{gatewayId}/devices/{deviceId}.
type Device struct {
	ID           string `json:"id" firestore:"-"`
	Name         string `json:"name" firestore:"name"`
	Type         string `json:"type" firestore:"type"`
	Location     string `json:"location" firestore:"location"`
	GatewayID    string `json:"gatewayId" firestore:"gatewayId"`
	UserID       string `json:"userId" firestore:"userId"`
	IsRegistered bool   `json:"isRegistered" firestore:"isRegistered"`
}

// User is the bootstrap document at users/{userId}.
type User struct {
	ID        string    `json:"id" firestore:"-"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}

// PendingRegistration is an unclaimed device a gateway has discovered.
// It only lives in process memory.
type PendingRegistration struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	RegistrationCode string    `json:"registrationCode"`
	GatewayID        string    `json:"gatewayId"`
	AnnouncedAt      time.Time `json:"-"`
	ExpiresAt        time.Time `json:"-"`
}

// SubjectKind says what a registration code was issued for. A code only
// authorises a registration of the same kind.
type SubjectKind string

const (
	SubjectGateway SubjectKind = "gateway"
	SubjectDevice  SubjectKind = "device"
)

// RegistrationCode is a short pairing code issued for one subject.
type RegistrationCode struct {
	Kind      SubjectKind `json:"kind"`
	SubjectID string      `json:"subjectId"`
	Code      string      `json:"code"`
	IssuedAt  time.Time   `json:"issuedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Expired reports whether the code is no longer usable at now.
func (c RegistrationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
