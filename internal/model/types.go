package model

import "time"

// DeviceKind separates push devices from biometric devices. Every query is
// scoped to a single kind.
type DeviceKind string

const (
	KindPush      DeviceKind = "push"
	KindBiometric DeviceKind = "biometric"
)

func (k DeviceKind) Valid() bool {
	return k == KindPush || k == KindBiometric
}

// Field limits shared by every store backend.
const (
	MaxDeviceIDLength = 64
	MaxNameLength     = 255
	MaxModelLength    = 255
	MaxPushIDLength   = 1024
)

type Device struct {
	ID               string
	UserID           string
	Kind             DeviceKind
	Name             string
	Model            string
	PushID           string
	PublicKey        string
	RegistrationTime time.Time
	LastUsedTime     time.Time
}

type RegistrationRequest struct {
	DeviceID  string
	Kind      DeviceKind
	Name      string
	Model     string
	PushID    string
	PublicKey string
	Signature string
}

// DeviceUpdate carries the editable fields of a device; nil means unchanged.
type DeviceUpdate struct {
	Name   *string
	PushID *string
}

func (u DeviceUpdate) Empty() bool {
	return u.Name == nil && u.PushID == nil
}

// PendingRegistration is issued together with discovery data and consumed by
// the registration that proves possession of a key over Challenge.
type PendingRegistration struct {
	DeviceID     string
	UserID       string
	Username     string
	TenantDomain string
	Kind         DeviceKind
	Challenge    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (p PendingRegistration) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type DiscoveryData struct {
	DeviceID             string
	Username             string
	TenantDomain         string
	FirstName            string
	LastName             string
	Challenge            string
	Host                 string
	BasePath             string
	RegistrationEndpoint string
	RemoveDeviceEndpoint string
}

type User struct {
	ID           string
	Username     string
	TenantDomain string
	FirstName    string
	LastName     string
}

type EventType string

const (
	EventDeviceRegistered EventType = "device-registered"
	EventDeviceUpdated    EventType = "device-updated"
	EventDeviceRemoved    EventType = "device-removed"
)

// DeviceEvent reports a device state change to the sockets of its owner.
type DeviceEvent struct {
	Type     EventType  `json:"type"`
	Kind     DeviceKind `json:"kind"`
	UserID   string     `json:"-"`
	DeviceID string     `json:"deviceId"`
	Name     string     `json:"name,omitempty"`
	At       int64      `json:"at"`
}

// Caller is the authenticated session user.
type Caller struct {
	Username     string
	TenantDomain string
}
