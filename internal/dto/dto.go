// Package dto holds the wire records of the device API.
package dto

import (
	"time"

	"github.com/jinzhu/copier"
	"push-device-service/internal/model"
)

const (
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"

	OperationDelete = "DELETE"
)

type RegistrationRequest struct {
	DeviceID  string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	PushID    string `json:"pushId"`
	PublicKey string `json:"publickey"`
	Signature string `json:"signature"`
}

// Device never carries the public key.
type Device struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Model            string    `json:"model"`
	PushID           string    `json:"pushId,omitempty"`
	RegistrationTime time.Time `json:"registrationTime"`
	LastUsedTime     time.Time `json:"lastUsedTime"`
}

// DiscoveryData is rendered into the registration QR code, hence the short keys.
type DiscoveryData struct {
	DeviceID             string `json:"did"`
	Username             string `json:"un"`
	TenantDomain         string `json:"td"`
	FirstName            string `json:"fn"`
	LastName             string `json:"ln"`
	Challenge            string `json:"chg"`
	Host                 string `json:"hst"`
	BasePath             string `json:"bp"`
	RegistrationEndpoint string `json:"re"`
	RemoveDeviceEndpoint string `json:"rde"`
}

type Status struct {
	DeviceID  string `json:"deviceId"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
}

type RegistrationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Patch struct {
	Name   *string `json:"name,omitempty"`
	PushID *string `json:"pushId,omitempty"`
}

type RemoveRequest struct {
	Token string `json:"token"`
}

func ToRegistration(req RegistrationRequest, kind model.DeviceKind) model.RegistrationRequest {
	var out model.RegistrationRequest
	_ = copier.Copy(&out, &req)
	out.Kind = kind
	return out
}

func FromDevice(d model.Device) Device {
	var out Device
	_ = copier.Copy(&out, &d)
	return out
}

// FromDeviceList maps devices for listing; entries omit the push id.
func FromDeviceList(devices []model.Device) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		item := FromDevice(d)
		item.PushID = ""
		out = append(out, item)
	}
	return out
}

func FromDiscoveryData(d model.DiscoveryData) DiscoveryData {
	var out DiscoveryData
	_ = copier.Copy(&out, &d)
	return out
}

func (p Patch) ToUpdate() model.DeviceUpdate {
	return model.DeviceUpdate{Name: p.Name, PushID: p.PushID}
}
