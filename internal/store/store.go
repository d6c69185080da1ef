package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"push-device-service/internal/apierror"
	"push-device-service/internal/model"
)

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrDeviceExists    = errors.New("device already registered")
	ErrPendingNotFound = errors.New("no pending registration for device")
)

// Store persists registered devices and the pending registrations that
// precede them. Implementations are safe for concurrent use.
type Store interface {
	CreateDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, deviceID string) (model.Device, error)
	ListDevices(ctx context.Context, userID string, kind model.DeviceKind) ([]model.Device, error)
	UpdateDevice(ctx context.Context, deviceID string, update model.DeviceUpdate) (model.Device, error)
	DeleteDevice(ctx context.Context, deviceID string) error

	SavePending(ctx context.Context, pending model.PendingRegistration) error
	// TakePending removes and returns the pending registration of deviceID.
	TakePending(ctx context.Context, deviceID string) (model.PendingRegistration, error)
	PurgeExpiredPending(ctx context.Context, now time.Time) (int, error)

	Close() error
}

func notFound(deviceID string) error {
	return apierror.Wrap(ErrDeviceNotFound, apierror.KindNotFound, "device "+deviceID)
}

func exists(deviceID string) error {
	return apierror.Wrap(ErrDeviceExists, apierror.KindConflict, "device "+deviceID)
}

func pendingNotFound(deviceID string) error {
	return apierror.Wrap(ErrPendingNotFound, apierror.KindClient, "device "+deviceID)
}

// storageErr classifies a backend failure. Errors already classified further
// down keep their kind.
func storageErr(err error, op string) error {
	if kind := apierror.KindOf(err); kind != apierror.KindUnknown {
		return apierror.Wrap(err, kind, op)
	}
	return apierror.Wrap(err, apierror.KindStorage, op)
}

func serializationErr(err error, op string) error {
	return apierror.Wrap(err, apierror.KindSerialization, op)
}

func applyUpdate(d *model.Device, update model.DeviceUpdate) {
	if update.Name != nil {
		d.Name = *update.Name
	}
	if update.PushID != nil {
		d.PushID = *update.PushID
	}
}

func sortDevices(devices []model.Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].RegistrationTime.Equal(devices[j].RegistrationTime) {
			return devices[i].ID < devices[j].ID
		}
		return devices[i].RegistrationTime.Before(devices[j].RegistrationTime)
	})
}
