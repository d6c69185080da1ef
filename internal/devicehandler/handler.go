// Package devicehandler owns the device lifecycle: discovery challenges,
// proof-of-possession registration, ownership-checked queries and removal.
package devicehandler

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"push-device-service/internal/apierror"
	"push-device-service/internal/auth"
	"push-device-service/internal/model"
	"push-device-service/internal/store"
	"push-device-service/internal/userstore"
)

// DeviceHandler is the collaborator the API service drives. Implementations
// are safe for concurrent use.
type DeviceHandler interface {
	RegisterDevice(ctx context.Context, req model.RegistrationRequest) (model.Device, error)
	// UnregisterDevice removes a device owned by caller.
	UnregisterDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) error
	// RemoveDevice removes a device whose possession was proven by a device token.
	RemoveDevice(ctx context.Context, kind model.DeviceKind, deviceID string) error
	GetDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) (model.Device, error)
	GetPublicKey(ctx context.Context, kind model.DeviceKind, deviceID string) (string, error)
	ListDevices(ctx context.Context, caller model.Caller, kind model.DeviceKind) ([]model.Device, error)
	EditDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string, update model.DeviceUpdate) (model.Device, error)
	GetRegistrationDiscoveryData(ctx context.Context, caller model.Caller, kind model.DeviceKind) (model.DiscoveryData, error)
}

type Notifier interface {
	Publish(evt model.DeviceEvent)
}

type Config struct {
	Host         string
	BasePath     string
	ChallengeTTL time.Duration
}

const DefaultChallengeTTL = 5 * time.Minute

type Handler struct {
	store    store.Store
	users    userstore.Store
	notifier Notifier
	cfg      Config

	now   func() time.Time
	newID func() string
}

func New(st store.Store, users userstore.Store, notifier Notifier, cfg Config) *Handler {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	return &Handler{
		store:    st,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

var _ DeviceHandler = (*Handler)(nil)

func (h *Handler) RegisterDevice(ctx context.Context, req model.RegistrationRequest) (model.Device, error) {
	if err := validateRegistration(req); err != nil {
		return model.Device{}, err
	}

	pending, err := h.store.TakePending(ctx, req.DeviceID)
	if err != nil {
		return model.Device{}, err
	}
	now := h.now()
	if pending.Expired(now) {
		return model.Device{}, apierror.Newf(apierror.KindClient, "registration challenge for device %s expired", req.DeviceID)
	}
	if pending.Kind != req.Kind {
		return model.Device{}, apierror.Newf(apierror.KindClient, "device %s was not discovered as a %s device", req.DeviceID, req.Kind)
	}
	if _, err := h.store.GetDevice(ctx, req.DeviceID); err == nil {
		return model.Device{}, apierror.Wrap(store.ErrDeviceExists, apierror.KindConflict, "device "+req.DeviceID)
	} else if apierror.KindOf(err) != apierror.KindNotFound {
		return model.Device{}, err
	}

	if err := auth.VerifyChallenge(req.PublicKey, pending.Challenge, req.PushID, req.Signature); err != nil {
		return model.Device{}, err
	}

	device := model.Device{
		ID:               req.DeviceID,
		UserID:           pending.UserID,
		Kind:             req.Kind,
		Name:             strings.TrimSpace(req.Name),
		Model:            strings.TrimSpace(req.Model),
		PushID:           req.PushID,
		PublicKey:        req.PublicKey,
		RegistrationTime: now,
		LastUsedTime:     now,
	}
	if err := h.store.CreateDevice(ctx, device); err != nil {
		return model.Device{}, err
	}

	zap.L().Info("device registered",
		zap.String("deviceId", device.ID),
		zap.String("kind", string(device.Kind)),
		zap.String("username", pending.Username))
	h.publish(model.EventDeviceRegistered, device)
	return device, nil
}

func validateRegistration(req model.RegistrationRequest) error {
	switch {
	case !req.Kind.Valid():
		return apierror.Newf(apierror.KindClient, "unknown device kind %q", req.Kind)
	case strings.TrimSpace(req.DeviceID) == "":
		return apierror.New(apierror.KindClient, "device id is required")
	case strings.TrimSpace(req.PublicKey) == "":
		return apierror.New(apierror.KindClient, "public key is required")
	case strings.TrimSpace(req.Signature) == "":
		return apierror.New(apierror.KindClient, "signature is required")
	case req.Kind == model.KindPush && strings.TrimSpace(req.PushID) == "":
		return apierror.New(apierror.KindClient, "push id is required")
	}
	if err := checkLength("device id", req.DeviceID, model.MaxDeviceIDLength); err != nil {
		return err
	}
	if err := checkLength("device name", strings.TrimSpace(req.Name), model.MaxNameLength); err != nil {
		return err
	}
	if err := checkLength("device model", strings.TrimSpace(req.Model), model.MaxModelLength); err != nil {
		return err
	}
	return checkLength("push id", req.PushID, model.MaxPushIDLength)
}

func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apierror.Newf(apierror.KindClient, "%s exceeds %d characters", field, max)
	}
	return nil
}

func (h *Handler) UnregisterDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) error {
	device, err := h.ownedDevice(ctx, caller, kind, deviceID)
	if err != nil {
		return err
	}
	if err := h.store.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}
	h.publish(model.EventDeviceRemoved, device)
	return nil
}

func (h *Handler) RemoveDevice(ctx context.Context, kind model.DeviceKind, deviceID string) error {
	device, err := h.deviceOfKind(ctx, kind, deviceID)
	if err != nil {
		return err
	}
	if err := h.store.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}
	h.publish(model.EventDeviceRemoved, device)
	return nil
}

func (h *Handler) GetDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) (model.Device, error) {
	return h.ownedDevice(ctx, caller, kind, deviceID)
}

func (h *Handler) GetPublicKey(ctx context.Context, kind model.DeviceKind, deviceID string) (string, error) {
	device, err := h.deviceOfKind(ctx, kind, deviceID)
	if err != nil {
		return "", err
	}
	return device.PublicKey, nil
}

func (h *Handler) ListDevices(ctx context.Context, caller model.Caller, kind model.DeviceKind) ([]model.Device, error) {
	user, err := h.resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	return h.store.ListDevices(ctx, user.ID, kind)
}

func (h *Handler) EditDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string, update model.DeviceUpdate) (model.Device, error) {
	if update.Empty() {
		return model.Device{}, apierror.New(apierror.KindClient, "nothing to update")
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return model.Device{}, apierror.New(apierror.KindClient, "device name must not be empty")
		}
		if err := checkLength("device name", name, model.MaxNameLength); err != nil {
			return model.Device{}, err
		}
		update.Name = &name
	}
	current, err := h.ownedDevice(ctx, caller, kind, deviceID)
	if err != nil {
		return model.Device{}, err
	}
	if update.PushID != nil {
		pushID := strings.TrimSpace(*update.PushID)
		if pushID == "" && current.Kind == model.KindPush {
			return model.Device{}, apierror.New(apierror.KindClient, "push id must not be empty")
		}
		if err := checkLength("push id", pushID, model.MaxPushIDLength); err != nil {
			return model.Device{}, err
		}
		update.PushID = &pushID
	}
	device, err := h.store.UpdateDevice(ctx, deviceID, update)
	if err != nil {
		return model.Device{}, err
	}
	h.publish(model.EventDeviceUpdated, device)
	return device, nil
}

func (h *Handler) GetRegistrationDiscoveryData(ctx context.Context, caller model.Caller, kind model.DeviceKind) (model.DiscoveryData, error) {
	if !kind.Valid() {
		return model.DiscoveryData{}, apierror.Newf(apierror.KindClient, "unknown device kind %q", kind)
	}
	user, err := h.resolve(ctx, caller)
	if err != nil {
		return model.DiscoveryData{}, err
	}

	now := h.now()
	pending := model.PendingRegistration{
		DeviceID:     h.newID(),
		UserID:       user.ID,
		Username:     user.Username,
		TenantDomain: user.TenantDomain,
		Kind:         kind,
		Challenge:    h.newID(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.cfg.ChallengeTTL),
	}
	if err := h.store.SavePending(ctx, pending); err != nil {
		return model.DiscoveryData{}, err
	}

	devices := h.cfg.BasePath + "/me/" + string(kind) + "-auth/devices"
	return model.DiscoveryData{
		DeviceID:             pending.DeviceID,
		Username:             user.Username,
		TenantDomain:         user.TenantDomain,
		FirstName:            user.FirstName,
		LastName:             user.LastName,
		Challenge:            pending.Challenge,
		Host:                 h.cfg.Host,
		BasePath:             h.cfg.BasePath,
		RegistrationEndpoint: devices,
		RemoveDeviceEndpoint: devices + "/remove",
	}, nil
}

func (h *Handler) resolve(ctx context.Context, caller model.Caller) (model.User, error) {
	if caller.Username == "" {
		return model.User{}, apierror.New(apierror.KindUnauthenticated, "no authenticated user")
	}
	return h.users.ResolveUser(ctx, caller.Username, caller.TenantDomain)
}

// ownedDevice hides devices of other users and other kinds behind not found.
func (h *Handler) ownedDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) (model.Device, error) {
	user, err := h.resolve(ctx, caller)
	if err != nil {
		return model.Device{}, err
	}
	device, err := h.deviceOfKind(ctx, kind, deviceID)
	if err != nil {
		return model.Device{}, err
	}
	if device.UserID != user.ID {
		return model.Device{}, deviceNotFound(deviceID)
	}
	return device, nil
}

func (h *Handler) deviceOfKind(ctx context.Context, kind model.DeviceKind, deviceID string) (model.Device, error) {
	device, err := h.store.GetDevice(ctx, deviceID)
	if err != nil {
		return model.Device{}, err
	}
	if device.Kind != kind {
		return model.Device{}, deviceNotFound(deviceID)
	}
	return device, nil
}

func deviceNotFound(deviceID string) error {
	return apierror.Wrap(store.ErrDeviceNotFound, apierror.KindNotFound, "device "+deviceID)
}

func (h *Handler) publish(t model.EventType, d model.Device) {
	if h.notifier == nil {
		return
	}
	h.notifier.Publish(model.DeviceEvent{
		Type:     t,
		Kind:     d.Kind,
		UserID:   d.UserID,
		DeviceID: d.ID,
		Name:     d.Name,
		At:       h.now().UnixMilli(),
	})
}
