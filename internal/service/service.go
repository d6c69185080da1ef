// Package service maps the device API onto a DeviceHandler and translates
// its failures into API errors.
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"push-device-service/internal/apierror"
	"push-device-service/internal/auth"
	"push-device-service/internal/devicehandler"
	"push-device-service/internal/dto"
	"push-device-service/internal/model"
)

// TokenValidator checks a device-signed token against the stored public key.
type TokenValidator func(token, publicKeyB64, deviceID string) error

type PushDeviceService struct {
	handler       devicehandler.DeviceHandler
	validateToken TokenValidator
}

// New returns a service driving handler. A nil validator selects
// auth.ValidateDeviceToken.
func New(handler devicehandler.DeviceHandler, validator TokenValidator) *PushDeviceService {
	if validator == nil {
		validator = auth.ValidateDeviceToken
	}
	return &PushDeviceService{handler: handler, validateToken: validator}
}

func (s *PushDeviceService) RegisterDevice(ctx context.Context, kind model.DeviceKind, req dto.RegistrationRequest) (dto.RegistrationResponse, error) {
	device, err := s.handler.RegisterDevice(ctx, dto.ToRegistration(req, kind))
	if err != nil {
		return dto.RegistrationResponse{}, fail(err, apierror.MsgRegisterDevice)
	}
	return dto.RegistrationResponse{ID: device.ID, Status: dto.StatusSuccessful}, nil
}

func (s *PushDeviceService) UnregisterDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) error {
	if err := s.handler.UnregisterDevice(ctx, caller, kind, deviceID); err != nil {
		return fail(err, apierror.MsgUnregisterDevice, deviceID)
	}
	return nil
}

// UnregisterDeviceMobile removes a device on the strength of a token signed
// by the device key. It never fails: every error becomes a FAILED status.
func (s *PushDeviceService) UnregisterDeviceMobile(ctx context.Context, kind model.DeviceKind, deviceID, token string) dto.Status {
	status := dto.Status{DeviceID: deviceID, Operation: dto.OperationDelete, Status: dto.StatusFailed}

	err := s.removeWithToken(ctx, kind, deviceID, token)
	if err != nil {
		zap.L().Warn("mobile device removal failed",
			zap.String("deviceId", deviceID),
			zap.String("kind", string(kind)),
			zap.Stringer("errorKind", apierror.KindOf(err)),
			zap.Error(err))
		return status
	}
	status.Status = dto.StatusSuccessful
	return status
}

// UnregisterDeviceByToken serves removal requests that carry the device id
// only inside the token.
func (s *PushDeviceService) UnregisterDeviceByToken(ctx context.Context, kind model.DeviceKind, token string) dto.Status {
	return s.UnregisterDeviceMobile(ctx, kind, auth.UnverifiedDeviceID(token), token)
}

func (s *PushDeviceService) removeWithToken(ctx context.Context, kind model.DeviceKind, deviceID, token string) error {
	if strings.TrimSpace(token) == "" {
		return apierror.New(apierror.KindClient, "token is required")
	}
	if deviceID == "" {
		return apierror.New(apierror.KindClient, "device id is required")
	}
	publicKey, err := s.handler.GetPublicKey(ctx, kind, deviceID)
	if err != nil {
		return err
	}
	if err := s.validateToken(token, publicKey, deviceID); err != nil {
		return err
	}
	return s.handler.RemoveDevice(ctx, kind, deviceID)
}

func (s *PushDeviceService) GetDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string) (dto.Device, error) {
	device, err := s.handler.GetDevice(ctx, caller, kind, deviceID)
	if err != nil {
		return dto.Device{}, fail(err, apierror.MsgGetDevice, deviceID)
	}
	return dto.FromDevice(device), nil
}

func (s *PushDeviceService) ListDevices(ctx context.Context, caller model.Caller, kind model.DeviceKind) ([]dto.Device, error) {
	devices, err := s.handler.ListDevices(ctx, caller, kind)
	if err != nil {
		return nil, fail(err, apierror.MsgListDevices)
	}
	return dto.FromDeviceList(devices), nil
}

func (s *PushDeviceService) EditDevice(ctx context.Context, caller model.Caller, kind model.DeviceKind, deviceID string, patch dto.Patch) (dto.Device, error) {
	device, err := s.handler.EditDevice(ctx, caller, kind, deviceID, patch.ToUpdate())
	if err != nil {
		return dto.Device{}, fail(err, apierror.MsgEditDevice, deviceID)
	}
	return dto.FromDevice(device), nil
}

func (s *PushDeviceService) GetRegistrationDiscoveryData(ctx context.Context, caller model.Caller, kind model.DeviceKind) (dto.DiscoveryData, error) {
	data, err := s.handler.GetRegistrationDiscoveryData(ctx, caller, kind)
	if err != nil {
		return dto.DiscoveryData{}, fail(err, apierror.MsgDiscoveryData)
	}
	return dto.FromDiscoveryData(data), nil
}

func fail(err error, msg apierror.Message, data ...string) error {
	if apierror.KindOf(err) == apierror.KindUserStore {
		return apierror.HandleException(err, apierror.MsgUserStore)
	}
	return apierror.HandleException(err, msg, data...)
}
