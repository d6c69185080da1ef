package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"push-device-service/internal/apierror"
	"push-device-service/internal/dto"
	"push-device-service/internal/middleware"
	"push-device-service/internal/model"
	"push-device-service/internal/service"
)

// DevicesHandler serves the /me/{kind}-auth resources of one device kind.
type DevicesHandler struct {
	Service *service.PushDeviceService
	Kind    model.DeviceKind
}

func (h *DevicesHandler) Register(c *gin.Context) {
	var body dto.RegistrationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed registration request")
		return
	}
	resp, err := h.Service.RegisterDevice(c.Request.Context(), h.Kind, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DevicesHandler) List(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	devices, err := h.Service.ListDevices(c.Request.Context(), caller, h.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *DevicesHandler) Get(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	device, err := h.Service.GetDevice(c.Request.Context(), caller, h.Kind, c.Param("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DevicesHandler) Edit(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var patch dto.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "malformed device patch")
		return
	}
	device, err := h.Service.EditDevice(c.Request.Context(), caller, h.Kind, c.Param("deviceId"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DevicesHandler) Delete(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	if err := h.Service.UnregisterDevice(c.Request.Context(), caller, h.Kind, c.Param("deviceId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMobile always answers 200; the outcome is in the status body.
func (h *DevicesHandler) RemoveMobile(c *gin.Context) {
	var body dto.RemoveRequest
	_ = c.ShouldBindJSON(&body)
	status := h.Service.UnregisterDeviceMobile(c.Request.Context(), h.Kind, c.Param("deviceId"), body.Token)
	c.JSON(http.StatusOK, status)
}

// RemoveByToken is RemoveMobile for clients that only know the token.
func (h *DevicesHandler) RemoveByToken(c *gin.Context) {
	var body dto.RemoveRequest
	_ = c.ShouldBindJSON(&body)
	c.JSON(http.StatusOK, h.Service.UnregisterDeviceByToken(c.Request.Context(), h.Kind, body.Token))
}

func (h *DevicesHandler) DiscoveryData(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	data, err := h.Service.GetRegistrationDiscoveryData(c.Request.Context(), caller, h.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func callerOrAbort(c *gin.Context) (model.Caller, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.MsgUnauthenticated.Response())
	}
	return caller, ok
}

func badRequest(c *gin.Context, description string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apierror.MsgInvalidRequest.Response(description))
}

func writeError(c *gin.Context, err error) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(apiErr.Status, apiErr.Body)
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "PDM-15000", "message": "Server error."})
}
