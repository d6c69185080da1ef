package apierror

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Response is the error body returned to HTTP clients.
type Response struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// APIError is an error already translated to its HTTP representation.
type APIError struct {
	Status int
	Body   Response
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Body.Code, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Body.Code)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (m Message) Response(data ...string) Response {
	description := m.Description
	if len(data) > 0 {
		args := make([]any, len(data))
		for i, d := range data {
			args[i] = d
		}
		description = fmt.Sprintf(m.Description, args...)
	}
	return Response{Code: m.Code, Message: m.Message, Description: description}
}

// HandleException translates err into an APIError carrying msg. Unauthenticated
// failures always answer with the generic unauthenticated body.
func HandleException(err error, msg Message, data ...string) *APIError {
	kind := KindOf(err)
	if kind == KindUnauthenticated {
		return &APIError{Status: http.StatusUnauthorized, Body: MsgUnauthenticated.Response(), Err: err}
	}

	apiErr := &APIError{Status: StatusFor(kind), Body: msg.Response(data...), Err: err}
	fields := []zap.Field{
		zap.String("code", apiErr.Body.Code),
		zap.Stringer("kind", kind),
		zap.Int("status", apiErr.Status),
		zap.Error(err),
	}
	if apiErr.Status >= http.StatusInternalServerError {
		zap.L().Error(apiErr.Body.Description, fields...)
	} else {
		zap.L().Debug(apiErr.Body.Description, fields...)
	}
	return apiErr
}
