// Package userstore resolves the identity-server user behind a session.
package userstore

import (
	"context"
	"errors"

	"push-device-service/internal/apierror"
	"push-device-service/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

// Store resolves a username within a tenant to the user record devices are
// owned by.
type Store interface {
	ResolveUser(ctx context.Context, username, tenantDomain string) (model.User, error)
}

func userNotFound(username, tenantDomain string) error {
	return apierror.Wrap(ErrUserNotFound, apierror.KindNotFound, "user "+username+"@"+tenantDomain)
}
