package userstore

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"push-device-service/internal/apierror"
	"push-device-service/internal/model"
)

const DefaultUserFilter = "(&(objectClass=inetOrgPerson)(uid={username}))"

type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	// UserFilter may reference {username} and {tenant}; values are escaped.
	UserFilter string
	Timeout    time.Duration
}

// LDAPStore looks users up in a directory, one connection per lookup.
type LDAPStore struct {
	cfg  LDAPConfig
	dial func(url string) (ldap.Client, error)
}

var ldapAttributes = []string{"entryUUID", "uid", "givenName", "sn"}

func NewLDAP(cfg LDAPConfig) *LDAPStore {
	if cfg.UserFilter == "" {
		cfg.UserFilter = DefaultUserFilter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &LDAPStore{
		cfg: cfg,
		dial: func(url string) (ldap.Client, error) {
			return ldap.DialURL(url, ldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout}))
		},
	}
}

func (s *LDAPStore) ResolveUser(ctx context.Context, username, tenantDomain string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, apierror.Wrap(err, apierror.KindUserStore, "ldap lookup")
	}
	conn, err := s.dial(s.cfg.URL)
	if err != nil {
		return model.User{}, apierror.Wrap(err, apierror.KindUserStore, "ldap dial")
	}
	defer conn.Close()

	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	conn.SetTimeout(timeout)

	if s.cfg.BindDN != "" {
		if err := conn.Bind(s.cfg.BindDN, s.cfg.BindPassword); err != nil {
			return model.User{}, apierror.Wrap(err, apierror.KindUserStore, "ldap bind")
		}
	}

	req := ldap.NewSearchRequest(
		s.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, int(timeout/time.Second), false,
		BuildFilter(s.cfg.UserFilter, username, tenantDomain),
		ldapAttributes,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return model.User{}, apierror.Wrap(err, apierror.KindUserStore, "ldap search")
	}
	switch len(res.Entries) {
	case 0:
		return model.User{}, userNotFound(username, tenantDomain)
	case 1:
	default:
		return model.User{}, apierror.New(apierror.KindUserStore,
			fmt.Sprintf("ldap search for %s matched %d entries", username, len(res.Entries)))
	}

	entry := res.Entries[0]
	id := entry.GetAttributeValue("entryUUID")
	if id == "" {
		id = entry.DN
	}
	return model.User{
		ID:           id,
		Username:     username,
		TenantDomain: tenantDomain,
		FirstName:    entry.GetAttributeValue("givenName"),
		LastName:     entry.GetAttributeValue("sn"),
	}, nil
}

// BuildFilter substitutes escaped values into an LDAP filter template.
func BuildFilter(template, username, tenantDomain string) string {
	r := strings.NewReplacer(
		"{username}", ldap.EscapeFilter(username),
		"{tenant}", ldap.EscapeFilter(tenantDomain),
	)
	return r.Replace(template)
}
