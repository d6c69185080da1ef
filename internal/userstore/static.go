package userstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"push-device-service/internal/model"
)

// userNamespace derives stable ids for implicitly known users.
var userNamespace = uuid.MustParse("6f1f7a2e-0c55-4f4e-9d8b-2a3a8f0b9c41")

type StaticUser struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	TenantDomain string `yaml:"tenant"`
	FirstName    string `yaml:"firstName"`
	LastName     string `yaml:"lastName"`
}

type staticFile struct {
	Users []StaticUser `yaml:"users"`
}

// StaticStore serves users from a fixed list. In implicit mode any username
// resolves, with an id derived from tenant and username.
type StaticStore struct {
	users    map[string]model.User
	implicit bool
}

func NewStatic(users []StaticUser, implicit bool) *StaticStore {
	s := &StaticStore{users: make(map[string]model.User, len(users)), implicit: implicit}
	for _, u := range users {
		if u.Username == "" {
			continue
		}
		id := u.ID
		if id == "" {
			id = derivedID(u.Username, u.TenantDomain)
		}
		s.users[key(u.Username, u.TenantDomain)] = model.User{
			ID:           id,
			Username:     u.Username,
			TenantDomain: u.TenantDomain,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
		}
	}
	return s
}

// LoadStatic reads a YAML users file. An empty path yields an implicit store.
func LoadStatic(path string) (*StaticStore, error) {
	if path == "" {
		return NewStatic(nil, true), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	return NewStatic(f.Users, false), nil
}

func (s *StaticStore) ResolveUser(_ context.Context, username, tenantDomain string) (model.User, error) {
	if u, ok := s.users[key(username, tenantDomain)]; ok {
		return u, nil
	}
	if !s.implicit || username == "" {
		return model.User{}, userNotFound(username, tenantDomain)
	}
	return model.User{
		ID:           derivedID(username, tenantDomain),
		Username:     username,
		TenantDomain: tenantDomain,
	}, nil
}

func key(username, tenantDomain string) string {
	return strings.ToLower(tenantDomain) + "/" + username
}

func derivedID(username, tenantDomain string) string {
	return uuid.NewSHA1(userNamespace, []byte(key(username, tenantDomain))).String()
}
