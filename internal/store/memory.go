package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"push-device-service/internal/model"
)

// MemoryStore keeps devices in maps. With a state file configured, every
// mutation writes an atomic JSON snapshot that is reloaded on start.
type MemoryStore struct {
	mu sync.RWMutex

	stateFile    string
	seq          uint64
	persistMu    sync.Mutex
	persistedSeq uint64

	devicesByID      map[string]model.Device
	pendingByID      map[string]model.PendingRegistration
	deviceIDsByOwner map[string]map[string]struct{}
}

type MemoryOptions struct {
	StateFile string
}

func NewMemory() *MemoryStore {
	return NewMemoryWithOptions(MemoryOptions{})
}

func NewMemoryWithOptions(opts MemoryOptions) *MemoryStore {
	s := &MemoryStore{
		stateFile:        opts.StateFile,
		devicesByID:      make(map[string]model.Device),
		pendingByID:      make(map[string]model.PendingRegistration),
		deviceIDsByOwner: make(map[string]map[string]struct{}),
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			zap.L().Warn("device state: load failed", zap.String("file", s.stateFile), zap.Error(err))
		}
	}
	return s
}

const stateVersion = 1

type persistedState struct {
	Version int                         `json:"version"`
	Devices []model.Device              `json:"devices"`
	Pending []model.PendingRegistration `json:"pending"`
	SavedAt int64                       `json:"savedAt"`

	seq uint64
}

func (s *MemoryStore) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedState
	if err := json.Unmarshal(data, &file); err != nil {
		return serializationErr(err, "decode device state")
	}
	if file.Version != stateVersion {
		return errors.New("unsupported device state version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range file.Devices {
		if d.ID == "" || d.UserID == "" {
			continue
		}
		s.putDeviceLocked(d)
	}
	for _, p := range file.Pending {
		if p.DeviceID == "" {
			continue
		}
		s.pendingByID[p.DeviceID] = p
	}
	return nil
}

func (s *MemoryStore) snapshotLocked() persistedState {
	devices := make([]model.Device, 0, len(s.devicesByID))
	for _, d := range s.devicesByID {
		devices = append(devices, d)
	}
	sortDevices(devices)
	pending := make([]model.PendingRegistration, 0, len(s.pendingByID))
	for _, p := range s.pendingByID {
		pending = append(pending, p)
	}
	s.seq++
	return persistedState{Version: stateVersion, Devices: devices, Pending: pending, seq: s.seq}
}

// persist writes a snapshot taken under s.mu unless a newer one was already
// written. Failures are logged; the in-memory state stays authoritative.
func (s *MemoryStore) persist(state persistedState) {
	path := s.stateFile
	if path == "" {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if state.seq <= s.persistedSeq {
		return
	}

	log := zap.L().With(zap.String("file", path))
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.Error("device state: mkdir failed", zap.Error(err))
		return
	}

	state.SavedAt = time.Now().UnixMilli()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Error("device state: marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		log.Error("device state: create temp failed", zap.Error(err))
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		log.Error("device state: chmod temp failed", zap.Error(err))
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		log.Error("device state: write temp failed", zap.Error(err))
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		log.Error("device state: sync temp failed", zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		log.Error("device state: close temp failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		log.Error("device state: rename failed", zap.Error(err))
		return
	}
	s.persistedSeq = state.seq
}

func (s *MemoryStore) putDeviceLocked(d model.Device) {
	s.devicesByID[d.ID] = d
	owned := s.deviceIDsByOwner[d.UserID]
	if owned == nil {
		owned = make(map[string]struct{})
		s.deviceIDsByOwner[d.UserID] = owned
	}
	owned[d.ID] = struct{}{}
}

func (s *MemoryStore) CreateDevice(_ context.Context, device model.Device) error {
	s.mu.Lock()
	if _, ok := s.devicesByID[device.ID]; ok {
		s.mu.Unlock()
		return exists(device.ID)
	}
	s.putDeviceLocked(device)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(state)
	return nil
}

func (s *MemoryStore) GetDevice(_ context.Context, deviceID string) (model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devicesByID[deviceID]
	if !ok {
		return model.Device{}, notFound(deviceID)
	}
	return d, nil
}

func (s *MemoryStore) ListDevices(_ context.Context, userID string, kind model.DeviceKind) ([]model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Device, 0, len(s.deviceIDsByOwner[userID]))
	for id := range s.deviceIDsByOwner[userID] {
		if d := s.devicesByID[id]; d.Kind == kind {
			result = append(result, d)
		}
	}
	sortDevices(result)
	return result, nil
}

func (s *MemoryStore) UpdateDevice(_ context.Context, deviceID string, update model.DeviceUpdate) (model.Device, error) {
	s.mu.Lock()
	d, ok := s.devicesByID[deviceID]
	if !ok {
		s.mu.Unlock()
		return model.Device{}, notFound(deviceID)
	}
	applyUpdate(&d, update)
	s.devicesByID[deviceID] = d
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(state)
	return d, nil
}

func (s *MemoryStore) DeleteDevice(_ context.Context, deviceID string) error {
	s.mu.Lock()
	d, ok := s.devicesByID[deviceID]
	if !ok {
		s.mu.Unlock()
		return notFound(deviceID)
	}
	delete(s.devicesByID, deviceID)
	if owned := s.deviceIDsByOwner[d.UserID]; owned != nil {
		delete(owned, deviceID)
		if len(owned) == 0 {
			delete(s.deviceIDsByOwner, d.UserID)
		}
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(state)
	return nil
}

func (s *MemoryStore) SavePending(_ context.Context, pending model.PendingRegistration) error {
	s.mu.Lock()
	s.pendingByID[pending.DeviceID] = pending
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(state)
	return nil
}

func (s *MemoryStore) TakePending(_ context.Context, deviceID string) (model.PendingRegistration, error) {
	s.mu.Lock()
	p, ok := s.pendingByID[deviceID]
	if !ok {
		s.mu.Unlock()
		return model.PendingRegistration{}, pendingNotFound(deviceID)
	}
	delete(s.pendingByID, deviceID)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(state)
	return p, nil
}

func (s *MemoryStore) PurgeExpiredPending(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	purged := 0
	for id, p := range s.pendingByID {
		if p.Expired(now) {
			delete(s.pendingByID, id)
			purged++
		}
	}
	if purged == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(state)
	return purged, nil
}

func (s *MemoryStore) Close() error { return nil }
