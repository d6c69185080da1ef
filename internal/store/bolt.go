package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"push-device-service/internal/model"
)

var (
	devicesBucket = []byte("devices")
	pendingBucket = []byte("pending_registrations")
)

// BoltStore keeps devices in an embedded bbolt file, one JSON value per key.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{devicesBucket, pendingBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) CreateDevice(_ context.Context, device model.Device) error {
	var conflict bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(devicesBucket)
		if b.Get([]byte(device.ID)) != nil {
			conflict = true
			return nil
		}
		return putJSON(b, device.ID, device)
	})
	if err != nil {
		return storageErr(err, "create device")
	}
	if conflict {
		return exists(device.ID)
	}
	return nil
}

func (s *BoltStore) GetDevice(_ context.Context, deviceID string) (model.Device, error) {
	var (
		d     model.Device
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(devicesBucket).Get([]byte(deviceID))
		if raw == nil {
			return nil
		}
		found = true
		return decodeJSON(raw, &d)
	})
	if err != nil {
		return model.Device{}, storageErr(err, "get device")
	}
	if !found {
		return model.Device{}, notFound(deviceID)
	}
	return d, nil
}

func (s *BoltStore) ListDevices(_ context.Context, userID string, kind model.DeviceKind) ([]model.Device, error) {
	result := make([]model.Device, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(devicesBucket).ForEach(func(_, v []byte) error {
			var d model.Device
			if err := decodeJSON(v, &d); err != nil {
				return err
			}
			if d.UserID == userID && d.Kind == kind {
				result = append(result, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(err, "list devices")
	}
	sortDevices(result)
	return result, nil
}

func (s *BoltStore) UpdateDevice(_ context.Context, deviceID string, update model.DeviceUpdate) (model.Device, error) {
	var (
		d     model.Device
		found bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(devicesBucket)
		raw := b.Get([]byte(deviceID))
		if raw == nil {
			return nil
		}
		found = true
		if err := decodeJSON(raw, &d); err != nil {
			return err
		}
		applyUpdate(&d, update)
		return putJSON(b, deviceID, d)
	})
	if err != nil {
		return model.Device{}, storageErr(err, "update device")
	}
	if !found {
		return model.Device{}, notFound(deviceID)
	}
	return d, nil
}

func (s *BoltStore) DeleteDevice(_ context.Context, deviceID string) error {
	var found bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(devicesBucket)
		if b.Get([]byte(deviceID)) == nil {
			return nil
		}
		found = true
		return b.Delete([]byte(deviceID))
	})
	if err != nil {
		return storageErr(err, "delete device")
	}
	if !found {
		return notFound(deviceID)
	}
	return nil
}

func (s *BoltStore) SavePending(_ context.Context, pending model.PendingRegistration) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(pendingBucket), pending.DeviceID, pending)
	})
	return storageErr(err, "save pending registration")
}

func (s *BoltStore) TakePending(_ context.Context, deviceID string) (model.PendingRegistration, error) {
	var (
		p     model.PendingRegistration
		found bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		raw := b.Get([]byte(deviceID))
		if raw == nil {
			return nil
		}
		found = true
		if err := decodeJSON(raw, &p); err != nil {
			return err
		}
		return b.Delete([]byte(deviceID))
	})
	if err != nil {
		return model.PendingRegistration{}, storageErr(err, "take pending registration")
	}
	if !found {
		return model.PendingRegistration{}, pendingNotFound(deviceID)
	}
	return p, nil
}

func (s *BoltStore) PurgeExpiredPending(_ context.Context, now time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var p model.PendingRegistration
			if err := decodeJSON(v, &p); err != nil {
				return err
			}
			if p.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	if err != nil {
		return 0, storageErr(err, "purge pending registrations")
	}
	return purged, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(b *bolt.Bucket, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return serializationErr(err, "encode "+key)
	}
	return b.Put([]byte(key), raw)
}

func decodeJSON(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return serializationErr(err, "decode record")
	}
	return nil
}
