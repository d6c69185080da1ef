package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"push-device-service/internal/apierror"
	"push-device-service/internal/model"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleDevice(id, user string, kind model.DeviceKind, offset time.Duration) model.Device {
	return model.Device{
		ID:               id,
		UserID:           user,
		Kind:             kind,
		Name:             "phone " + id,
		Model:            "Pixel 8",
		PushID:           "push-" + id,
		PublicKey:        "key-" + id,
		RegistrationTime: baseTime.Add(offset),
		LastUsedTime:     baseTime.Add(offset),
	}
}

func strPtr(s string) *string { return &s }

// runStoreConformance exercises behaviour every Store backend must share.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		d := sampleDevice("d1", "alice", model.KindPush, 0)
		require.NoError(t, s.CreateDevice(ctx, d))

		got, err := s.GetDevice(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, d, got)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateDevice(ctx, sampleDevice("d1", "alice", model.KindPush, 0)))

		err := s.CreateDevice(ctx, sampleDevice("d1", "bob", model.KindPush, time.Minute))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceExists))
		assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))
	})

	t.Run("unknown device", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetDevice(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrDeviceNotFound))
		assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))

		_, err = s.UpdateDevice(context.Background(), "missing", model.DeviceUpdate{Name: strPtr("x")})
		assert.True(t, errors.Is(err, ErrDeviceNotFound))

		err = s.DeleteDevice(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrDeviceNotFound))
	})

	t.Run("list is scoped by owner and kind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateDevice(ctx, sampleDevice("b", "alice", model.KindPush, 2*time.Minute)))
		require.NoError(t, s.CreateDevice(ctx, sampleDevice("a", "alice", model.KindPush, time.Minute)))
		require.NoError(t, s.CreateDevice(ctx, sampleDevice("c", "alice", model.KindBiometric, 0)))
		require.NoError(t, s.CreateDevice(ctx, sampleDevice("d", "bob", model.KindPush, 0)))

		push, err := s.ListDevices(ctx, "alice", model.KindPush)
		require.NoError(t, err)
		require.Len(t, push, 2)
		assert.Equal(t, "a", push[0].ID)
		assert.Equal(t, "b", push[1].ID)

		bio, err := s.ListDevices(ctx, "alice", model.KindBiometric)
		require.NoError(t, err)
		require.Len(t, bio, 1)
		assert.Equal(t, "c", bio[0].ID)

		none, err := s.ListDevices(ctx, "carol", model.KindPush)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("update changes only given fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		d := sampleDevice("d1", "alice", model.KindPush, 0)
		require.NoError(t, s.CreateDevice(ctx, d))

		updated, err := s.UpdateDevice(ctx, "d1", model.DeviceUpdate{Name: strPtr("work phone")})
		require.NoError(t, err)
		assert.Equal(t, "work phone", updated.Name)
		assert.Equal(t, d.PushID, updated.PushID)

		updated, err = s.UpdateDevice(ctx, "d1", model.DeviceUpdate{PushID: strPtr("new-token")})
		require.NoError(t, err)
		assert.Equal(t, "work phone", updated.Name)
		assert.Equal(t, "new-token", updated.PushID)

		got, err := s.GetDevice(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, updated, got)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateDevice(ctx, sampleDevice("d1", "alice", model.KindPush, 0)))
		require.NoError(t, s.DeleteDevice(ctx, "d1"))

		_, err := s.GetDevice(ctx, "d1")
		assert.True(t, errors.Is(err, ErrDeviceNotFound))
		list, err := s.ListDevices(ctx, "alice", model.KindPush)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("pending registration is single use", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := model.PendingRegistration{
			DeviceID:     "d1",
			UserID:       "alice",
			Username:     "alice",
			TenantDomain: "carbon.super",
			Kind:         model.KindPush,
			Challenge:    "c-1",
			CreatedAt:    baseTime,
			ExpiresAt:    baseTime.Add(5 * time.Minute),
		}
		require.NoError(t, s.SavePending(ctx, p))

		got, err := s.TakePending(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, p, got)

		_, err = s.TakePending(ctx, "d1")
		assert.True(t, errors.Is(err, ErrPendingNotFound))
		assert.Equal(t, apierror.KindClient, apierror.KindOf(err))
	})

	t.Run("pending registration is replaced", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := model.PendingRegistration{DeviceID: "d1", UserID: "alice", Kind: model.KindPush, Challenge: "first",
			CreatedAt: baseTime, ExpiresAt: baseTime.Add(time.Minute)}
		require.NoError(t, s.SavePending(ctx, p))
		p.Challenge = "second"
		require.NoError(t, s.SavePending(ctx, p))

		got, err := s.TakePending(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Challenge)
	})

	t.Run("purge expired pending", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, ttl := range []time.Duration{time.Minute, 10 * time.Minute} {
			require.NoError(t, s.SavePending(ctx, model.PendingRegistration{
				DeviceID:  []string{"old", "fresh"}[i],
				UserID:    "alice",
				Kind:      model.KindPush,
				Challenge: "c",
				CreatedAt: baseTime,
				ExpiresAt: baseTime.Add(ttl),
			}))
		}

		n, err := s.PurgeExpiredPending(ctx, baseTime.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.TakePending(ctx, "old")
		assert.True(t, errors.Is(err, ErrPendingNotFound))
		_, err = s.TakePending(ctx, "fresh")
		assert.NoError(t, err)
	})

	t.Run("concurrent take yields one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SavePending(ctx, model.PendingRegistration{DeviceID: "d1", UserID: "alice",
			Kind: model.KindPush, Challenge: "c", CreatedAt: baseTime, ExpiresAt: baseTime.Add(time.Hour)}))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.TakePending(ctx, "d1"); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}
