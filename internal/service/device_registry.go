package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oplink/sessionsync/internal/domain/device"
	"github.com/oplink/sessionsync/internal/domain/session"
	"github.com/oplink/sessionsync/internal/identity"
	"github.com/oplink/sessionsync/internal/port/outbound"
)

// DeviceRegistry tracks per-device metadata independent of individual
// sessions. Device records are created on first sight and never deleted by
// the engine. Safe for concurrent use.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*device.DeviceSession

	durable outbound.DurableStore
	logger  *slog.Logger
}

// NewDeviceRegistry creates an empty registry over the durable store.
// durable may be nil in tests.
func NewDeviceRegistry(durable outbound.DurableStore, logger *slog.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]*device.DeviceSession),
		durable: durable,
		logger:  logger,
	}
}

// Load rehydrates the registry from the durable devices collection.
func (r *DeviceRegistry) Load(ctx context.Context) error {
	if r.durable == nil {
		return nil
	}
	persisted, err := r.durable.AllDevices(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range persisted {
		r.devices[d.DeviceID] = d.Clone()
	}
	r.logger.Info("device registry loaded", "devices", len(persisted))
	return nil
}

// RegisterOrTouch creates the device record on first sight; otherwise it
// increments the lifetime session counter and refreshes last-seen.
func (r *DeviceRegistry) RegisterOrTouch(ctx context.Context, deviceID string, platform session.Platform) *device.DeviceSession {
	now := time.Now().UTC()

	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		d = &device.DeviceSession{
			DeviceID:    deviceID,
			Platform:    platform,
			DisplayName: identity.DisplayName(platform),
		}
		r.devices[deviceID] = d
	}
	d.SessionCount++
	d.LastSeen = now
	cp := d.Clone()
	r.mu.Unlock()

	r.persist(ctx, cp)
	return cp
}

// Trust sets the explicit trusted-device opt-in. Returns false if the device
// is unknown. Trust is advisory metadata only; the engine attaches no policy
// behavior to it.
func (r *DeviceRegistry) Trust(ctx context.Context, deviceID string) bool {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	d.TrustedDevice = true
	cp := d.Clone()
	r.mu.Unlock()

	r.persist(ctx, cp)
	return true
}

// Get returns a single device record, or nil, false when unknown.
func (r *DeviceRegistry) Get(deviceID string) (*device.DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// List returns all device records sorted by LastSeen descending.
func (r *DeviceRegistry) List() []*device.DeviceSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*device.DeviceSession, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Size returns the number of tracked devices.
func (r *DeviceRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *DeviceRegistry) persist(ctx context.Context, d *device.DeviceSession) {
	if r.durable == nil {
		return
	}
	if err := r.durable.PutDevice(ctx, d); err != nil {
		r.logger.Warn("durable device write failed", "device_id", d.DeviceID, "error", err)
	}
}
