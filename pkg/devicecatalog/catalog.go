// Package devicecatalog is the device-catalog half of the persistence
// layer: Device, Service, ContentSnapshot, and ChangeRecord repositories
// over the shared pgx pool.
package devicecatalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/netassist/core/pkg/database"
	"github.com/netassist/core/pkg/models"
)

// Catalog is the DeviceCatalog repository set.
type Catalog struct {
	db *database.Client
}

// New constructs a Catalog over an already-migrated database client.
func New(db *database.Client) *Catalog {
	return &Catalog{db: db}
}

// UpsertDevice inserts or updates a device keyed by IP, updating LastSeen
// and UpdatedAt on conflict. Plugins reach it through the Accessor adapter
// (adapter.go), which implements models.PersistenceAccessor.
func (c *Catalog) UpsertDevice(ctx context.Context, d models.Device) (models.Device, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now()
	if d.FirstSeen.IsZero() {
		d.FirstSeen = now
	}
	if d.LastSeen.IsZero() {
		d.LastSeen = now
	}
	d.UpdatedAt = now

	var out models.Device
	err := database.RetryOnConflict(ctx, func(ctx context.Context) error {
		row := c.db.Pool.QueryRow(ctx, `
			INSERT INTO devices (id, ip, hostname, mac, vendor, first_seen, last_seen, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (ip) DO UPDATE SET
				hostname = EXCLUDED.hostname,
				mac = COALESCE(NULLIF(EXCLUDED.mac, ''), devices.mac),
				vendor = COALESCE(NULLIF(EXCLUDED.vendor, ''), devices.vendor),
				last_seen = EXCLUDED.last_seen,
				updated_at = EXCLUDED.updated_at
			RETURNING id, ip, hostname, mac, vendor, first_seen, last_seen, updated_at
		`, d.ID, d.IP, d.Hostname, d.MAC, d.Vendor, d.FirstSeen, d.LastSeen, d.UpdatedAt)
		return row.Scan(&out.ID, &out.IP, &out.Hostname, &out.MAC, &out.Vendor, &out.FirstSeen, &out.LastSeen, &out.UpdatedAt)
	})
	if err != nil {
		return models.Device{}, wrapErr("upsert device", err)
	}
	return out, nil
}

// GetDevice fetches a device by id.
func (c *Catalog) GetDevice(ctx context.Context, id string) (models.Device, error) {
	row := c.db.Pool.QueryRow(ctx, `
		SELECT id, ip, hostname, mac, vendor, first_seen, last_seen, updated_at
		FROM devices WHERE id = $1
	`, id)
	var d models.Device
	if err := row.Scan(&d.ID, &d.IP, &d.Hostname, &d.MAC, &d.Vendor, &d.FirstSeen, &d.LastSeen, &d.UpdatedAt); err != nil {
		return models.Device{}, wrapErr("get device", err)
	}
	return d, nil
}

// DeviceByIP fetches a device by its (unique) IP address. Used by the
// auto-watch path to resolve the target an utterance's extracted IP refers
// to.
func (c *Catalog) DeviceByIP(ctx context.Context, ip string) (models.Device, error) {
	row := c.db.Pool.QueryRow(ctx, `
		SELECT id, ip, hostname, mac, vendor, first_seen, last_seen, updated_at
		FROM devices WHERE ip = $1
	`, ip)
	var d models.Device
	if err := row.Scan(&d.ID, &d.IP, &d.Hostname, &d.MAC, &d.Vendor, &d.FirstSeen, &d.LastSeen, &d.UpdatedAt); err != nil {
		return models.Device{}, wrapErr("device by ip", err)
	}
	return d, nil
}

// UpsertService inserts or updates a service on an existing device.
func (c *Catalog) UpsertService(ctx context.Context, s models.Service) (models.Service, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.LastChecked.IsZero() {
		s.LastChecked = time.Now()
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return models.Service{}, err
	}

	var out models.Service
	var rawMeta []byte
	err = database.RetryOnConflict(ctx, func(ctx context.Context) error {
		row := c.db.Pool.QueryRow(ctx, `
			INSERT INTO services (id, device_id, type, port, path, status, last_checked, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (device_id, type, port, path) DO UPDATE SET
				status = EXCLUDED.status,
				last_checked = EXCLUDED.last_checked,
				metadata = EXCLUDED.metadata
			RETURNING id, device_id, type, port, path, status, last_checked, metadata
		`, s.ID, s.DeviceID, s.Type, s.Port, s.Path, s.Status, s.LastChecked, metadata)
		return row.Scan(&out.ID, &out.DeviceID, &out.Type, &out.Port, &out.Path, &out.Status, &out.LastChecked, &rawMeta)
	})
	if err != nil {
		return models.Service{}, wrapErr("upsert service", err)
	}
	if err := json.Unmarshal(rawMeta, &out.Metadata); err != nil {
		return models.Service{}, err
	}
	return out, nil
}

// GetService fetches a service by id.
func (c *Catalog) GetService(ctx context.Context, id string) (models.Service, error) {
	row := c.db.Pool.QueryRow(ctx, `
		SELECT id, device_id, type, port, path, status, last_checked, metadata
		FROM services WHERE id = $1
	`, id)
	var s models.Service
	var rawMeta []byte
	if err := row.Scan(&s.ID, &s.DeviceID, &s.Type, &s.Port, &s.Path, &s.Status, &s.LastChecked, &rawMeta); err != nil {
		return models.Service{}, wrapErr("get service", err)
	}
	if err := json.Unmarshal(rawMeta, &s.Metadata); err != nil {
		return models.Service{}, err
	}
	return s, nil
}

// ServicesByDevice lists every service registered on a device.
func (c *Catalog) ServicesByDevice(ctx context.Context, deviceID string) ([]models.Service, error) {
	rows, err := c.db.Pool.Query(ctx, `
		SELECT id, device_id, type, port, path, status, last_checked, metadata
		FROM services WHERE device_id = $1 ORDER BY type, port
	`, deviceID)
	if err != nil {
		return nil, wrapErr("list services", err)
	}
	defer rows.Close()

	var out []models.Service
	for rows.Next() {
		var s models.Service
		var rawMeta []byte
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Type, &s.Port, &s.Path, &s.Status, &s.LastChecked, &rawMeta); err != nil {
			return nil, wrapErr("scan service", err)
		}
		if err := json.Unmarshal(rawMeta, &s.Metadata); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// execer abstracts the Exec surface shared by the pool and a transaction,
// so the same insert statements serve both standalone and transactional
// writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func fillSnapshotDefaults(snap models.ContentSnapshot) models.ContentSnapshot {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}
	snap.Size = len(snap.Content)
	return snap
}

func insertSnapshot(ctx context.Context, e execer, snap models.ContentSnapshot) error {
	var deviceID, serviceID *string
	if snap.DeviceID != "" {
		deviceID = &snap.DeviceID
	}
	if snap.ServiceID != "" {
		serviceID = &snap.ServiceID
	}
	_, err := e.Exec(ctx, `
		INSERT INTO content_snapshots (id, device_id, service_id, content, content_type, hash, size, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snap.ID, deviceID, serviceID, snap.Content, snap.ContentType, snap.Hash, snap.Size, snap.CapturedAt)
	return err
}

func fillChangeRecordDefaults(rec models.ChangeRecord) models.ChangeRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now()
	}
	return rec
}

func insertChangeRecord(ctx context.Context, e execer, rec models.ChangeRecord) error {
	var prevID *string
	if rec.PreviousSnapshotID != "" {
		prevID = &rec.PreviousSnapshotID
	}
	_, err := e.Exec(ctx, `
		INSERT INTO change_records (id, target_id, target_type, previous_snapshot_id, current_snapshot_id, change_type, change_score, detected_at, human_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.TargetID, rec.TargetType, prevID, rec.CurrentSnapshotID, rec.ChangeType, rec.ChangeScore, rec.DetectedAt, rec.HumanSummary)
	return err
}

// SaveSnapshot stores a new ContentSnapshot. A snapshot targets at least one
// of DeviceID/ServiceID; the CHECK constraint in the migration enforces
// that at the database level as a backstop against a coding error here.
func (c *Catalog) SaveSnapshot(ctx context.Context, snap models.ContentSnapshot) (models.ContentSnapshot, error) {
	snap = fillSnapshotDefaults(snap)
	if err := insertSnapshot(ctx, c.db.Pool, snap); err != nil {
		return models.ContentSnapshot{}, wrapErr("save snapshot", err)
	}
	return snap, nil
}

// SaveSnapshotAndChangeRecord persists a snapshot and the ChangeRecord
// linking it to its predecessor in a single transaction: either both land
// or neither does, so two consecutive differing snapshots can never exist
// without the record connecting them. rec.CurrentSnapshotID is filled from
// the snapshot being saved.
func (c *Catalog) SaveSnapshotAndChangeRecord(ctx context.Context, snap models.ContentSnapshot, rec models.ChangeRecord) (models.ContentSnapshot, models.ChangeRecord, error) {
	snap = fillSnapshotDefaults(snap)
	rec = fillChangeRecordDefaults(rec)
	rec.CurrentSnapshotID = snap.ID

	err := c.db.WithTx(ctx, func(tx database.PgxTx) error {
		if err := insertSnapshot(ctx, tx, snap); err != nil {
			return err
		}
		return insertChangeRecord(ctx, tx, rec)
	})
	if err != nil {
		return models.ContentSnapshot{}, models.ChangeRecord{}, wrapErr("save snapshot with change record", err)
	}
	return snap, rec, nil
}

// LatestSnapshot returns the most recently captured snapshot for a target,
// or models.ErrNotFound if none exists yet.
func (c *Catalog) LatestSnapshot(ctx context.Context, targetID string, targetType models.TargetType) (models.ContentSnapshot, error) {
	column := "device_id"
	if targetType == models.TargetService {
		column = "service_id"
	}
	row := c.db.Pool.QueryRow(ctx, `
		SELECT id, COALESCE(device_id::text, ''), COALESCE(service_id::text, ''), content, content_type, hash, size, captured_at
		FROM content_snapshots WHERE `+column+` = $1
		ORDER BY captured_at DESC LIMIT 1
	`, targetID)

	var snap models.ContentSnapshot
	if err := row.Scan(&snap.ID, &snap.DeviceID, &snap.ServiceID, &snap.Content, &snap.ContentType, &snap.Hash, &snap.Size, &snap.CapturedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ContentSnapshot{}, models.ErrNotFound
		}
		return models.ContentSnapshot{}, wrapErr("latest snapshot", err)
	}
	return snap, nil
}

// ChangeRecordsForTarget lists every ChangeRecord for a target, most recent
// first, used by watch.logs lookups.
func (c *Catalog) ChangeRecordsForTarget(ctx context.Context, targetID string, targetType models.TargetType) ([]models.ChangeRecord, error) {
	rows, err := c.db.Pool.Query(ctx, `
		SELECT id, target_id, target_type, COALESCE(previous_snapshot_id::text, ''), current_snapshot_id, change_type, change_score, detected_at, human_summary
		FROM change_records WHERE target_id = $1 AND target_type = $2 ORDER BY detected_at DESC
	`, targetID, targetType)
	if err != nil {
		return nil, wrapErr("list change records", err)
	}
	defer rows.Close()

	var out []models.ChangeRecord
	for rows.Next() {
		var r models.ChangeRecord
		if err := rows.Scan(&r.ID, &r.TargetID, &r.TargetType, &r.PreviousSnapshotID, &r.CurrentSnapshotID, &r.ChangeType, &r.ChangeScore, &r.DetectedAt, &r.HumanSummary); err != nil {
			return nil, wrapErr("scan change record", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes snapshots captured before the retention horizon,
// keeping at least the most recent one per target so LatestSnapshot never
// regresses to models.ErrNotFound for an active target.
func (c *Catalog) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := c.db.Pool.Exec(ctx, `
		DELETE FROM content_snapshots cs
		WHERE cs.captured_at < $1
		AND cs.id NOT IN (
			SELECT DISTINCT ON (COALESCE(device_id, service_id)) id
			FROM content_snapshots
			ORDER BY COALESCE(device_id, service_id), captured_at DESC
		)
	`, olderThan)
	if err != nil {
		return 0, wrapErr("prune snapshots", err)
	}
	return tag.RowsAffected(), nil
}

func wrapErr(detail string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return models.NewExecutionError(models.ClassIntegrityViolation, detail, err)
}
