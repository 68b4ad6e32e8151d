// Package connectors holds the data-source clients backing the tool
// catalog: the operational Postgres database, the Quickwit log search
// backend, and the admin console link generator.
package connectors

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/lockwise/support-agent/pkg/config"
)

// ErrDeviceNotFound is returned when a device lookup matches no row. The
// orchestrator converts it to the error payload the model sees.
var ErrDeviceNotFound = errors.New("Device not found")

// Store implements domain.DeviceStore against Postgres. It is a long-lived,
// pooled collaborator shared across investigations.
type Store struct {
	db *sqlx.DB
}

// OpenStore connects to the operational database and verifies the
// connection.
func OpenStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
		db.SetConnMaxLifetime(lifetime)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, used by tests.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DeviceInfo returns the full device record.
func (s *Store) DeviceInfo(ctx context.Context, deviceID string) (map[string]any, error) {
	const query = `
		SELECT device_id, workspace_id, device_type, display_name, properties, created_at
		FROM devices
		WHERE device_id = $1`
	return s.selectRecord(ctx, query, deviceID)
}

// ThirdPartyDeviceInfo returns the device record mirrored from the
// third-party provider.
func (s *Store) ThirdPartyDeviceInfo(ctx context.Context, deviceID string) (map[string]any, error) {
	const query = `
		SELECT device_id, provider, provider_device_id, device_type, properties, synced_at
		FROM third_party_devices
		WHERE device_id = $1`
	return s.selectRecord(ctx, query, deviceID)
}

// AccessCodes lists codes on a device, managed and unmanaged.
func (s *Store) AccessCodes(ctx context.Context, deviceID string, limit int) ([]map[string]any, error) {
	const query = `
		SELECT access_code_id, device_id, name, code, is_managed, status, created_at
		FROM access_codes
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	return s.selectRecords(ctx, query, deviceID, limit)
}

// ActionAttempts lists recent lock/unlock attempts with outcomes.
func (s *Store) ActionAttempts(ctx context.Context, deviceID string, limit int) ([]map[string]any, error) {
	const query = `
		SELECT action_attempt_id, device_id, action_type, status, error_message, created_at
		FROM action_attempts
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	return s.selectRecords(ctx, query, deviceID, limit)
}

// DeviceEvents lists device events since the given time.
func (s *Store) DeviceEvents(ctx context.Context, deviceID string, since time.Time, limit int) ([]map[string]any, error) {
	const query = `
		SELECT event_id, device_id, event_type, payload, occurred_at
		FROM device_events
		WHERE device_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
		LIMIT $3`
	return s.selectRecords(ctx, query, deviceID, since, limit)
}

// AuditLogs lists workspace audit entries since the given time.
func (s *Store) AuditLogs(ctx context.Context, workspaceID string, since time.Time, limit int) ([]map[string]any, error) {
	const query = `
		SELECT audit_log_id, workspace_id, actor, action, target, occurred_at
		FROM audit_logs
		WHERE workspace_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
		LIMIT $3`
	return s.selectRecords(ctx, query, workspaceID, since, limit)
}

func (s *Store) selectRecord(ctx context.Context, query string, args ...any) (map[string]any, error) {
	row := s.db.QueryRowxContext(ctx, query, args...)

	record := make(map[string]any)
	if err := row.MapScan(record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("device lookup failed: %w", err)
	}
	normalizeRecord(record)
	return record, nil
}

func (s *Store) selectRecords(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		record := make(map[string]any)
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		normalizeRecord(record)
		records = append(records, record)
	}
	return records, rows.Err()
}

// normalizeRecord decodes byte-valued columns: JSONB payloads become nested
// maps, everything else becomes a string.
func normalizeRecord(record map[string]any) {
	for key, value := range record {
		raw, ok := value.([]byte)
		if !ok {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			record[key] = decoded
		} else {
			record[key] = string(raw)
		}
	}
}
