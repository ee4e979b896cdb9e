// Package db persists gateway-local state: operator accounts, the
// host-key trust store RA2ne's TOFU model relies on, saved connection
// profiles, and a session audit log. It is intentionally small — the
// gateway has no multi-tenant application catalog to store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

func ctx() context.Context { return context.Background() }

// User is an operator account authenticated against the gateway itself
// (distinct from any credentials supplied to the remote VNC server).
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           string      `json:"id" bun:"id,pk"`
	Username     string      `json:"username" bun:"username,unique,notnull"`
	Email        string      `json:"email,omitempty" bun:"email"`
	DisplayName  string      `json:"display_name,omitempty" bun:"display_name"`
	PasswordHash string      `json:"-" bun:"password_hash"`
	Roles        StringSlice `json:"roles" bun:"roles"`
	CreatedAt    time.Time   `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time   `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// HostKey is the trust-on-first-use record for a remote server's public key
// (RA2ne's RSA modulus, or an ARD/VeNCrypt X.509 fingerprint), keyed by the
// host:port it was seen at. A mismatch on a later connection means the
// server's key changed — the event a gateway operator needs to see.
type HostKey struct {
	bun.BaseModel `bun:"table:host_keys"`

	HostPort    string    `json:"host_port" bun:"host_port,pk"`
	Kind        string    `json:"kind" bun:"kind,notnull"` // "rsa", "x509", etc.
	Fingerprint string    `json:"fingerprint" bun:"fingerprint,notnull"`
	FirstSeenAt time.Time `json:"first_seen_at" bun:"first_seen_at,nullzero,notnull,default:current_timestamp"`
	LastSeenAt  time.Time `json:"last_seen_at" bun:"last_seen_at,nullzero,notnull,default:current_timestamp"`
}

// ConnectionProfile is a saved target a user can reconnect to without
// re-entering host/port/credentials every time.
type ConnectionProfile struct {
	bun.BaseModel `bun:"table:connection_profiles"`

	ID           string    `json:"id" bun:"id,pk"`
	OwnerUserID  string    `json:"owner_user_id" bun:"owner_user_id,notnull"`
	Name         string    `json:"name" bun:"name,notnull"`
	Host         string    `json:"host" bun:"host,notnull"`
	Port         int       `json:"port" bun:"port,notnull"`
	Username     string    `json:"username,omitempty" bun:"username"`
	ViewOnly     bool      `json:"view_only" bun:"view_only"`
	Shared       bool      `json:"shared" bun:"shared"`
	CreatedAt    time.Time `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// SessionRecord is an audit-log row for one gateway-mediated RFB session.
type SessionRecord struct {
	bun.BaseModel `bun:"table:session_records"`

	ID         string     `json:"id" bun:"id,pk"`
	UserID     string     `json:"user_id" bun:"user_id,notnull"`
	Host       string     `json:"host" bun:"host,notnull"`
	Port       int        `json:"port" bun:"port,notnull"`
	ClientAddr string     `json:"client_addr,omitempty" bun:"client_addr"`
	ViewOnly   bool       `json:"view_only" bun:"view_only"`
	StartedAt  time.Time  `json:"started_at" bun:"started_at,nullzero,notnull,default:current_timestamp"`
	EndedAt    *time.Time `json:"ended_at,omitempty" bun:"ended_at"`
	EndReason  string     `json:"end_reason,omitempty" bun:"end_reason"`
}

// DB wraps the bun.DB connection.
type DB struct {
	bun *bun.DB
}

// Open opens (creating if needed) a SQLite database at dbPath and ensures
// the schema exists.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	conn.SetMaxIdleConns(1)

	bunDB := bun.NewDB(conn, sqlitedialect.New())
	d := &DB{bun: bunDB}
	if err := d.createSchema(); err != nil {
		bunDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) createSchema() error {
	models := []any{
		(*User)(nil),
		(*HostKey)(nil),
		(*ConnectionProfile)(nil),
		(*SessionRecord)(nil),
	}
	for _, m := range models {
		if _, err := d.bun.NewCreateTable().Model(m).IfNotExists().Exec(ctx()); err != nil {
			return fmt.Errorf("failed to create schema for %T: %w", m, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.bun.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping() error {
	return d.bun.PingContext(ctx())
}

// GetUserByID looks up a user by primary key. Returns (nil, nil) if absent.
func (d *DB) GetUserByID(id string) (*User, error) {
	u := new(User)
	err := d.bun.NewSelect().Model(u).Where("id = ?", id).Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByUsername looks up a user by username. Returns (nil, nil) if absent.
func (d *DB) GetUserByUsername(username string) (*User, error) {
	u := new(User)
	err := d.bun.NewSelect().Model(u).Where("username = ?", username).Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new user.
func (d *DB) CreateUser(u *User) error {
	_, err := d.bun.NewInsert().Model(u).Exec(ctx())
	return err
}

// GetHostKey returns the trust record for hostPort, or (nil, nil) if the
// gateway has never connected there before.
func (d *DB) GetHostKey(hostPort string) (*HostKey, error) {
	hk := new(HostKey)
	err := d.bun.NewSelect().Model(hk).Where("host_port = ?", hostPort).Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hk, nil
}

// UpsertHostKey records the key seen for hostPort, updating last_seen_at if
// it already matches, or overwriting the stored fingerprint if the caller
// has already decided (via OnServerVerification) to trust the new one.
func (d *DB) UpsertHostKey(hk *HostKey) error {
	hk.LastSeenAt = time.Now()
	_, err := d.bun.NewInsert().
		Model(hk).
		On("CONFLICT (host_port) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("fingerprint = EXCLUDED.fingerprint").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Exec(ctx())
	return err
}

// ListConnectionProfiles returns every profile owned by userID.
func (d *DB) ListConnectionProfiles(userID string) ([]ConnectionProfile, error) {
	var profiles []ConnectionProfile
	err := d.bun.NewSelect().Model(&profiles).Where("owner_user_id = ?", userID).Order("name ASC").Scan(ctx())
	return profiles, err
}

// CreateConnectionProfile inserts a new saved connection target.
func (d *DB) CreateConnectionProfile(p *ConnectionProfile) error {
	_, err := d.bun.NewInsert().Model(p).Exec(ctx())
	return err
}

// RecordSessionStart inserts the audit row for a newly opened session.
func (d *DB) RecordSessionStart(rec *SessionRecord) error {
	_, err := d.bun.NewInsert().Model(rec).Exec(ctx())
	return err
}

// RecordSessionEnd stamps endedAt/reason on an existing session record.
func (d *DB) RecordSessionEnd(id string, endedAt time.Time, reason string) error {
	_, err := d.bun.NewUpdate().
		Model((*SessionRecord)(nil)).
		Set("ended_at = ?", endedAt).
		Set("end_reason = ?", reason).
		Where("id = ?", id).
		Exec(ctx())
	return err
}
