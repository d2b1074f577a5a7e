package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

// Timestamps are stored as text so both drivers round-trip them identically.
const timeLayout = time.RFC3339Nano

// ArchiveRepository is the append-only audit store for links and their accesses.
type ArchiveRepository struct {
	db *sql.DB
}

var _ ports.AccessArchive = (*ArchiveRepository)(nil)

func NewArchiveRepository(dbURL string) (*ArchiveRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	return &ArchiveRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS shared_links (
		id TEXT PRIMARY KEY,
		short_id TEXT NOT NULL,
		target_url TEXT NOT NULL,
		identity_id TEXT NOT NULL,
		shared_address TEXT,
		max_uses INTEGER,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		removed_at TEXT,
		removed_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_shared_links_short_id ON shared_links(short_id);

	CREATE TABLE IF NOT EXISTS link_accesses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id TEXT NOT NULL,
		short_id TEXT NOT NULL,
		target_url TEXT NOT NULL,
		accessed_at TEXT NOT NULL,
		caller_address TEXT,
		user_agent TEXT,
		referrer TEXT,
		device TEXT,
		country TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_link_accesses_link_id ON link_accesses(link_id);
	`
	_, err := db.Exec(query)
	return err
}

func (r *ArchiveRepository) SaveLink(ctx context.Context, link ports.ArchivedLink) error {
	query := `INSERT INTO shared_links (id, short_id, target_url, identity_id, shared_address, max_uses, created_at, expires_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO NOTHING`

	var maxUses sql.NullInt64
	if link.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*link.MaxUses), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.ShortID, link.TargetURL, link.IdentityID, link.SharedAddress, maxUses,
		link.CreatedAt.UTC().Format(timeLayout), link.ExpiresAt.UTC().Format(timeLayout),
	)
	return err
}

// MarkRemoved stamps the first removal only.
func (r *ArchiveRepository) MarkRemoved(ctx context.Context, linkID string, reason string, at time.Time) error {
	query := `UPDATE shared_links SET removed_at = ?, removed_reason = ? WHERE id = ? AND removed_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, at.UTC().Format(timeLayout), reason, linkID)
	return err
}

func (r *ArchiveRepository) SaveAccess(ctx context.Context, access ports.ArchivedAccess) error {
	query := `INSERT INTO link_accesses (link_id, short_id, target_url, accessed_at, caller_address, user_agent, referrer, device, country)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	e := access.Entry
	_, err := r.db.ExecContext(ctx, query,
		access.LinkID, access.ShortID, access.TargetURL, e.Timestamp.UTC().Format(timeLayout),
		e.CallerAddress, e.UserAgent, e.Referrer, e.Device, e.Country,
	)
	return err
}

// Dump returns every archived link and access in insertion order.
func (r *ArchiveRepository) Dump(ctx context.Context) ([]ports.ArchivedLink, []ports.ArchivedAccess, error) {
	links, err := r.dumpLinks(ctx)
	if err != nil {
		return nil, nil, err
	}
	accesses, err := r.dumpAccesses(ctx)
	if err != nil {
		return nil, nil, err
	}
	return links, accesses, nil
}

func (r *ArchiveRepository) dumpLinks(ctx context.Context) ([]ports.ArchivedLink, error) {
	query := `SELECT id, short_id, target_url, identity_id, shared_address, max_uses, created_at, expires_at, removed_at, removed_reason
			  FROM shared_links ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []ports.ArchivedLink
	for rows.Next() {
		var (
			l                    ports.ArchivedLink
			sharedAddress        sql.NullString
			maxUses              sql.NullInt64
			createdAt, expiresAt string
			removedAt, reason    sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ShortID, &l.TargetURL, &l.IdentityID, &sharedAddress, &maxUses,
			&createdAt, &expiresAt, &removedAt, &reason); err != nil {
			return nil, err
		}
		l.SharedAddress = sharedAddress.String
		if maxUses.Valid {
			n := int(maxUses.Int64)
			l.MaxUses = &n
		}
		if l.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("link %s: created_at: %w", l.ID, err)
		}
		if l.ExpiresAt, err = time.Parse(timeLayout, expiresAt); err != nil {
			return nil, fmt.Errorf("link %s: expires_at: %w", l.ID, err)
		}
		if removedAt.Valid {
			t, err := time.Parse(timeLayout, removedAt.String)
			if err != nil {
				return nil, fmt.Errorf("link %s: removed_at: %w", l.ID, err)
			}
			l.RemovedAt = &t
			l.RemovedReason = reason.String
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *ArchiveRepository) dumpAccesses(ctx context.Context) ([]ports.ArchivedAccess, error) {
	query := `SELECT link_id, short_id, target_url, accessed_at, caller_address, user_agent, referrer, device, country
			  FROM link_accesses ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accesses []ports.ArchivedAccess
	for rows.Next() {
		var (
			a                                     ports.ArchivedAccess
			accessedAt                            string
			caller, ua, referrer, device, country sql.NullString
		)
		if err := rows.Scan(&a.LinkID, &a.ShortID, &a.TargetURL, &accessedAt,
			&caller, &ua, &referrer, &device, &country); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timeLayout, accessedAt)
		if err != nil {
			return nil, fmt.Errorf("access of %s: accessed_at: %w", a.LinkID, err)
		}
		a.Entry = domain.AccessEntry{
			Timestamp:     ts,
			CallerAddress: caller.String,
			UserAgent:     ua.String,
			Referrer:      referrer.String,
			Device:        device.String,
			Country:       country.String,
		}
		accesses = append(accesses, a)
	}
	return accesses, rows.Err()
}

func (r *ArchiveRepository) Close() error {
	return r.db.Close()
}
