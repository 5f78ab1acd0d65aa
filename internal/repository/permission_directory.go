package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/util"
)

// DirectorySchema creates the directory tables. The DDL is valid for both
// Postgres and SQLite.
var DirectorySchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		auth_id TEXT NOT NULL UNIQUE,
		is_master BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS "groups" (
		id INTEGER PRIMARY KEY,
		is_master BOOLEAN NOT NULL DEFAULT FALSE,
		allowed_screens TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS user_groups (
		user_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS group_permissions (
		group_id INTEGER NOT NULL,
		permission_id INTEGER NOT NULL,
		PRIMARY KEY (group_id, permission_id)
	)`,
}

// SQLPermissionDirectory reads users, groups and permissions from SQL.
type SQLPermissionDirectory struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// OpenPermissionDirectory opens driver ("postgres" or "sqlite3") at dsn.
func OpenPermissionDirectory(driver, dsn string) (*SQLPermissionDirectory, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	if driver == "sqlite3" {
		// in-memory databases live as long as one connection
		db.SetMaxOpenConns(1)
	}
	return NewPermissionDirectory(db, driver), nil
}

// NewPermissionDirectory wraps an open database.
func NewPermissionDirectory(db *sql.DB, driver string) *SQLPermissionDirectory {
	var format squirrel.PlaceholderFormat = squirrel.Question
	if driver == "postgres" {
		format = squirrel.Dollar
	}
	return &SQLPermissionDirectory{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(format),
	}
}

// InitSchema creates missing tables.
func (d *SQLPermissionDirectory) InitSchema(ctx context.Context) error {
	for _, stmt := range DirectorySchema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init directory schema: %w", err)
		}
	}
	return nil
}

// DB exposes the handle for seeding and health checks.
func (d *SQLPermissionDirectory) DB() *sql.DB { return d.db }

func (d *SQLPermissionDirectory) Close() error { return d.db.Close() }

// UserByAuthID returns nil, nil when no user carries authID.
func (d *SQLPermissionDirectory) UserByAuthID(ctx context.Context, authID string) (*domrepo.User, error) {
	q, args, err := d.sq.
		Select("id", "auth_id", "is_master").
		From("users").
		Where(squirrel.Eq{"auth_id": authID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var u domrepo.User
	err = d.db.QueryRowContext(ctx, q, args...).Scan(&u.ID, &u.AuthID, &u.IsMaster)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (d *SQLPermissionDirectory) GroupsForUser(ctx context.Context, userID int64) ([]domrepo.Group, error) {
	q, args, err := d.sq.
		Select("g.id", "g.is_master", "g.allowed_screens").
		From(`"groups" g`).
		Join("user_groups ug ON ug.group_id = g.id").
		Where(squirrel.Eq{"ug.user_id": userID}).
		OrderBy("g.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []domrepo.Group
	for rows.Next() {
		var (
			g       domrepo.Group
			screens sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.IsMaster, &screens); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.AllowedScreens = util.SplitList(screens.String)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// HasPermission reports whether any of the user's groups grants permission.
func (d *SQLPermissionDirectory) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	q, args, err := d.sq.
		Select("COUNT(1)").
		From("permissions p").
		Join("group_permissions gp ON gp.permission_id = p.id").
		Join("user_groups ug ON ug.group_id = gp.group_id").
		Where(squirrel.Eq{"ug.user_id": userID, "p.name": permission}).
		ToSql()
	if err != nil {
		return false, err
	}

	var n int
	if err := d.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("query permission: %w", err)
	}
	return n > 0, nil
}

var _ domrepo.PermissionDirectory = (*SQLPermissionDirectory)(nil)
