/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists investigations in SQLite and announces every
// committed row change to a Publisher.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/store/migrations"
	"github.com/Seednode/yardbox/internal/telemetry"
)

// Publisher receives row changes after they are committed.
type Publisher interface {
	Publish(feed.Event)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists investigation state in SQLite.
type Store struct {
	sqlDB     *sql.DB
	publisher Publisher
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

type Option func(*Store)

func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies the embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		sqlDB:  sqlDB,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) publish(ev feed.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ev)
}

// observe records the outcome of a write to table and passes err through.
func (s *Store) observe(table feed.Table, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, investigation.ErrConflict):
		outcome = "conflict"
	case errors.Is(err, investigation.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		s.logger.Error("store write failed", "table", table, "error", err)
	}
	s.metrics.Write(string(table), outcome)
	return err
}

// CreateInvestigation registers a new investigation under code, which must
// already be normalized.
func (s *Store) CreateInvestigation(ctx context.Context, code string) (investigation.Investigation, error) {
	if err := ctx.Err(); err != nil {
		return investigation.Investigation{}, err
	}
	if code != investigation.NormalizeCode(code) || !investigation.ValidJoinCode(code) {
		return investigation.Investigation{}, investigation.Validation("Enter a valid investigation code.")
	}

	inv := investigation.Investigation{Code: code, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}

	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO investigations (code, created_at) VALUES (?, ?)",
		inv.Code, toMillis(inv.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return investigation.Investigation{}, s.observe("investigations",
				investigation.Conflict("code", "Investigation code already in use."))
		}
		return investigation.Investigation{}, s.observe("investigations", fmt.Errorf("create investigation: %w", err))
	}

	s.logger.Info("investigation created", "code", inv.Code)
	s.observe("investigations", nil)

	return inv, nil
}

func (s *Store) GetInvestigation(ctx context.Context, code string) (investigation.Investigation, error) {
	return getInvestigation(ctx, s.sqlDB, code)
}

func getInvestigation(ctx context.Context, q queryer, code string) (investigation.Investigation, error) {
	var createdAt int64
	err := q.QueryRowContext(ctx,
		"SELECT created_at FROM investigations WHERE code = ?", code,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return investigation.Investigation{}, investigation.NotFound("Investigation not found.")
	}
	if err != nil {
		return investigation.Investigation{}, fmt.Errorf("get investigation: %w", err)
	}
	return investigation.Investigation{Code: code, CreatedAt: fromMillis(createdAt)}, nil
}

// withTx runs fn in a write transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapConstraint turns constraint failures into categorized errors.
func mapConstraint(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		field := conflictField(err)
		return investigation.Conflict(field, fmt.Sprintf("%s is already taken.", field))
	case isForeignKeyViolation(err):
		return investigation.NotFound("Investigation not found.")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

// conflictField extracts the last column named by a unique constraint
// failure, e.g. "alias_color" from
// "UNIQUE constraint failed: investigation_players.investigation_code, investigation_players.alias_color".
func conflictField(err error) string {
	msg := err.Error()
	idx := strings.LastIndex(msg, "constraint failed:")
	if idx == -1 {
		return ""
	}
	cols := strings.Split(msg[idx+len("constraint failed:"):], ",")
	last := strings.TrimSpace(cols[len(cols)-1])
	if dot := strings.LastIndex(last, "."); dot != -1 {
		last = last[dot+1:]
	}
	if paren := strings.IndexAny(last, " ()"); paren != -1 {
		last = last[:paren]
	}
	return last
}

func encodeItems(items []investigation.EvidenceItem) (any, error) {
	if items == nil {
		return nil, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeItems(value sql.NullString) ([]investigation.EvidenceItem, error) {
	if !value.Valid {
		return nil, nil
	}
	items := make([]investigation.EvidenceItem, 0)
	if err := json.Unmarshal([]byte(value.String), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func newID() string {
	return uuid.NewString()
}
