/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

// CreateAccusation appends a to the investigation's log. A missing id, kind
// or timestamp is filled in.
func (s *Store) CreateAccusation(ctx context.Context, a investigation.Accusation) (investigation.Accusation, error) {
	if a.AccuserPlayerID == "" || a.AccusedAlias == "" || a.AccusedIdentity == "" {
		return investigation.Accusation{}, investigation.Validation("Select an alias and identity.")
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Kind == "" {
		a.Kind = investigation.KindAccusation
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO investigation_accusations
		   (id, investigation_code, accuser_player_id, accused_alias, accused_identity,
		    weapon, location, motive, is_correct, message, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.InvestigationCode, a.AccuserPlayerID, a.AccusedAlias, a.AccusedIdentity,
		nullString(a.Weapon), nullString(a.Location), nullString(a.Motive),
		a.IsCorrect, a.Message, string(a.Kind), toMillis(a.CreatedAt),
	)
	if err != nil {
		if mapped := mapConstraint(err); mapped != err {
			return investigation.Accusation{}, s.observe(feed.TableAccusations, mapped)
		}
		return investigation.Accusation{}, s.observe(feed.TableAccusations, fmt.Errorf("create accusation: %w", err))
	}

	s.observe(feed.TableAccusations, nil)
	s.publish(feed.AccusationEvent(a))

	return a, nil
}

// ListAccusations returns the investigation's log, newest first. A limit of
// zero or less returns every record.
func (s *Store) ListAccusations(ctx context.Context, code string, limit int) ([]investigation.Accusation, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, accuser_player_id, accused_alias, accused_identity,
		        weapon, location, motive, is_correct, message, kind, created_at
		 FROM investigation_accusations
		 WHERE investigation_code = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		code, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list accusations: %w", err)
	}
	defer rows.Close()

	accusations := make([]investigation.Accusation, 0)
	for rows.Next() {
		var (
			a                        investigation.Accusation
			weapon, location, motive sql.NullString
			kind                     string
			createdAt                int64
		)
		if err := rows.Scan(
			&a.ID, &a.AccuserPlayerID, &a.AccusedAlias, &a.AccusedIdentity,
			&weapon, &location, &motive, &a.IsCorrect, &a.Message, &kind, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("list accusations: %w", err)
		}
		a.InvestigationCode = code
		a.Weapon = weapon.String
		a.Location = location.String
		a.Motive = motive.String
		a.Kind = investigation.AccusationKind(kind)
		a.CreatedAt = fromMillis(createdAt)
		accusations = append(accusations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accusations: %w", err)
	}

	return accusations, nil
}
