/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

const playerColumns = `id, investigation_code, player_id, alias_title, alias_color, alias_locked,
	identity, is_murderer, evidence, notebook_checks, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (investigation.Player, error) {
	var (
		p                    investigation.Player
		title, color, ident  sql.NullString
		evidence, notebook   sql.NullString
		locked, murderer     bool
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&p.ID, &p.InvestigationCode, &p.PlayerID, &title, &color, &locked,
		&ident, &murderer, &evidence, &notebook, &p.Version, &createdAt, &updatedAt,
	); err != nil {
		return investigation.Player{}, err
	}

	var err error
	if p.Evidence, err = decodeItems(evidence); err != nil {
		return investigation.Player{}, fmt.Errorf("decode evidence: %w", err)
	}
	if p.NotebookChecks, err = decodeItems(notebook); err != nil {
		return investigation.Player{}, fmt.Errorf("decode notebook checks: %w", err)
	}

	p.AliasTitle = title.String
	p.AliasColor = color.String
	p.AliasLocked = locked
	p.Identity = ident.String
	p.IsMurderer = murderer
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)

	return p, nil
}

func getPlayer(ctx context.Context, q queryer, code, playerID string) (investigation.Player, error) {
	p, err := scanPlayer(q.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM investigation_players WHERE investigation_code = ? AND player_id = ?",
		code, playerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return investigation.Player{}, investigation.NotFound("Player not found.")
	}
	if err != nil {
		return investigation.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func listPlayers(ctx context.Context, q queryer, code string) ([]investigation.Player, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM investigation_players WHERE investigation_code = ? ORDER BY created_at, rowid",
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	players := make([]investigation.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("list players: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

func (s *Store) GetPlayer(ctx context.Context, code, playerID string) (investigation.Player, error) {
	return getPlayer(ctx, s.sqlDB, code, playerID)
}

func (s *Store) ListPlayers(ctx context.Context, code string) ([]investigation.Player, error) {
	return listPlayers(ctx, s.sqlDB, code)
}

// UpsertPlayer ensures playerID has a row in the investigation. An existing
// row is touched, which bumps its version.
func (s *Store) UpsertPlayer(ctx context.Context, code, playerID string) (investigation.Player, error) {
	if playerID == "" {
		return investigation.Player{}, investigation.Validation("Missing player id.")
	}

	var (
		p   investigation.Player
		typ feed.EventType
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getInvestigation(ctx, tx, code); err != nil {
			return err
		}

		now := time.Now().UTC().Truncate(time.Millisecond)

		existing, err := getPlayer(ctx, tx, code, playerID)
		switch {
		case errors.Is(err, investigation.ErrNotFound):
			p = investigation.Player{
				ID:                newID(),
				InvestigationCode: code,
				PlayerID:          playerID,
				Version:           1,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			typ = feed.Insert
			_, err = tx.ExecContext(ctx,
				`INSERT INTO investigation_players (id, investigation_code, player_id, version, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, p.InvestigationCode, p.PlayerID, p.Version, toMillis(now), toMillis(now),
			)
			return mapConstraint(err)
		case err != nil:
			return err
		}

		p = existing
		p.Version++
		p.UpdatedAt = now
		typ = feed.Update
		_, err = tx.ExecContext(ctx,
			"UPDATE investigation_players SET version = ?, updated_at = ? WHERE id = ?",
			p.Version, toMillis(now), p.ID,
		)
		return err
	})
	if err != nil {
		return investigation.Player{}, s.observe(feed.TablePlayers, err)
	}

	s.observe(feed.TablePlayers, nil)
	s.publish(feed.PlayerEvent(typ, p))

	return p, nil
}

// updatePlayer loads the caller's row, lets mutate change it, and writes every
// mutable column back with a bumped version.
func (s *Store) updatePlayer(ctx context.Context, code, playerID string, mutate func(tx *sql.Tx, p *investigation.Player) error) (investigation.Player, error) {
	var p investigation.Player
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = getPlayer(ctx, tx, code, playerID)
		if err != nil {
			return err
		}
		if err := mutate(tx, &p); err != nil {
			return err
		}

		evidence, err := encodeItems(p.Evidence)
		if err != nil {
			return fmt.Errorf("encode evidence: %w", err)
		}
		notebook, err := encodeItems(p.NotebookChecks)
		if err != nil {
			return fmt.Errorf("encode notebook checks: %w", err)
		}

		p.Version++
		p.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

		_, err = tx.ExecContext(ctx,
			`UPDATE investigation_players SET
			   alias_title = ?, alias_color = ?, alias_locked = ?,
			   identity = ?, is_murderer = ?,
			   evidence = ?, notebook_checks = ?,
			   version = ?, updated_at = ?
			 WHERE id = ?`,
			nullString(p.AliasTitle), nullString(p.AliasColor), p.AliasLocked,
			nullString(p.Identity), p.IsMurderer,
			evidence, notebook,
			p.Version, toMillis(p.UpdatedAt),
			p.ID,
		)
		return mapConstraint(err)
	})
	if err != nil {
		return investigation.Player{}, s.observe(feed.TablePlayers, err)
	}

	s.observe(feed.TablePlayers, nil)
	s.publish(feed.PlayerEvent(feed.Update, p))

	return p, nil
}

// LockAlias claims title and color for the player. The color is unique within
// the investigation; re-locking the same alias is a no-op write.
func (s *Store) LockAlias(ctx context.Context, code, playerID, title, color string) (investigation.Player, error) {
	if !investigation.IsAliasTitle(title) || !investigation.IsAliasColor(color) {
		return investigation.Player{}, investigation.Validation("Select an alias title and color.")
	}

	return s.updatePlayer(ctx, code, playerID, func(_ *sql.Tx, p *investigation.Player) error {
		if p.AliasLocked && (p.AliasTitle != title || p.AliasColor != color) {
			return investigation.Conflict("alias", "Your alias is already locked.")
		}
		p.AliasTitle = title
		p.AliasColor = color
		p.AliasLocked = true
		return nil
	})
}

// UpdateIdentity claims a unique identity for the player and derives the
// murderer flag from it.
func (s *Store) UpdateIdentity(ctx context.Context, code, playerID, identity string) (investigation.Player, error) {
	if !investigation.IsIdentity(identity) {
		return investigation.Player{}, investigation.Validation("Select an identity.")
	}

	return s.updatePlayer(ctx, code, playerID, func(_ *sql.Tx, p *investigation.Player) error {
		if p.Identity != "" && p.Identity != identity {
			return investigation.Conflict("identity", "Your identity is already locked.")
		}
		p.Identity = identity
		p.IsMurderer = identity == investigation.Murderer
		return nil
	})
}

// SubmitEvidence stores the player's initial evidence. The submission is
// rejected when evidence is already locked or when a weapon, location or
// motive is already held by another player of the investigation.
func (s *Store) SubmitEvidence(ctx context.Context, code, playerID string, evidence []investigation.EvidenceItem) (investigation.Player, error) {
	if len(evidence) == 0 {
		return investigation.Player{}, investigation.Validation("Select your evidence.")
	}
	for _, item := range evidence {
		if !item.Type.Valid() || item.Value == "" {
			return investigation.Player{}, investigation.Validation("Invalid evidence item.")
		}
		if err := investigation.CheckCard(item); err != nil {
			return investigation.Player{}, err
		}
	}

	return s.updatePlayer(ctx, code, playerID, func(tx *sql.Tx, p *investigation.Player) error {
		if p.EvidenceLocked() {
			return investigation.Conflict("evidence", "Initial evidence is already locked.")
		}
		for _, item := range evidence {
			if item.Type == investigation.EvidenceAlias && (!p.AliasLocked || item.Value != p.Alias()) {
				return investigation.Validation("Evidence may only name your own alias.")
			}
		}

		players, err := listPlayers(ctx, tx, code)
		if err != nil {
			return err
		}
		used := investigation.UsedEvidence(players, playerID)
		for _, item := range evidence {
			if investigation.Exclusive(item.Type) && used[item.Key()] {
				return investigation.Conflict("evidence", "Double check your cards, it looks like there's been an error.")
			}
		}

		p.Evidence = append([]investigation.EvidenceItem(nil), evidence...)
		return nil
	})
}

// UpdateNotebookChecks replaces the player's notebook marks.
func (s *Store) UpdateNotebookChecks(ctx context.Context, code, playerID string, checks []investigation.EvidenceItem) (investigation.Player, error) {
	for _, item := range checks {
		if !item.Type.Valid() {
			return investigation.Player{}, investigation.Validation("Invalid notebook item.")
		}
	}

	return s.updatePlayer(ctx, code, playerID, func(_ *sql.Tx, p *investigation.Player) error {
		p.NotebookChecks = append(make([]investigation.EvidenceItem, 0, len(checks)), checks...)
		return nil
	})
}
