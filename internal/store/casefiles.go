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

func getCaseFile(ctx context.Context, q queryer, code string) (investigation.CaseFile, error) {
	cf := investigation.CaseFile{InvestigationCode: code}
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT murderer_alias, weapon, location, motive, version, created_at
		 FROM investigation_case_files WHERE investigation_code = ?`,
		code,
	).Scan(&cf.MurdererAlias, &cf.Weapon, &cf.Location, &cf.Motive, &cf.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return investigation.CaseFile{}, investigation.NotFound("Case file not found.")
	}
	if err != nil {
		return investigation.CaseFile{}, fmt.Errorf("get case file: %w", err)
	}
	cf.CreatedAt = fromMillis(createdAt)
	return cf, nil
}

func (s *Store) GetCaseFile(ctx context.Context, code string) (investigation.CaseFile, error) {
	return getCaseFile(ctx, s.sqlDB, code)
}

// UpsertCaseFile writes the investigation's case file.
//
// With ifVersion 0 the write only creates: an identical existing case file is
// returned unchanged and a different one is a conflict. With ifVersion > 0 the
// existing row is replaced only while its version still equals ifVersion.
func (s *Store) UpsertCaseFile(ctx context.Context, cf investigation.CaseFile, ifVersion int64) (investigation.CaseFile, error) {
	if cf.MurdererAlias == "" || cf.Weapon == "" || cf.Location == "" || cf.Motive == "" {
		return investigation.CaseFile{}, investigation.Validation("The case file needs an alias, weapon, location, and motive.")
	}
	for _, item := range []investigation.EvidenceItem{
		{Type: investigation.EvidenceWeapon, Value: cf.Weapon},
		{Type: investigation.EvidenceLocation, Value: cf.Location},
		{Type: investigation.EvidenceMotive, Value: cf.Motive},
	} {
		if err := investigation.CheckCard(item); err != nil {
			return investigation.CaseFile{}, err
		}
	}

	var (
		out     investigation.CaseFile
		typ     feed.EventType
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getCaseFile(ctx, tx, cf.InvestigationCode)
		found := err == nil
		if err != nil && !errors.Is(err, investigation.ErrNotFound) {
			return err
		}

		now := time.Now().UTC().Truncate(time.Millisecond)

		if ifVersion == 0 {
			if found {
				if existing.SameSolution(cf) {
					out = existing
					return nil
				}
				return investigation.Conflict("case_file", "The case file is already locked.")
			}

			out = cf
			out.Version = 1
			out.CreatedAt = now
			typ, changed = feed.Insert, true
			_, err = tx.ExecContext(ctx,
				`INSERT INTO investigation_case_files
				   (investigation_code, murderer_alias, weapon, location, motive, version, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				out.InvestigationCode, out.MurdererAlias, out.Weapon, out.Location, out.Motive,
				out.Version, toMillis(now),
			)
			return mapConstraint(err)
		}

		if !found {
			return investigation.NotFound("Case file not found.")
		}
		if existing.Version != ifVersion {
			return investigation.Conflict("version", "The case file was changed by someone else.")
		}

		out = cf
		out.Version = existing.Version + 1
		out.CreatedAt = existing.CreatedAt
		typ, changed = feed.Update, true
		_, err = tx.ExecContext(ctx,
			`UPDATE investigation_case_files
			 SET murderer_alias = ?, weapon = ?, location = ?, motive = ?, version = ?
			 WHERE investigation_code = ? AND version = ?`,
			out.MurdererAlias, out.Weapon, out.Location, out.Motive, out.Version,
			out.InvestigationCode, ifVersion,
		)
		return err
	})
	if err != nil {
		return investigation.CaseFile{}, s.observe(feed.TableCaseFiles, err)
	}

	s.observe(feed.TableCaseFiles, nil)
	if changed {
		s.publish(feed.CaseFileEvent(typ, out))
	}

	return out, nil
}
