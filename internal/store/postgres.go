package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"musky.app/forecast/common/id"
	"musky.app/forecast/core/db"
	"musky.app/forecast/internal/model"
)

// PostgresReportStore stores artifacts in report_artifacts and appends one
// report_generation_runs row per Put in the same transaction.
type PostgresReportStore struct {
	db *db.DB
}

func NewPostgresReportStore(database *db.DB) *PostgresReportStore {
	return &PostgresReportStore{db: database}
}

const artifactColumns = `to_char(date_key, 'YYYY-MM-DD'), content, schedule, generated_at,
	generation_duration_ms, cost_units, revision, run_id`

const upsertArtifactSQL = `
INSERT INTO report_artifacts (date_key, content, schedule, generated_at, generation_duration_ms, cost_units, revision, run_id)
VALUES ($1::date, $2, $3, $4, $5, $6, 1, $7)
ON CONFLICT (date_key) DO UPDATE SET
	content = EXCLUDED.content,
	schedule = EXCLUDED.schedule,
	generated_at = EXCLUDED.generated_at,
	generation_duration_ms = EXCLUDED.generation_duration_ms,
	cost_units = EXCLUDED.cost_units,
	revision = report_artifacts.revision + 1,
	run_id = EXCLUDED.run_id,
	updated_at = NOW()
RETURNING ` + artifactColumns

const insertRunSQL = `
INSERT INTO report_generation_runs (run_id, date_key, revision, sources_used, sources_attempted, confidence_tier, generation_duration_ms, cost_units)
VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id) DO NOTHING`

func (s *PostgresReportStore) Get(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	row := s.db.Pool().QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM report_artifacts WHERE date_key = $1::date`, dateKey)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report %s: %w", dateKey, err)
	}
	return a, nil
}

func (s *PostgresReportStore) Put(ctx context.Context, artifact *model.ReportArtifact) (*model.ReportArtifact, error) {
	if artifact == nil || artifact.DateKey == "" {
		return nil, fmt.Errorf("artifact date key is required")
	}
	in := persisted(artifact)
	if in.RunID == 0 {
		in.RunID = id.New()
	}

	var schedule []byte
	if in.Schedule != nil {
		var err error
		if schedule, err = json.Marshal(in.Schedule); err != nil {
			return nil, fmt.Errorf("encoding schedule: %w", err)
		}
	}

	var stored *model.ReportArtifact
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, upsertArtifactSQL,
			in.DateKey, in.Content, schedule, in.GeneratedAt,
			in.GenerationDurationMs, in.CostUnits, in.RunID)
		a, err := scanArtifact(row)
		if err != nil {
			return fmt.Errorf("upserting artifact: %w", err)
		}

		used, attempted, tier := 0, 0, string(model.ConfidenceLow)
		if in.Schedule != nil {
			used = in.Schedule.SourcesUsed
			attempted = in.Schedule.SourcesAttempted
			tier = string(in.Schedule.ConfidenceTier)
		}
		if _, err := tx.Exec(ctx, insertRunSQL,
			in.RunID, in.DateKey, a.Revision, used, attempted, tier,
			in.GenerationDurationMs, in.CostUnits); err != nil {
			return fmt.Errorf("recording generation run: %w", err)
		}

		stored = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("put report %s: %w", artifact.DateKey, err)
	}
	return stored, nil
}

func (s *PostgresReportStore) Sweep(ctx context.Context, retainDays int, today time.Time) (int, error) {
	cutoff := SweepCutoff(today, retainDays)

	var removed int64
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM report_generation_runs WHERE date_key < $1::date`, cutoff); err != nil {
			return fmt.Errorf("deleting runs: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM report_artifacts WHERE date_key < $1::date`, cutoff)
		if err != nil {
			return fmt.Errorf("deleting artifacts: %w", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep before %s: %w", cutoff, err)
	}
	return int(removed), nil
}

func (s *PostgresReportStore) Latest(ctx context.Context) (*model.ReportArtifact, error) {
	row := s.db.Pool().QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM report_artifacts ORDER BY date_key DESC LIMIT 1`)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest report: %w", err)
	}
	return a, nil
}

func scanArtifact(row pgx.Row) (*model.ReportArtifact, error) {
	var (
		a        model.ReportArtifact
		schedule []byte
	)
	if err := row.Scan(&a.DateKey, &a.Content, &schedule, &a.GeneratedAt,
		&a.GenerationDurationMs, &a.CostUnits, &a.Revision, &a.RunID); err != nil {
		return nil, err
	}
	if len(schedule) > 0 {
		var s model.ConsensusSchedule
		if err := json.Unmarshal(schedule, &s); err != nil {
			return nil, fmt.Errorf("decoding schedule: %w", err)
		}
		a.Schedule = &s
	}
	return &a, nil
}
