package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"musky.app/forecast/common/id"
	"musky.app/forecast/internal/model"
)

const (
	redisArtifactPrefix = "forecast:report:"
	redisDateIndexKey   = "forecast:report_dates"
)

// upsertArtifactScript bumps the revision and rewrites the artifact atomically.
// KEYS[1] = artifact hash, KEYS[2] = date index (sorted set)
// ARGV[1..7] = date_key, content, schedule, generated_at, duration_ms, cost_units, run_id
// ARGV[8] = index score
var upsertArtifactScript = redis.NewScript(`
local rev = redis.call("HINCRBY", KEYS[1], "revision", 1)
redis.call("HSET", KEYS[1],
    "date_key", ARGV[1],
    "content", ARGV[2],
    "schedule", ARGV[3],
    "generated_at", ARGV[4],
    "generation_duration_ms", ARGV[5],
    "cost_units", ARGV[6],
    "run_id", ARGV[7])
redis.call("ZADD", KEYS[2], ARGV[8], ARGV[1])
return rev
`)

// sweepArtifactsScript removes every artifact whose index score is below the
// cutoff.
// KEYS[1] = date index, ARGV[1] = cutoff score, ARGV[2] = artifact key prefix
var sweepArtifactsScript = redis.NewScript(`
local dates = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
for _, d in ipairs(dates) do
    redis.call("DEL", ARGV[2] .. d)
end
if #dates > 0 then
    redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
end
return #dates
`)

// RedisReportStore keeps each artifact in a hash and indexes dates in a
// sorted set scored by yyyymmdd.
type RedisReportStore struct {
	client redis.UniversalClient
}

func NewRedisReportStore(client redis.UniversalClient) *RedisReportStore {
	return &RedisReportStore{client: client}
}

func (s *RedisReportStore) Get(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	fields, err := s.client.HGetAll(ctx, redisArtifactPrefix+dateKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", dateKey, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	a, err := fromHash(fields)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", dateKey, err)
	}
	return a, nil
}

func (s *RedisReportStore) Put(ctx context.Context, artifact *model.ReportArtifact) (*model.ReportArtifact, error) {
	if artifact == nil || artifact.DateKey == "" {
		return nil, fmt.Errorf("artifact date key is required")
	}
	score, err := dateScore(artifact.DateKey)
	if err != nil {
		return nil, err
	}

	stored := persisted(artifact)
	if stored.RunID == 0 {
		stored.RunID = id.New()
	}
	fields, err := toHash(stored)
	if err != nil {
		return nil, err
	}

	rev, err := upsertArtifactScript.Run(ctx, s.client,
		[]string{redisArtifactPrefix + stored.DateKey, redisDateIndexKey},
		stored.DateKey,
		fields["content"],
		fields["schedule"],
		fields["generated_at"],
		fields["generation_duration_ms"],
		fields["cost_units"],
		fields["run_id"],
		score,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("put report %s: %w", artifact.DateKey, err)
	}

	stored.Revision = rev
	return stored, nil
}

func (s *RedisReportStore) Sweep(ctx context.Context, retainDays int, today time.Time) (int, error) {
	cutoff := SweepCutoff(today, retainDays)
	score, err := dateScore(cutoff)
	if err != nil {
		return 0, err
	}
	n, err := sweepArtifactsScript.Run(ctx, s.client,
		[]string{redisDateIndexKey}, score, redisArtifactPrefix).Int()
	if err != nil {
		return 0, fmt.Errorf("sweep before %s: %w", cutoff, err)
	}
	return n, nil
}

func (s *RedisReportStore) Latest(ctx context.Context) (*model.ReportArtifact, error) {
	dates, err := s.client.ZRevRange(ctx, redisDateIndexKey, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	if len(dates) == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, dates[0])
}

// dateScore maps "2026-06-10" to 20260610 so lexical and numeric order agree.
func dateScore(dateKey string) (int64, error) {
	if _, err := time.Parse(model.DateKeyLayout, dateKey); err != nil {
		return 0, fmt.Errorf("invalid date key %q: %w", dateKey, err)
	}
	return strconv.ParseInt(strings.ReplaceAll(dateKey, "-", ""), 10, 64)
}

func toHash(a *model.ReportArtifact) (map[string]string, error) {
	schedule := ""
	if a.Schedule != nil {
		b, err := json.Marshal(a.Schedule)
		if err != nil {
			return nil, fmt.Errorf("encoding schedule: %w", err)
		}
		schedule = string(b)
	}
	return map[string]string{
		"date_key":               a.DateKey,
		"content":                a.Content,
		"schedule":               schedule,
		"generated_at":           a.GeneratedAt.UTC().Format(time.RFC3339Nano),
		"generation_duration_ms": strconv.FormatInt(a.GenerationDurationMs, 10),
		"cost_units":             strconv.FormatInt(a.CostUnits, 10),
		"revision":               strconv.FormatInt(a.Revision, 10),
		"run_id":                 strconv.FormatInt(a.RunID, 10),
	}, nil
}

func fromHash(fields map[string]string) (*model.ReportArtifact, error) {
	a := &model.ReportArtifact{
		DateKey: fields["date_key"],
		Content: fields["content"],
	}

	var errs []error
	parseInt := func(name string) int64 {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
		}
		return v
	}
	a.GenerationDurationMs = parseInt("generation_duration_ms")
	a.CostUnits = parseInt("cost_units")
	a.Revision = parseInt("revision")
	a.RunID = parseInt("run_id")

	generatedAt, err := time.Parse(time.RFC3339Nano, fields["generated_at"])
	if err != nil {
		errs = append(errs, fmt.Errorf("field generated_at: %w", err))
	}
	a.GeneratedAt = generatedAt

	if raw := fields["schedule"]; raw != "" {
		var s model.ConsensusSchedule
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			errs = append(errs, fmt.Errorf("field schedule: %w", err))
		} else {
			a.Schedule = &s
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return a, nil
}
