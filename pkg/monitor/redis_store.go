package monitor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/api"
)

// RedisStore is a Store backed by Redis. It uses the key layout:
//
//	<prefix>run:<id>          => HASH of run metadata
//	<prefix>run:<id>:values   => HASH of state key -> gob-encoded value
//	<prefix>runs              => ZSET of run IDs scored by start time
//
// When a TTL is set, both hashes of a run expire that long after their last
// write.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. prefix defaults to "stepflow:".
// ttl <= 0 keeps runs until they are removed by other means.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "stepflow:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) keyRun(id string) string    { return s.prefix + "run:" + id }
func (s *RedisStore) keyValues(id string) string { return s.prefix + "run:" + id + ":values" }
func (s *RedisStore) keyIndex() string           { return s.prefix + "runs" }

func (s *RedisStore) StartRun(ctx context.Context, run api.RunInfo, at time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keyRun(run.ID), s.keyValues(run.ID))
		pipe.HSet(ctx, s.keyRun(run.ID),
			"workflow", run.Workflow,
			"status", string(StatusRunning),
			"error", "",
			"started_at", strconv.FormatInt(at.UnixNano(), 10),
		)
		pipe.ZAdd(ctx, s.keyIndex(), redis.Z{Score: float64(at.UnixMicro()), Member: run.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.keyRun(run.ID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) PutValue(ctx context.Context, runID, key string, value any) error {
	data, err := codec.EncodeValue(codec.Portable(value))
	if err != nil {
		return err
	}
	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.keyValues(runID), key, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.keyValues(runID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) FinishRun(ctx context.Context, runID string, status Status, errMsg string, at time.Time) error {
	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.keyRun(runID),
		"status", string(status),
		"error", errMsg,
		"finished_at", strconv.FormatInt(at.UnixNano(), 10),
	).Err()
}

func (s *RedisStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	r, err := s.getMeta(ctx, runID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.HGetAll(ctx, s.keyValues(runID)).Result()
	if err != nil {
		return nil, err
	}
	r.Values = make(map[string]any, len(raw))
	for k, data := range raw {
		v, err := codec.DecodeValue([]byte(data))
		if err != nil {
			return nil, err
		}
		r.Values[k] = v
	}
	return r, nil
}

func (s *RedisStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.keyIndex(), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Run, 0, len(ids))
	for _, id := range ids {
		r, err := s.getMeta(ctx, id)
		if errors.Is(err, ErrRunNotFound) {
			// Expired; drop it from the index.
			s.client.ZRem(ctx, s.keyIndex(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) requireRun(ctx context.Context, runID string) error {
	n, err := s.client.Exists(ctx, s.keyRun(runID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RedisStore) getMeta(ctx context.Context, runID string) (*Run, error) {
	m, err := s.client.HGetAll(ctx, s.keyRun(runID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrRunNotFound
	}

	r := &Run{
		ID:       runID,
		Workflow: m["workflow"],
		Status:   Status(m["status"]),
		Error:    m["error"],
	}
	if ns, err := strconv.ParseInt(m["started_at"], 10, 64); err == nil {
		r.StartedAt = time.Unix(0, ns)
	}
	if v, ok := m["finished_at"]; ok && v != "" {
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(0, ns)
			r.FinishedAt = &t
		}
	}
	return r, nil
}
