package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mapreason/mapreason/core"
)

const recentRecordsKey = "records:recent"

// RedisRecordStore persists answer records in Redis with a TTL and keeps
// a capped index of recent record IDs for listing.
type RedisRecordStore struct {
	client  *core.RedisClient
	ttl     time.Duration
	maxList int64
	logger  core.Logger
}

// NewRedisRecordStore creates a store over an established client
func NewRedisRecordStore(client *core.RedisClient, config *core.Config) *RedisRecordStore {
	if config == nil {
		config = core.DefaultConfig()
	}
	return &RedisRecordStore{
		client:  client,
		ttl:     config.RecordTTL,
		maxList: int64(config.HistorySize),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (s *RedisRecordStore) SetLogger(logger core.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *RedisRecordStore) recordKey(id string) string {
	return s.client.Key("record", id)
}

// Save persists one record and pushes it onto the recent index
func (s *RedisRecordStore) Save(ctx context.Context, record *AnswerRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.ID, err)
	}

	rdb := s.client.Client()
	pipe := rdb.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.ID), payload, s.ttl)
	pipe.LPush(ctx, s.client.Key(recentRecordsKey), record.ID)
	pipe.LTrim(ctx, s.client.Key(recentRecordsKey), 0, s.maxList-1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to persist answer record", map[string]interface{}{
			"operation": "save_record",
			"record_id": record.ID,
			"error":     err.Error(),
		})
		return fmt.Errorf("persist record %s: %w", record.ID, err)
	}

	s.logger.Debug("Answer record persisted", map[string]interface{}{
		"operation": "save_record",
		"record_id": record.ID,
		"size":      len(payload),
	})
	return nil
}

// Get retrieves one record by ID
func (s *RedisRecordStore) Get(ctx context.Context, id string) (*AnswerRecord, error) {
	payload, err := s.client.Client().Get(ctx, s.recordKey(id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("record %s: %w", id, core.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch record %s: %w", id, err)
	}

	var record AnswerRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &record, nil
}

// Recent returns up to limit records, newest first. IDs whose records
// have expired are skipped.
func (s *RedisRecordStore) Recent(ctx context.Context, limit int) ([]*AnswerRecord, error) {
	if limit <= 0 || int64(limit) > s.maxList {
		limit = int(s.maxList)
	}

	ids, err := s.client.Client().LRange(ctx, s.client.Key(recentRecordsKey), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent records: %w", err)
	}

	out := make([]*AnswerRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
