package results

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

const (
	redisKeyPrefix = "fitbench:results:"
	maxTxRetries   = 5
)

// RedisStore keeps one hash per eval version and mode. Each field is a
// checkpoint id holding the JSON-encoded metrics of that checkpoint.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(ctx context.Context, url, version, mode string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.IOError("connecting to redis", err)
	}

	return &RedisStore{
		client: client,
		key:    RedisKey(version, mode),
	}, nil
}

// RedisKey returns the hash key of an eval version and mode.
func RedisKey(version, mode string) string {
	return redisKeyPrefix + version + ":" + mode
}

// Load reads every checkpoint field of the hash.
func (rs *RedisStore) Load(ctx context.Context) (Record, error) {
	fields, err := rs.client.HGetAll(ctx, rs.key).Result()
	if err != nil {
		return nil, errors.IOError("loading results", err)
	}

	record := make(Record, len(fields))
	for field, value := range fields {
		ckpt, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("%s: invalid checkpoint field %q", rs.key, field))
		}
		var metrics map[string]float64
		if err := json.Unmarshal([]byte(value), &metrics); err != nil {
			return nil, errors.Wrap(errors.CodeValidation, fmt.Sprintf("%s: malformed metrics of checkpoint %d", rs.key, ckpt), err)
		}
		record[ckpt] = metrics
	}
	return record, nil
}

// SaveMetrics merges values into a checkpoint field with one HSET inside a
// WATCH transaction, retrying when the field changed concurrently.
func (rs *RedisStore) SaveMetrics(ctx context.Context, ckpt int, values map[string]float64) error {
	field := strconv.Itoa(ckpt)

	update := func(tx *redis.Tx) error {
		metrics := make(map[string]float64)
		current, err := tx.HGet(ctx, rs.key, field).Result()
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(current), &metrics); err != nil {
				return errors.Wrap(errors.CodeValidation, fmt.Sprintf("%s: malformed metrics of checkpoint %d", rs.key, ckpt), err)
			}
		case !stderrors.Is(err, redis.Nil):
			return err
		}

		for name, value := range values {
			metrics[name] = value
		}
		data, err := json.Marshal(metrics)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rs.key, field, data)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := rs.client.Watch(ctx, update, rs.key)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.CodeOf(err) != "" {
			return err
		}
		return errors.IOError(fmt.Sprintf("saving metrics of checkpoint %d", ckpt), err)
	}
	return errors.IOError(fmt.Sprintf("saving metrics of checkpoint %d", ckpt), redis.TxFailedErr)
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
