// Package redis implements storage.Store on Redis hashes and lists.
//
// Layout per monitor:
//
//	dm:<monitor>:pixels            hash   pixel id -> state blob
//	dm:<monitor>:features          set    feature ids with results
//	dm:<monitor>:results:<feature> hash   YYYY-MM-DD -> count
//	dm:<monitor>:runs              list   msgpack-encoded runs
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
)

const keyPrefix = "dm:"

// Storage is a Redis-backed pixel state store.
type Storage struct {
	client *goredis.Client
	logger *zap.SugaredLogger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, opts Options, logger *zap.SugaredLogger) (*Storage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Infof("connected to Redis at %s", opts.Addr)
	return &Storage{client: client, logger: logger}, nil
}

func pixelsKey(monitor string) string   { return keyPrefix + monitor + ":pixels" }
func featuresKey(monitor string) string { return keyPrefix + monitor + ":features" }
func runsKey(monitor string) string     { return keyPrefix + monitor + ":runs" }
func resultsKey(monitor, feature string) string {
	return keyPrefix + monitor + ":results:" + feature
}

func (r *Storage) LoadPixel(ctx context.Context, monitor, pixelID string) (*state.Pixel, error) {
	blob, err := r.client.HGet(ctx, pixelsKey(monitor), pixelID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pixel %s/%s: %w", monitor, pixelID, err)
	}
	return state.Decode(blob)
}

func (r *Storage) SavePixel(ctx context.Context, monitor string, p *state.Pixel) error {
	blob, err := state.Encode(p)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, pixelsKey(monitor), p.ID, blob).Err(); err != nil {
		return fmt.Errorf("failed to save pixel %s/%s: %w", monitor, p.ID, err)
	}
	return nil
}

func (r *Storage) SaveResults(ctx context.Context, monitor, feature string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	addResults(ctx, pipe, monitor, feature, counts)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save results of %s/%s: %w", monitor, feature, err)
	}
	return nil
}

func addResults(ctx context.Context, pipe goredis.Pipeliner, monitor, feature string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	pipe.SAdd(ctx, featuresKey(monitor), feature)
	for date, n := range counts {
		pipe.HIncrBy(ctx, resultsKey(monitor, feature), date, int64(n))
	}
}

// CommitRun queues every write in one MULTI/EXEC transaction.
func (r *Storage) CommitRun(ctx context.Context, run *storage.Run, pixels []*state.Pixel, counts map[string]int) error {
	fields := make([]interface{}, 0, 2*len(pixels))
	for _, p := range pixels {
		blob, err := state.Encode(p)
		if err != nil {
			return err
		}
		fields = append(fields, p.ID, blob)
	}
	b, err := encodeRun(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}

	pipe := r.client.TxPipeline()
	if len(fields) > 0 {
		pipe.HSet(ctx, pixelsKey(run.Monitor), fields...)
	}
	addResults(ctx, pipe, run.Monitor, run.Feature, counts)
	pipe.LPush(ctx, runsKey(run.Monitor), b)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

func (r *Storage) features(ctx context.Context, monitor, feature string) ([]string, error) {
	if feature != "" {
		return []string{feature}, nil
	}
	features, err := r.client.SMembers(ctx, featuresKey(monitor)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list features of %s: %w", monitor, err)
	}
	return features, nil
}

func (r *Storage) LoadResults(ctx context.Context, monitor, feature string) ([]storage.Result, error) {
	features, err := r.features(ctx, monitor, feature)
	if err != nil {
		return nil, err
	}

	var out []storage.Result
	for _, f := range features {
		byDate, err := r.client.HGetAll(ctx, resultsKey(monitor, f)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load results of %s/%s: %w", monitor, f, err)
		}
		for date, v := range byDate {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("bad count %q for %s/%s/%s: %w", v, monitor, f, date, err)
			}
			out = append(out, storage.Result{Monitor: monitor, Feature: f, Date: date, Count: n})
		}
	}
	storage.SortResults(out)
	return out, nil
}

func (r *Storage) DeleteResults(ctx context.Context, monitor, feature string) error {
	features, err := r.features(ctx, monitor, feature)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, f := range features {
		pipe.Del(ctx, resultsKey(monitor, f))
		pipe.SRem(ctx, featuresKey(monitor), f)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete results of %s: %w", monitor, err)
	}
	return nil
}

func encodeRun(run *storage.Run) ([]byte, error) {
	return msgpack.Marshal(run)
}

func decodeRun(b []byte) (storage.Run, error) {
	var run storage.Run
	err := msgpack.Unmarshal(b, &run)
	return run, err
}

func (r *Storage) RecordRun(ctx context.Context, run *storage.Run) error {
	b, err := encodeRun(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	if err := r.client.LPush(ctx, runsKey(run.Monitor), b).Err(); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

func (r *Storage) ListRuns(ctx context.Context, monitor string) ([]storage.Run, error) {
	raw, err := r.client.LRange(ctx, runsKey(monitor), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs of %s: %w", monitor, err)
	}

	runs := make([]storage.Run, 0, len(raw))
	for _, s := range raw {
		run, err := decodeRun([]byte(s))
		if err != nil {
			r.logger.Warnf("skipping undecodable run record of %s: %v", monitor, err)
			continue
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

func (r *Storage) DeleteMonitor(ctx context.Context, monitor string) error {
	if err := r.DeleteResults(ctx, monitor, ""); err != nil {
		return err
	}
	if err := r.client.Del(ctx, pixelsKey(monitor), featuresKey(monitor), runsKey(monitor)).Err(); err != nil {
		return fmt.Errorf("failed to delete monitor %s: %w", monitor, err)
	}
	r.logger.Infof("deleted all stored data of monitor %s", monitor)
	return nil
}

func (r *Storage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Storage) Close() error {
	return r.client.Close()
}
