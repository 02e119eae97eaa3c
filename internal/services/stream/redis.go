// Package stream exports finalized collection records onto a Redis stream
// for external persistence and reporting.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldcollect-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// maxStreamLen caps the stream; consumers are expected to keep up
const maxStreamLen = 100000

// NewRedisClient opens a client for addr
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RecordPublisher appends records to a stream with XADD
type RecordPublisher struct {
	client *redis.Client
	stream string
}

// NewRecordPublisher creates a publisher writing to stream
func NewRecordPublisher(client *redis.Client, stream string) *RecordPublisher {
	return &RecordPublisher{client: client, stream: stream}
}

// Ping checks the connection
func (p *RecordPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Publish appends rec and returns the stream entry ID
func (p *RecordPublisher) Publish(ctx context.Context, sessionID, operatorID string, rec models.CollectionRecord) (string, error) {
	values, err := recordValues(sessionID, operatorID, rec)
	if err != nil {
		return "", err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish record %s: %w", rec.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"stream":    p.stream,
		"entry_id":  id,
		"record_id": rec.ID,
		"bin_id":    rec.BinID,
	}).Debug("📤 Record exported")

	return id, nil
}

// Close closes the underlying client
func (p *RecordPublisher) Close() error {
	return p.client.Close()
}

// recordValues flattens the fields consumers filter on and carries the full record as JSON
func recordValues(sessionID, operatorID string, rec models.CollectionRecord) (map[string]interface{}, error) {
	payload, err := json.Marshal(rec.ToRecordResponse())
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}

	return map[string]interface{}{
		"record_id":   rec.ID,
		"session_id":  sessionID,
		"operator_id": operatorID,
		"route_id":    rec.RouteID,
		"bin_id":      rec.BinID,
		"status":      string(rec.Status),
		"weight":      rec.Weight,
		"payload":     string(payload),
	}, nil
}
