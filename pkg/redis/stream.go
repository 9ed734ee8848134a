package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// StreamMessage is one entry read from a stream.
type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}

// Streams is the consumer-group subset the settlement queue relies on.
type Streams interface {
	XAdd(key string, values map[string]interface{}) (string, error)
	XReadGroup(group, consumer, key, id string, count int64) ([]StreamMessage, error)
	XAck(key, group string, ids ...string) error
	XGroupCreateMkStream(key, group, start string) error
	XLen(key string) (int64, error)
	XTrimApprox(key string, maxLen int64) error
	XPending(key, group string) (*goredis.XPending, error)
	XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error)
	XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)
}

func toStreamMessages(in []goredis.XMessage) []StreamMessage {
	out := make([]StreamMessage, 0, len(in))
	for _, m := range in {
		out = append(out, StreamMessage{ID: m.ID, Values: m.Values})
	}
	return out
}

func (r *redisAdapter) XAdd(key string, values map[string]interface{}) (string, error) {
	return r.conn.XAdd(context.Background(), &goredis.XAddArgs{
		Stream: r.key(key),
		Values: values,
	}).Result()
}

// XReadGroup polls for new entries and returns NilError when there are none.
func (r *redisAdapter) XReadGroup(group, consumer, key, id string, count int64) ([]StreamMessage, error) {
	streams, err := r.conn.XReadGroup(context.Background(), &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.key(key), id},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []StreamMessage
	for _, s := range streams {
		out = append(out, toStreamMessages(s.Messages)...)
	}
	return out, nil
}

func (r *redisAdapter) XAck(key, group string, ids ...string) error {
	return r.conn.XAck(context.Background(), r.key(key), group, ids...).Err()
}

func (r *redisAdapter) XGroupCreateMkStream(key, group, start string) error {
	return r.conn.XGroupCreateMkStream(context.Background(), r.key(key), group, start).Err()
}

func (r *redisAdapter) XLen(key string) (int64, error) {
	return r.conn.XLen(context.Background(), r.key(key)).Result()
}

func (r *redisAdapter) XTrimApprox(key string, maxLen int64) error {
	return r.conn.XTrimMaxLenApprox(context.Background(), r.key(key), maxLen, 0).Err()
}

func (r *redisAdapter) XPending(key, group string) (*goredis.XPending, error) {
	return r.conn.XPending(context.Background(), r.key(key), group).Result()
}

func (r *redisAdapter) XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	return r.conn.XPendingExt(context.Background(), &goredis.XPendingExtArgs{
		Stream: r.key(key),
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	}).Result()
}

func (r *redisAdapter) XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	msgs, err := r.conn.XClaim(context.Background(), &goredis.XClaimArgs{
		Stream:   r.key(key),
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return toStreamMessages(msgs), nil
}
