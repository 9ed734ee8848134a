package queue

import (
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/matatu-pay/pkg/redis"
)

const (
	fieldData      = "data"
	fieldTimestamp = "timestamp"
	fieldAttempts  = "attempts"
	metaPrefix     = "meta_"
	dlqSuffix      = ":dlq"
)

// Message is one stream entry handed to a consumer.
type Message struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	// Attempts counts earlier deliveries of the entry to any consumer of the group.
	Attempts int
}

// encodeEntry flattens a payload and its metadata into stream fields.
// Metadata keys are namespaced so they never collide with the reserved fields.
func encodeEntry(data []byte, metadata map[string]string, at time.Time) map[string]interface{} {
	values := make(map[string]interface{}, len(metadata)+3)
	values[fieldData] = string(data)
	values[fieldTimestamp] = at.Unix()
	values[fieldAttempts] = 0
	for k, v := range metadata {
		values[metaPrefix+k] = v
	}
	return values
}

func decodeEntry(entry redis.StreamMessage) *Message {
	msg := &Message{ID: entry.ID, Metadata: map[string]string{}}

	for k, v := range entry.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case fieldData:
			msg.Data = []byte(s)
		case fieldTimestamp:
			if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
				msg.Timestamp = time.Unix(unix, 0)
			}
		case fieldAttempts:
			msg.Attempts, _ = strconv.Atoi(s)
		default:
			if name, ok := strings.CutPrefix(k, metaPrefix); ok && name != "" {
				msg.Metadata[name] = s
			}
		}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}
