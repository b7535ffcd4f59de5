package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

// IngestMessage triggers one ingestion pass. An empty Sources list ingests
// every chunk the source provides.
type IngestMessage struct {
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	Sources     []string  `json:"sources,omitempty"`
}

// Filter keeps only the chunks of the requested sources.
func (m IngestMessage) Filter(chunks []common.Chunk) []common.Chunk {
	if len(m.Sources) == 0 {
		return chunks
	}
	out := make([]common.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if slices.Contains(m.Sources, c.Source) {
			out = append(out, c)
		}
	}
	return out
}

func DecodeIngestMessage(body []byte) (IngestMessage, error) {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return IngestMessage{}, fmt.Errorf("decode ingest message: %w", err)
	}
	return msg, nil
}

// PublishIngest enqueues an ingestion trigger on IngestQueue.
func PublishIngest(ctx context.Context, ch Publisher, msg IngestMessage) error {
	if msg.RequestedAt.IsZero() {
		msg.RequestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ctx, ch, IngestQueue, data, nil)
}
