// Package checkpoint persists the set of chunk ids the ingestor has fully
// processed, so an interrupted run resumes where it stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrCorrupt is returned by Load when the stored checkpoint cannot be decoded.
var ErrCorrupt = errors.New("checkpoint is corrupt")

// Store loads and saves the processed set. Save always writes the complete
// set; there are no partial updates.
type Store interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Save(ctx context.Context, processed map[string]struct{}) error
}

// Clear resets the checkpoint to the empty set.
func Clear(ctx context.Context, s Store) error {
	return s.Save(ctx, map[string]struct{}{})
}

type document struct {
	Processed []string `json:"processed"`
}

// Sorted returns the ids of processed in lexicographic order.
func Sorted(processed map[string]struct{}) []string {
	ids := make([]string, 0, len(processed))
	for id := range processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func encode(processed map[string]struct{}) ([]byte, error) {
	return json.MarshalIndent(document{Processed: Sorted(processed)}, "", "  ")
}

func decode(data []byte) (map[string]struct{}, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out := make(map[string]struct{}, len(doc.Processed))
	for _, id := range doc.Processed {
		out[id] = struct{}{}
	}
	return out, nil
}
