package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/ironsheep/cellcount-mcp/internal/detection"
)

// resultStore keeps detection results addressable by id so later tool calls can
// aggregate or export them without re-running the model.
type resultStore struct {
	items *cache.Cache
}

func newResultStore(ttl time.Duration) *resultStore {
	return &resultStore{items: cache.New(ttl, ttl*2)}
}

// put stores r and returns its id.
func (s *resultStore) put(r *detection.Result) string {
	id := uuid.New().String()
	s.items.SetDefault(id, r)
	return id
}

// get returns the results for ids, in the order given. An unknown or expired id
// is an error.
func (s *resultStore) get(ids []string) ([]*detection.Result, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no result ids given")
	}
	out := make([]*detection.Result, 0, len(ids))
	for _, id := range ids {
		v, ok := s.items.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown or expired result id %q", id)
		}
		out = append(out, v.(*detection.Result))
	}
	return out, nil
}

func (s *resultStore) count() int {
	return s.items.ItemCount()
}
