package nestedset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bluesky-social/nestedset/store"
	lru "github.com/hashicorp/golang-lru/v2"
)

// nodeCache is a read-through cache of structural tuples for reads made
// outside any mutation. Mutations never read from it or fill it: they load
// tuples through their own transaction.
//
// Every mutation bumps epoch when it starts and when it ends, purging the
// cache each time. A reader only stores what it loaded if no mutation began
// or ran while its lookup was in flight, so a tuple read before a commit can
// never be cached after it.
type nodeCache struct {
	cfg   *Config
	cache *lru.Cache[int64, tuple]

	lk     sync.Mutex
	epoch  uint64
	active int
}

func newNodeCache(cfg *Config, size int) (*nodeCache, error) {
	c, err := lru.New[int64, tuple](size)
	if err != nil {
		return nil, err
	}
	return &nodeCache{
		cfg:   cfg,
		cache: c,
	}, nil
}

// get returns the tuple for id, loading it through ops on a miss. A missing
// row yields ErrNotFound and is not cached.
func (nc *nodeCache) get(ctx context.Context, ops store.Ops, id int64) (tuple, error) {
	nc.lk.Lock()
	t, ok := nc.cache.Get(id)
	epoch, quiet := nc.epoch, nc.active == 0
	nc.lk.Unlock()
	if ok {
		cacheHitsTotal.Inc()
		return t, nil
	}
	cacheMissesTotal.Inc()

	t, err := nc.load(ctx, ops, id)
	if err != nil {
		return tuple{}, err
	}

	nc.lk.Lock()
	if quiet && nc.active == 0 && nc.epoch == epoch {
		nc.cache.Add(id, t)
	}
	nc.lk.Unlock()
	return t, nil
}

// load reads the tuple for id straight from ops.
func (nc *nodeCache) load(ctx context.Context, ops store.Ops, id int64) (tuple, error) {
	r, err := ops.Get(ctx, nc.cfg.PrimaryKeyField, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tuple{}, notFound(id)
		}
		return tuple{}, fmt.Errorf("loading node %d: %w", id, err)
	}
	t, err := nc.cfg.tupleFromRow(r)
	if err != nil {
		return tuple{}, fmt.Errorf("node %d: %w", id, err)
	}
	return t, nil
}

// beginMutation and endMutation bracket every mutation.
func (nc *nodeCache) beginMutation() {
	nc.lk.Lock()
	defer nc.lk.Unlock()
	nc.active++
	nc.epoch++
	nc.cache.Purge()
}

func (nc *nodeCache) endMutation() {
	nc.lk.Lock()
	defer nc.lk.Unlock()
	nc.active--
	nc.epoch++
	nc.cache.Purge()
}

func (nc *nodeCache) purge() {
	nc.lk.Lock()
	defer nc.lk.Unlock()
	nc.epoch++
	nc.cache.Purge()
}

func (nc *nodeCache) len() int {
	return nc.cache.Len()
}
