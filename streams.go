package http2

import (
	"sync"
	"sync/atomic"
)

// streamShardCount must be a power of two so id&mask distributes evenly across shards without
// a modulo; 16 shards keeps lock contention low for a session handling hundreds of concurrent
// streams without wasting memory on the common case of a handful of streams.
const streamShardCount = 16

type streamShard struct {
	mu sync.RWMutex
	m  map[uint32]*Stream
}

// Streams is a lock-striped concurrent stream registry keyed by stream id. Splitting into
// shards means a DATA frame landing on stream 7 never contends with a concurrent lookup of
// stream 9.
type Streams struct {
	shards [streamShardCount]*streamShard
	count  int64 // atomic
}

func NewStreams() *Streams {
	s := &Streams{}
	for i := range s.shards {
		s.shards[i] = &streamShard{m: make(map[uint32]*Stream)}
	}
	return s
}

func (strms *Streams) shardFor(id uint32) *streamShard {
	return strms.shards[id&(streamShardCount-1)]
}

// Insert registers s, returning ErrStreamExists if id is already present. The duplicate check
// and the insert happen together under the shard's mutex; the Session's concurrent-stream-count
// check is made before Insert is called and is not covered by that lock.
func (strms *Streams) Insert(s *Stream) error {
	shard := strms.shardFor(s.id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.m[s.id]; ok {
		return ErrStreamExists
	}
	shard.m[s.id] = s
	atomic.AddInt64(&strms.count, 1)
	return nil
}

func (strms *Streams) Del(id uint32) *Stream {
	shard := strms.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	s, ok := shard.m[id]
	if !ok {
		return nil
	}
	delete(shard.m, id)
	atomic.AddInt64(&strms.count, -1)
	return s
}

func (strms *Streams) Get(id uint32) *Stream {
	shard := strms.shardFor(id)
	shard.mu.RLock()
	s := shard.m[id]
	shard.mu.RUnlock()
	return s
}

// Len returns the number of currently registered streams.
func (strms *Streams) Len() int {
	return int(atomic.LoadInt64(&strms.count))
}

// Each calls fn for every registered stream. Each snapshots one shard at a time under its read
// lock and calls fn with no lock held, so fn may call Insert/Del on the same Streams.
func (strms *Streams) Each(fn func(*Stream)) {
	for _, shard := range strms.shards {
		shard.mu.RLock()
		snapshot := make([]*Stream, 0, len(shard.m))
		for _, s := range shard.m {
			snapshot = append(snapshot, s)
		}
		shard.mu.RUnlock()
		for _, s := range snapshot {
			fn(s)
		}
	}
}
