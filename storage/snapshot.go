package storage

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
)

// snapshotKey is the fixed slot the board snapshot lives under. One device,
// one board.
const snapshotKey = "taskflow-board-v1"

// Snapshot mirrors the last-known board state into a durable Redis slot. It
// is the only persistence target in guest mode and an offline mirror for
// authenticated sessions. Entries never expire.
type Snapshot struct {
	redis *redis.Client
	log   *log.Logger
}

// NewSnapshot creates a snapshot slot on the given Redis client. A nil client
// degrades to a slot that never holds anything.
func NewSnapshot(client *redis.Client, logger *log.Logger) *Snapshot {
	if logger == nil {
		logger = log.New()
	}
	return &Snapshot{redis: client, log: logger}
}

// Load reads the stored board state. Missing, unparsable, or unreachable
// payloads all read as absent; a corrupt payload is deleted so the next
// session starts clean.
func (s *Snapshot) Load(ctx context.Context) (domain.BoardState, bool) {
	if s.redis == nil {
		return domain.BoardState{}, false
	}
	data, err := s.redis.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.WithField("error", err.Error()).Warn("snapshot read failed")
		}
		return domain.BoardState{}, false
	}
	var state domain.BoardState
	if err := sonic.Unmarshal(data, &state); err != nil {
		s.log.WithField("error", err.Error()).Warn("snapshot corrupt; discarding")
		_ = s.redis.Del(ctx, snapshotKey).Err()
		return domain.BoardState{}, false
	}
	return state, true
}

// Save writes the board state into the slot. Best-effort: failures are logged
// and swallowed so a dead local slot never blocks a mutation.
func (s *Snapshot) Save(ctx context.Context, state domain.BoardState) {
	if s.redis == nil {
		return
	}
	data, err := sonic.Marshal(state)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("snapshot encode failed")
		return
	}
	if err := s.redis.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		s.log.WithField("error", err.Error()).Warn("snapshot write failed")
	}
}
