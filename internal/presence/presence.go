package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker keeps advisory real-time state in Redis: which users currently
// hold a signaling connection, and which users are on an active call.
//
// Everything here is best-effort. A Redis outage degrades to "assume
// available"; call setup must never fail because presence is unreachable.
type Tracker struct {
	rdb *redis.Client

	// onlineTTL bounds how stale an online marker can get if a process
	// dies without running disconnect teardown.
	onlineTTL time.Duration

	// callTTL bounds a leaked busy slot the same way.
	callTTL time.Duration
}

const (
	defaultOnlineTTL = 90 * time.Second
	defaultCallTTL   = 4 * time.Hour
)

func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb, onlineTTL: defaultOnlineTTL, callTTL: defaultCallTTL}
}

func onlineKey(userID int64) string { return fmt.Sprintf("presence:user:%d", userID) }
func callKey(userID int64) string   { return fmt.Sprintf("callslot:user:%d", userID) }

// Online marks a user as connected. Calling it again refreshes the TTL, so
// the signaling layer can use it as a heartbeat.
func (t *Tracker) Online(ctx context.Context, userID int64) error {
	return t.rdb.Set(ctx, onlineKey(userID), "1", t.onlineTTL).Err()
}

// Offline clears the online marker on disconnect.
func (t *Tracker) Offline(ctx context.Context, userID int64) error {
	return t.rdb.Del(ctx, onlineKey(userID)).Err()
}

// OnlineSet reports which of the given users currently hold a connection.
// On error the returned map is nil; callers should treat that as unknown.
func (t *Tracker) OnlineSet(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	if len(userIDs) == 0 {
		return map[int64]bool{}, nil
	}
	pipe := t.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, onlineKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(userIDs))
	for i, id := range userIDs {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}

// releaseCallScript deletes the slot only if it still belongs to the given
// session, so a stale release cannot free a slot a newer call holds.
var releaseCallScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// BeginCall claims the user's single active-call slot for a session.
// Returns false if the user is already on a different call. Claiming the
// same session again is a no-op success.
func (t *Tracker) BeginCall(ctx context.Context, userID int64, sessionID string) (bool, error) {
	ok, err := t.rdb.SetNX(ctx, callKey(userID), sessionID, t.callTTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	current, err := t.rdb.Get(ctx, callKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Slot expired between SETNX and GET; retry once.
			return t.rdb.SetNX(ctx, callKey(userID), sessionID, t.callTTL).Result()
		}
		return false, err
	}
	return current == sessionID, nil
}

// EndCall releases the slot held for a session. Releasing a slot the user
// no longer holds is a no-op.
func (t *Tracker) EndCall(ctx context.Context, userID int64, sessionID string) error {
	return releaseCallScript.Run(ctx, t.rdb, []string{callKey(userID)}, sessionID).Err()
}

// InCall reports whether the user currently holds a call slot.
func (t *Tracker) InCall(ctx context.Context, userID int64) (bool, error) {
	n, err := t.rdb.Exists(ctx, callKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
