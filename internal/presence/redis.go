package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-whiteboard/internal/model"
)

// TTL 보드 접속자 목록 만료 시간 (Heartbeat는 TTL/2 마다)
const TTL = 60 * time.Second

// Entry Redis에 저장될 접속자 데이터
type Entry struct {
	User          model.PresenceUser `json:"user"`
	ServerID      string             `json:"server_id"`
	LastHeartbeat int64              `json:"last_heartbeat"`
}

// Roster mirrors each board's presence into a Redis hash keyed by connection,
// so every relay instance can answer who is on a board. The hash expires
// unless some instance keeps heartbeating it.
type Roster struct {
	client   *redis.Client
	serverID string
	now      func() time.Time
}

// NewRoster 생성자
func NewRoster(client *redis.Client, serverID string) *Roster {
	return &Roster{client: client, serverID: serverID, now: time.Now}
}

// Connect dials Redis and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func boardKey(boardID string) string {
	return "presence:board:" + boardID
}

// Track records user under the connection key and refreshes the board's TTL.
func (r *Roster) Track(ctx context.Context, boardID, connKey string, user model.PresenceUser) error {
	data, err := json.Marshal(Entry{
		User:          user,
		ServerID:      r.serverID,
		LastHeartbeat: r.now().Unix(),
	})
	if err != nil {
		return err
	}

	key := boardKey(boardID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, connKey, data)
	pipe.Expire(ctx, key, TTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Untrack 접속 해제
func (r *Roster) Untrack(ctx context.Context, boardID, connKey string) error {
	return r.client.HDel(ctx, boardKey(boardID), connKey).Err()
}

// Heartbeat extends the board's TTL. It reports false when the roster has
// already expired.
func (r *Roster) Heartbeat(ctx context.Context, boardID string) (bool, error) {
	return r.client.Expire(ctx, boardKey(boardID), TTL).Result()
}

// List returns the board's roster keyed by connection. Entries that fail to
// decode are skipped.
func (r *Roster) List(ctx context.Context, boardID string) (map[string]Entry, error) {
	raw, err := r.client.HGetAll(ctx, boardKey(boardID)).Result()
	if err != nil {
		return nil, err
	}

	entries := make(map[string]Entry, len(raw))
	for connKey, val := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			continue
		}
		entries[connKey] = e
	}
	return entries, nil
}

// Ping Redis 연결 확인
func (r *Roster) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
