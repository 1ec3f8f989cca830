package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloader struct {
	games []map[string]*GameLimits
	waits [][]time.Duration
}

func (r *reloader) UpdateLimits(games map[string]*GameLimits) { r.games = append(r.games, games) }
func (r *reloader) UpdateLobbyWaits(waits []time.Duration)    { r.waits = append(r.waits, waits) }

func loadRaw(t *testing.T, body string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	c := config.New(config.WithSource(file.NewSource(path)))
	require.NoError(t, c.Load())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWatchLobbyWaits(t *testing.T) {
	bc := &Bootstrap{}
	bc.ApplyDefaults()
	r := &reloader{}
	fn := watchLobbyWaits(bc, r)

	c := loadRaw(t, "engine:\n  lobby_waits: [45, 90]\n")
	fn(keyLobbyWaits, c.Value(keyLobbyWaits))
	require.Len(t, r.waits, 1)
	assert.Equal(t, []time.Duration{45 * time.Second, 90 * time.Second}, r.waits[0])
	assert.Equal(t, []int{45, 90}, bc.Engine.LobbyWaits)

	// 没变化不回调
	fn(keyLobbyWaits, c.Value(keyLobbyWaits))
	assert.Len(t, r.waits, 1)

	// 非法值整体拒绝，保留旧值
	bad := loadRaw(t, "engine:\n  lobby_waits: [0, 30]\n")
	fn(keyLobbyWaits, bad.Value(keyLobbyWaits))
	assert.Len(t, r.waits, 1)
	assert.Equal(t, []int{45, 90}, bc.Engine.LobbyWaits)
}

func TestWatchGamesRejectsInvalid(t *testing.T) {
	bc := &Bootstrap{}
	bc.ApplyDefaults()
	r := &reloader{}
	fn := watchGames(bc, r)

	bad := loadRaw(t, "games:\n  pong: { enabled: true, min_bet: 50, max_bet: 10 }\n")
	fn("games", bad.Value("games"))
	assert.Empty(t, r.games)
	assert.NotContains(t, bc.Games, "pong")

	good := loadRaw(t, "games:\n  pong: { enabled: true, min_bet: 0, max_bet: 300, min_players: 2, max_players: 2 }\n")
	fn("games", good.Value("games"))
	require.Len(t, r.games, 1)
	assert.Equal(t, int64(300), r.games[0]["pong"].MaxBet)
}
