package escrow

import (
	"strconv"
	"strings"
)

// KeyKind tags the three record families held in the store.
type KeyKind string

const (
	KindConfig      KeyKind = "config"
	KindPlayerStake KeyKind = "player_stake"
	KindGameMatch   KeyKind = "game_match"
)

// Key addresses one record in the store. The set of implementations is
// closed: ConfigKey, PlayerStakeKey and GameMatchKey.
type Key interface {
	Kind() KeyKind
	String() string
	sealed()
}

type configKey struct{}

func (configKey) Kind() KeyKind  { return KindConfig }
func (configKey) String() string { return "cfg" }
func (configKey) sealed()        {}

// ConfigKey addresses the GlobalConfig singleton.
var ConfigKey Key = configKey{}

type playerStakeKey struct{ player Address }

func (playerStakeKey) Kind() KeyKind    { return KindPlayerStake }
func (k playerStakeKey) String() string { return "ps:" + string(k.player) }
func (playerStakeKey) sealed()          {}

// PlayerStakeKey addresses the stake pointer of one player.
func PlayerStakeKey(player Address) Key { return playerStakeKey{player: player} }

type gameMatchKey struct{ gameID uint64 }

func (gameMatchKey) Kind() KeyKind    { return KindGameMatch }
func (k gameMatchKey) String() string { return "gm:" + strconv.FormatUint(k.gameID, 10) }
func (gameMatchKey) sealed()          {}

// GameMatchKey addresses the match record of one game id.
func GameMatchKey(gameID uint64) Key { return gameMatchKey{gameID: gameID} }

// ParseKey turns a stored key string back into its Key. ok is false for
// strings outside the key space.
func ParseKey(s string) (Key, bool) {
	switch {
	case s == "cfg":
		return ConfigKey, true
	case strings.HasPrefix(s, "ps:") && len(s) > 3:
		return PlayerStakeKey(Address(s[3:])), true
	case strings.HasPrefix(s, "gm:"):
		id, err := strconv.ParseUint(s[3:], 10, 64)
		if err != nil {
			return nil, false
		}
		return GameMatchKey(id), true
	}
	return nil, false
}
