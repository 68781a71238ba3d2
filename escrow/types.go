package escrow

import "time"

// Address identifies a player, the admin, the contract's custody account or
// an asset.
type Address string

func (a Address) String() string { return string(a) }

// GlobalConfig is the singleton written by Initialize. Admin never changes;
// StakeAmount is replaced by UpdateStakeAmount. MatchCounter is stored as
// zero and not read anywhere.
type GlobalConfig struct {
	Admin        Address `json:"admin"`
	StakeAmount  Amount  `json:"stake_amount"`
	MatchCounter uint64  `json:"match_counter"`
}

// GameMatch is the record of one game id. It is created by the first stake,
// grows while IsActive, and is frozen once a winner is declared.
type GameMatch struct {
	GameID         uint64    `json:"game_id"`
	Players        []Address `json:"players"`
	StakePerPlayer Amount    `json:"stake_per_player"`
	TotalPool      Amount    `json:"total_pool"`
	Winner         *Address  `json:"winner,omitempty"`
	IPFSHash       *string   `json:"ipfs_hash,omitempty"`
	IsActive       bool      `json:"is_active"`
}

// HasPlayer reports whether p appears in the match's player list.
func (m *GameMatch) HasPlayer(p Address) bool {
	for _, q := range m.Players {
		if q == p {
			return true
		}
	}
	return false
}

// EventType names a state transition.
type EventType string

const (
	EventInitialized        EventType = "initialized"
	EventStaked             EventType = "staked"
	EventMatchCreated       EventType = "match_created"
	EventWinnerDeclared     EventType = "winner_declared"
	EventStakeAmountUpdated EventType = "stake_amount_updated"
)

// Event describes one state transition. Attributes carry the values a
// reader needs without loading the affected records.
type Event struct {
	Type       EventType         `json:"type"`
	GameID     *uint64           `json:"game_id,omitempty"`
	Actor      Address           `json:"actor"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at"`
}
