package escrow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Contract is the escrow state machine bound to one invocation's host.
type Contract struct {
	host Host
	now  func() time.Time
}

// New binds a contract to h.
func New(h Host) *Contract {
	return &Contract{host: h, now: time.Now}
}

// ---------- Entry: Initialize ----------

// Initialize writes the global config. It fails with ErrAlreadyInitialized
// on every call after the first.
func (c *Contract) Initialize(admin Address, stakeAmount Amount) error {
	exists, err := c.host.Store.Has(ConfigKey)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialized
	}
	if err := ValidateAmount(stakeAmount); err != nil {
		return err
	}

	cfg := GlobalConfig{Admin: admin, StakeAmount: stakeAmount, MatchCounter: 0}
	if err := c.put(ConfigKey, cfg); err != nil {
		return err
	}
	return c.emit(EventInitialized, nil, admin, map[string]string{
		"admin":        admin.String(),
		"stake_amount": stakeAmount.String(),
	})
}

// ---------- Entry: Stake ----------

// StakeToPlay moves the current stake amount from player into custody and
// records player as a participant of gameID, creating the match on first
// stake.
func (c *Contract) StakeToPlay(player, asset Address, gameID uint64) error {
	if err := c.host.Auth.RequireAuth(player); err != nil {
		return fmt.Errorf("authorize %s: %w", player, err)
	}

	cfg, err := c.config()
	if err != nil {
		return err
	}
	stake := cfg.StakeAmount

	staked, found, err := c.pointer(player)
	if err != nil {
		return err
	}
	if found && staked == gameID {
		return ErrAlreadyStaked
	}

	if err := c.host.Assets.Transfer(asset, player, c.host.Custody, stake); err != nil {
		return fmt.Errorf("stake transfer: %w", err)
	}

	if err := c.put(PlayerStakeKey(player), gameID); err != nil {
		return err
	}

	m, found, err := c.match(gameID)
	if err != nil {
		return err
	}
	if !found {
		m = &GameMatch{
			GameID:         gameID,
			Players:        []Address{},
			StakePerPlayer: stake,
			TotalPool:      decimal.Zero,
			IsActive:       true,
		}
		if err := c.emit(EventMatchCreated, &gameID, player, map[string]string{
			"stake_per_player": stake.String(),
		}); err != nil {
			return err
		}
	}

	// TotalPool follows the stake read in this call, not StakePerPlayer.
	m.Players = append(m.Players, player)
	if m.TotalPool, err = checkedAdd(m.TotalPool, stake); err != nil {
		return err
	}
	if err := c.put(GameMatchKey(gameID), m); err != nil {
		return err
	}

	return c.emit(EventStaked, &gameID, player, map[string]string{
		"asset":      asset.String(),
		"amount":     stake.String(),
		"total_pool": m.TotalPool.String(),
		"players":    strconv.Itoa(len(m.Players)),
	})
}

// ---------- Entry: Declare winner ----------

// DeclareWinner settles an active match: the pool minus the platform fee
// goes to winner, the fee goes to admin, the match is frozen and the stake
// pointer of every listed player is removed.
func (c *Contract) DeclareWinner(admin Address, gameID uint64, winner Address, ipfsHash string, asset Address) (Payout, error) {
	if err := c.requireAdmin(admin); err != nil {
		return Payout{}, err
	}

	m, found, err := c.match(gameID)
	if err != nil {
		return Payout{}, err
	}
	if !found {
		return Payout{}, ErrMatchNotFound
	}
	if !m.IsActive {
		return Payout{}, ErrMatchAlreadyFinished
	}
	if !m.HasPlayer(winner) {
		return Payout{}, ErrWinnerNotAPlayer
	}

	p, err := SplitPool(m.TotalPool)
	if err != nil {
		return Payout{}, err
	}
	if err := c.host.Assets.Transfer(asset, c.host.Custody, winner, p.WinnerAmount); err != nil {
		return Payout{}, fmt.Errorf("winner transfer: %w", err)
	}
	if err := c.host.Assets.Transfer(asset, c.host.Custody, admin, p.PlatformFee); err != nil {
		return Payout{}, fmt.Errorf("platform fee transfer: %w", err)
	}

	m.Winner = &winner
	m.IPFSHash = &ipfsHash
	m.IsActive = false
	if err := c.put(GameMatchKey(gameID), m); err != nil {
		return Payout{}, err
	}

	// Pointers are removed whether or not they still refer to gameID.
	for _, player := range m.Players {
		if err := c.host.Store.Remove(PlayerStakeKey(player)); err != nil {
			return Payout{}, err
		}
	}

	if err := c.emit(EventWinnerDeclared, &gameID, admin, map[string]string{
		"winner":        winner.String(),
		"ipfs_hash":     ipfsHash,
		"asset":         asset.String(),
		"winner_amount": p.WinnerAmount.String(),
		"platform_fee":  p.PlatformFee.String(),
	}); err != nil {
		return Payout{}, err
	}
	return p, nil
}

// ---------- Entry: Update stake amount ----------

// UpdateStakeAmount replaces the stake required from players. Matches
// already created keep their StakePerPlayer.
func (c *Contract) UpdateStakeAmount(admin Address, newAmount Amount) error {
	if err := c.requireAdmin(admin); err != nil {
		return err
	}
	if err := ValidateAmount(newAmount); err != nil {
		return err
	}
	cfg, err := c.config()
	if err != nil {
		return err
	}
	old := cfg.StakeAmount
	cfg.StakeAmount = newAmount
	if err := c.put(ConfigKey, cfg); err != nil {
		return err
	}
	return c.emit(EventStakeAmountUpdated, nil, admin, map[string]string{
		"old": old.String(),
		"new": newAmount.String(),
	})
}

// ---------- Queries ----------

// GetGameMatch returns the match record of gameID.
func (c *Contract) GetGameMatch(gameID uint64) (*GameMatch, error) {
	m, found, err := c.match(gameID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// HasStaked reports whether player currently has a stake pointer.
func (c *Contract) HasStaked(player Address) (bool, error) {
	return c.host.Store.Has(PlayerStakeKey(player))
}

// GetPlayerGame returns the game id of player's stake pointer, if any.
func (c *Contract) GetPlayerGame(player Address) (uint64, bool, error) {
	return c.pointer(player)
}

func (c *Contract) GetStakeAmount() (Amount, error) {
	cfg, err := c.config()
	if err != nil {
		return decimal.Zero, err
	}
	return cfg.StakeAmount, nil
}

func (c *Contract) GetAdmin() (Address, error) {
	cfg, err := c.config()
	if err != nil {
		return "", err
	}
	return cfg.Admin, nil
}

// ---------- Helpers ----------

// requireAdmin checks the caller controls admin and that admin is the
// stored administrator.
func (c *Contract) requireAdmin(admin Address) error {
	if err := c.host.Auth.RequireAuth(admin); err != nil {
		return fmt.Errorf("authorize %s: %w", admin, err)
	}
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if admin != cfg.Admin {
		return ErrUnauthorized
	}
	return nil
}

func (c *Contract) config() (*GlobalConfig, error) {
	var cfg GlobalConfig
	found, err := c.get(ConfigKey, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotInitialized
	}
	return &cfg, nil
}

func (c *Contract) pointer(player Address) (uint64, bool, error) {
	var id uint64
	found, err := c.get(PlayerStakeKey(player), &id)
	return id, found, err
}

func (c *Contract) match(gameID uint64) (*GameMatch, bool, error) {
	var m GameMatch
	found, err := c.get(GameMatchKey(gameID), &m)
	if err != nil || !found {
		return nil, found, err
	}
	return &m, true, nil
}

func (c *Contract) get(k Key, v any) (bool, error) {
	raw, found, err := c.host.Store.Get(k)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", k, err)
	}
	return true, nil
}

func (c *Contract) put(k Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return c.host.Store.Set(k, raw)
}

func (c *Contract) emit(t EventType, gameID *uint64, actor Address, attrs map[string]string) error {
	if c.host.Events == nil {
		return nil
	}
	return c.host.Events.Emit(Event{
		Type:       t,
		GameID:     gameID,
		Actor:      actor,
		Attributes: attrs,
		At:         c.now().UTC(),
	})
}
