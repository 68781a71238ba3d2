package escrow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin   Address = "GADMIN"
	custody Address = "CESCROW"
	xlm     Address = "native"
	p1      Address = "GPLAYER1"
	p2      Address = "GPLAYER2"
	p3      Address = "GPLAYER3"
)

func amt(n int64) Amount { return decimal.NewFromInt(n) }

func call(t *testing.T, e *MemoryExecutor, caller Address, fn func(c *Contract) error) error {
	t.Helper()
	return e.Execute(context.Background(), caller, fn)
}

// setup returns an initialized executor with stake 100 and funded players.
func setup(t *testing.T, opts ...MemoryOption) *MemoryExecutor {
	t.Helper()
	e := NewMemoryExecutor(custody, opts...)
	require.NoError(t, call(t, e, admin, func(c *Contract) error {
		return c.Initialize(admin, amt(100))
	}))
	for _, p := range []Address{p1, p2, p3} {
		e.Credit(xlm, p, amt(1000))
	}
	return e
}

func stake(t *testing.T, e *MemoryExecutor, player Address, gameID uint64) error {
	t.Helper()
	return call(t, e, player, func(c *Contract) error {
		return c.StakeToPlay(player, xlm, gameID)
	})
}

func declare(t *testing.T, e *MemoryExecutor, gameID uint64, winner Address, hash string) (Payout, error) {
	t.Helper()
	var p Payout
	err := call(t, e, admin, func(c *Contract) error {
		var err error
		p, err = c.DeclareWinner(admin, gameID, winner, hash, xlm)
		return err
	})
	return p, err
}

func getMatch(t *testing.T, e *MemoryExecutor, gameID uint64) (*GameMatch, error) {
	t.Helper()
	var m *GameMatch
	err := call(t, e, "", func(c *Contract) error {
		var err error
		m, err = c.GetGameMatch(gameID)
		return err
	})
	return m, err
}

func pointer(t *testing.T, e *MemoryExecutor, player Address) (uint64, bool) {
	t.Helper()
	var (
		id    uint64
		found bool
	)
	require.NoError(t, call(t, e, "", func(c *Contract) error {
		var err error
		id, found, err = c.GetPlayerGame(player)
		return err
	}))
	return id, found
}

func TestInitializeIsWriteOnce(t *testing.T) {
	e := setup(t)

	err := call(t, e, "GOTHER", func(c *Contract) error {
		return c.Initialize("GOTHER", amt(5))
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	require.NoError(t, call(t, e, "", func(c *Contract) error {
		got, err := c.GetAdmin()
		require.NoError(t, err)
		assert.Equal(t, admin, got)

		stakeAmount, err := c.GetStakeAmount()
		require.NoError(t, err)
		assert.Equal(t, "100", stakeAmount.String())
		return nil
	}))
}

func TestOperationsBeforeInitialize(t *testing.T) {
	e := NewMemoryExecutor(custody)
	e.Credit(xlm, p1, amt(1000))

	err := call(t, e, "", func(c *Contract) error {
		_, err := c.GetStakeAmount()
		return err
	})
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = call(t, e, "", func(c *Contract) error {
		_, err := c.GetAdmin()
		return err
	})
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.ErrorIs(t, stake(t, e, p1, 1), ErrNotInitialized)

	err = call(t, e, admin, func(c *Contract) error {
		return c.UpdateStakeAmount(admin, amt(10))
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, "1000", e.Balance(xlm, p1).String())
}

func TestInitializeRejectsNonIntegerStake(t *testing.T) {
	e := NewMemoryExecutor(custody)
	err := call(t, e, admin, func(c *Contract) error {
		return c.Initialize(admin, decimal.RequireFromString("1.5"))
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestStakeToPlayRecordsPlayersInOrder(t *testing.T) {
	e := setup(t)

	for _, p := range []Address{p2, p1, p3} {
		require.NoError(t, stake(t, e, p, 7))
	}

	m, err := getMatch(t, e, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), m.GameID)
	assert.Equal(t, []Address{p2, p1, p3}, m.Players)
	assert.Equal(t, "100", m.StakePerPlayer.String())
	assert.Equal(t, "300", m.TotalPool.String())
	assert.True(t, m.IsActive)
	assert.Nil(t, m.Winner)
	assert.Nil(t, m.IPFSHash)
	assert.True(t, m.TotalPool.Equal(m.StakePerPlayer.Mul(amt(int64(len(m.Players))))))

	assert.Equal(t, "900", e.Balance(xlm, p1).String())
	assert.Equal(t, "300", e.Balance(xlm, custody).String())

	id, found := pointer(t, e, p1)
	assert.True(t, found)
	assert.Equal(t, uint64(7), id)
}

func TestStakeTwiceIntoSameGameFails(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))

	require.ErrorIs(t, stake(t, e, p1, 1), ErrAlreadyStaked)

	m, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.Equal(t, []Address{p1}, m.Players)
	assert.Equal(t, "100", m.TotalPool.String())
	assert.Equal(t, "900", e.Balance(xlm, p1).String())
}

func TestStakeRequiresPlayerAuthorization(t *testing.T) {
	e := setup(t)

	err := call(t, e, p2, func(c *Contract) error {
		return c.StakeToPlay(p1, xlm, 1)
	})
	require.ErrorIs(t, err, ErrAuthDenied)

	_, found := pointer(t, e, p1)
	assert.False(t, found)
	assert.Equal(t, "1000", e.Balance(xlm, p1).String())
}

func TestStakeTransferFailureLeavesNoState(t *testing.T) {
	e := setup(t)
	broke := Address("GBROKE")

	err := stake(t, e, broke, 3)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, found := pointer(t, e, broke)
	assert.False(t, found)
	_, err = getMatch(t, e, 3)
	assert.ErrorIs(t, err, ErrMatchNotFound)
	assert.True(t, e.Balance(xlm, custody).IsZero())
}

func TestEndToEndSettlement(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))
	require.NoError(t, stake(t, e, p2, 1))

	m, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.Equal(t, "200", m.TotalPool.String())
	assert.Equal(t, []Address{p1, p2}, m.Players)

	payout, err := declare(t, e, 1, p1, "hash")
	require.NoError(t, err)
	assert.Equal(t, "190", payout.WinnerAmount.String())
	assert.Equal(t, "10", payout.PlatformFee.String())

	m, err = getMatch(t, e, 1)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	require.NotNil(t, m.Winner)
	assert.Equal(t, p1, *m.Winner)
	require.NotNil(t, m.IPFSHash)
	assert.Equal(t, "hash", *m.IPFSHash)

	for _, p := range []Address{p1, p2} {
		_, found := pointer(t, e, p)
		assert.False(t, found, "pointer of %s should be removed", p)
	}

	assert.Equal(t, "1090", e.Balance(xlm, p1).String())
	assert.Equal(t, "900", e.Balance(xlm, p2).String())
	assert.Equal(t, "10", e.Balance(xlm, admin).String())
	assert.True(t, e.Balance(xlm, custody).IsZero())
}

func TestDeclareWinnerRejectsNonParticipant(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))
	require.NoError(t, stake(t, e, p2, 1))

	_, err := declare(t, e, 1, p3, "hash")
	require.ErrorIs(t, err, ErrWinnerNotAPlayer)

	m, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	assert.Equal(t, "200", e.Balance(xlm, custody).String())
}

func TestDeclareWinnerOnFinishedMatch(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))
	_, err := declare(t, e, 1, p1, "first")
	require.NoError(t, err)

	_, err = declare(t, e, 1, p1, "second")
	require.ErrorIs(t, err, ErrMatchAlreadyFinished)

	m, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", *m.IPFSHash)
}

func TestDeclareWinnerUnknownMatch(t *testing.T) {
	e := setup(t)
	_, err := declare(t, e, 42, p1, "hash")
	require.ErrorIs(t, err, ErrMatchNotFound)

	_, err = getMatch(t, e, 42)
	require.ErrorIs(t, err, ErrMatchNotFound)
}

func TestOnlyStoredAdminCanSettleOrUpdate(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))
	mallory := Address("GMALLORY")

	// Authorized as itself, but not the stored admin.
	err := call(t, e, mallory, func(c *Contract) error {
		_, err := c.DeclareWinner(mallory, 1, p1, "hash", xlm)
		return err
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	err = call(t, e, mallory, func(c *Contract) error {
		return c.UpdateStakeAmount(mallory, amt(1))
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Cannot act for the admin identity either.
	err = call(t, e, mallory, func(c *Contract) error {
		_, err := c.DeclareWinner(admin, 1, p1, "hash", xlm)
		return err
	})
	require.ErrorIs(t, err, ErrAuthDenied)

	m, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.True(t, m.IsActive)
}

func TestUpdateStakeAmountAppliesToNewStakes(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))

	require.NoError(t, call(t, e, admin, func(c *Contract) error {
		return c.UpdateStakeAmount(admin, amt(250))
	}))

	require.NoError(t, stake(t, e, p2, 1))
	require.NoError(t, stake(t, e, p3, 2))

	m1, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.Equal(t, "100", m1.StakePerPlayer.String())
	// The pool sums what each stake call actually charged.
	assert.Equal(t, "350", m1.TotalPool.String())

	m2, err := getMatch(t, e, 2)
	require.NoError(t, err)
	assert.Equal(t, "250", m2.StakePerPlayer.String())
	assert.Equal(t, "250", m2.TotalPool.String())
	assert.Equal(t, "750", e.Balance(xlm, p2).String())
}

func TestSettlementErasesPointerIntoOtherGame(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 1))
	require.NoError(t, stake(t, e, p2, 1))
	require.NoError(t, stake(t, e, p1, 2))

	id, _ := pointer(t, e, p1)
	assert.Equal(t, uint64(2), id)

	_, err := declare(t, e, 1, p2, "hash")
	require.NoError(t, err)

	// p1 is still a participant of active game 2, but its pointer is gone.
	_, found := pointer(t, e, p1)
	assert.False(t, found)
	m2, err := getMatch(t, e, 2)
	require.NoError(t, err)
	assert.True(t, m2.IsActive)
	assert.Equal(t, []Address{p1}, m2.Players)

	// With the pointer gone nothing stops a second entry into game 2.
	require.NoError(t, stake(t, e, p1, 2))
	m2, err = getMatch(t, e, 2)
	require.NoError(t, err)
	assert.Equal(t, []Address{p1, p1}, m2.Players)
}

func TestFinalizedMatchReadsAreStable(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 9))
	require.NoError(t, stake(t, e, p2, 9))
	_, err := declare(t, e, 9, p2, "bafy")
	require.NoError(t, err)

	first, err := getMatch(t, e, 9)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := getMatch(t, e, 9)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFailedSettlementRollsBackTransfers(t *testing.T) {
	e := setup(t, WithAssets(xlm))
	require.NoError(t, stake(t, e, p1, 1))
	require.NoError(t, stake(t, e, p2, 1))
	before := len(e.Events())

	err := call(t, e, admin, func(c *Contract) error {
		_, err := c.DeclareWinner(admin, 1, p1, "hash", "USDC")
		return err
	})
	require.ErrorIs(t, err, ErrUnknownAsset)

	m, err := getMatch(t, e, 1)
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	_, found := pointer(t, e, p1)
	assert.True(t, found)
	assert.Equal(t, "200", e.Balance(xlm, custody).String())
	assert.Len(t, e.Events(), before)
}

func TestEventsFollowTransitions(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 5))
	require.NoError(t, stake(t, e, p2, 5))
	_, err := declare(t, e, 5, p2, "hash")
	require.NoError(t, err)

	var types []EventType
	for _, ev := range e.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{
		EventInitialized,
		EventMatchCreated, EventStaked,
		EventStaked,
		EventWinnerDeclared,
	}, types)

	last := e.Events()[len(e.Events())-1]
	require.NotNil(t, last.GameID)
	assert.Equal(t, uint64(5), *last.GameID)
	assert.Equal(t, "190", last.Attributes["winner_amount"])
	assert.Equal(t, "10", last.Attributes["platform_fee"])
}

func TestPermissiveAuthorizer(t *testing.T) {
	e := setup(t, withAuthorizer(func(Address) Authorizer { return allowAll{} }))
	require.NoError(t, call(t, e, "", func(c *Contract) error {
		return c.StakeToPlay(p1, xlm, 1)
	}))
	var staked bool
	require.NoError(t, call(t, e, "", func(c *Contract) error {
		var err error
		staked, err = c.HasStaked(p1)
		return err
	}))
	assert.True(t, staked)
}

func TestActiveMatchesListsOnlyOpenGames(t *testing.T) {
	e := setup(t)
	require.NoError(t, stake(t, e, p1, 3))
	require.NoError(t, stake(t, e, p2, 1))
	require.NoError(t, stake(t, e, p3, 2))
	_, err := declare(t, e, 2, p3, "hash")
	require.NoError(t, err)

	active, err := e.ActiveMatches()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, uint64(1), active[0].GameID)
	assert.Equal(t, uint64(3), active[1].GameID)
}
