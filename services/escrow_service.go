// services/escrow_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"stake-escrow/escrow"

	"github.com/gofiber/fiber/v2"
)

// GameArchiver stores a game record and returns the reference recorded as
// the match's ipfs_hash.
type GameArchiver interface {
	Archive(ctx context.Context, gameID uint64, winner escrow.Address, data json.RawMessage) (string, error)
}

type EscrowService struct {
	Backend EscrowBackend
	Cache   MatchCache   // optional
	Archive GameArchiver // optional

	// StreamInterval is the polling period of match event streams.
	StreamInterval time.Duration
}

func NewEscrowService(backend EscrowBackend) *EscrowService {
	return &EscrowService{Backend: backend, StreamInterval: 2 * time.Second}
}

// ---------- Request bodies ----------

type InitializeRequest struct {
	Admin       escrow.Address `json:"admin"`
	StakeAmount string         `json:"stake_amount"`
}

type StakeRequest struct {
	Player escrow.Address `json:"player"`
	Asset  escrow.Address `json:"asset"`
}

type DeclareWinnerRequest struct {
	Admin    escrow.Address  `json:"admin"`
	Winner   escrow.Address  `json:"winner"`
	Asset    escrow.Address  `json:"asset"`
	IPFSHash string          `json:"ipfs_hash"`
	GameData json.RawMessage `json:"game_data,omitempty"`
}

type UpdateStakeAmountRequest struct {
	Admin       escrow.Address `json:"admin"`
	StakeAmount string         `json:"stake_amount"`
}

// ---------- Commands ----------

// Initialize writes the global config. Any caller may initialize once.
func (s *EscrowService) Initialize(c *fiber.Ctx) error {
	var req InitializeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Admin == "" {
		return badRequest(c, "admin is required")
	}
	amount, err := escrow.ParseAmount(req.StakeAmount)
	if err != nil {
		return respondError(c, err)
	}

	err = s.Backend.Execute(c.UserContext(), caller(c), func(ct *escrow.Contract) error {
		return ct.Initialize(req.Admin, amount)
	})
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("✅ [ESCROW] Initialized by %s: admin=%s stake=%s", caller(c), req.Admin, amount.String())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"admin":        req.Admin,
		"stake_amount": amount,
	})
}

// StakeToPlay stakes the current stake amount for the caller (or the named
// player, who must be the caller) into a game.
func (s *EscrowService) StakeToPlay(c *fiber.Ctx) error {
	gameID, err := gameIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req StakeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Player == "" {
		req.Player = caller(c)
	}
	if req.Asset == "" {
		return badRequest(c, "asset is required")
	}

	var (
		charged escrow.Amount
		m       *escrow.GameMatch
	)
	err = s.Backend.Execute(c.UserContext(), caller(c), func(ct *escrow.Contract) error {
		// The stake charged is the global amount at this call, which can
		// differ from the match's StakePerPlayer.
		var err error
		if charged, err = ct.GetStakeAmount(); err != nil {
			return err
		}
		if err := ct.StakeToPlay(req.Player, req.Asset, gameID); err != nil {
			return err
		}
		m, err = ct.GetGameMatch(gameID)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("💰 [ESCROW] %s staked %s into game %d (pool %s, %d players)",
		req.Player, charged.String(), gameID, m.TotalPool.String(), len(m.Players))
	return c.JSON(fiber.Map{
		"game_id": gameID,
		"player":  req.Player,
		"amount":  charged,
		"match":   m,
	})
}

// DeclareWinner settles a match. The record reference is either given as
// ipfs_hash or produced by archiving game_data.
func (s *EscrowService) DeclareWinner(c *fiber.Ctx) error {
	gameID, err := gameIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req DeclareWinnerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Admin == "" {
		req.Admin = caller(c)
	}
	if req.Winner == "" || req.Asset == "" {
		return badRequest(c, "winner and asset are required")
	}

	hash := strings.TrimSpace(req.IPFSHash)
	if hash == "" {
		if len(req.GameData) == 0 {
			return badRequest(c, "ipfs_hash or game_data is required")
		}
		if s.Archive == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "game data archive is not configured",
			})
		}
		hash, err = s.Archive.Archive(c.UserContext(), gameID, req.Winner, req.GameData)
		if err != nil {
			log.Printf("❌ [ESCROW] Archiving game %d failed: %v", gameID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "failed to archive game data",
			})
		}
	}

	var payout escrow.Payout
	var m *escrow.GameMatch
	err = s.Backend.Execute(c.UserContext(), caller(c), func(ct *escrow.Contract) error {
		var err error
		if payout, err = ct.DeclareWinner(req.Admin, gameID, req.Winner, hash, req.Asset); err != nil {
			return err
		}
		m, err = ct.GetGameMatch(gameID)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	s.cachePut(c, m)

	log.Printf("🏆 [ESCROW] Game %d won by %s: winner=%s fee=%s ref=%s",
		gameID, req.Winner, payout.WinnerAmount.String(), payout.PlatformFee.String(), hash)
	return c.JSON(fiber.Map{
		"game_id":   gameID,
		"winner":    req.Winner,
		"ipfs_hash": hash,
		"payout":    payout,
		"match":     m,
	})
}

func (s *EscrowService) UpdateStakeAmount(c *fiber.Ctx) error {
	var req UpdateStakeAmountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Admin == "" {
		req.Admin = caller(c)
	}
	amount, err := escrow.ParseAmount(req.StakeAmount)
	if err != nil {
		return respondError(c, err)
	}

	err = s.Backend.Execute(c.UserContext(), caller(c), func(ct *escrow.Contract) error {
		return ct.UpdateStakeAmount(req.Admin, amount)
	})
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("✏️  [ESCROW] Stake amount set to %s by %s", amount.String(), req.Admin)
	return c.JSON(fiber.Map{"stake_amount": amount})
}

// ---------- Queries ----------

func (s *EscrowService) GetAdmin(c *fiber.Ctx) error {
	var admin escrow.Address
	err := s.query(c, func(ct *escrow.Contract) error {
		var err error
		admin, err = ct.GetAdmin()
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"admin": admin})
}

func (s *EscrowService) GetStakeAmount(c *fiber.Ctx) error {
	var amount escrow.Amount
	err := s.query(c, func(ct *escrow.Contract) error {
		var err error
		amount, err = ct.GetStakeAmount()
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"stake_amount": amount})
}

func (s *EscrowService) GetGameMatch(c *fiber.Ctx) error {
	gameID, err := gameIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if s.Cache != nil {
		m, ok, err := s.Cache.Get(c.UserContext(), gameID)
		if err != nil {
			log.Printf("⚠️  [ESCROW] Match cache read failed for game %d: %v", gameID, err)
		} else if ok {
			return c.JSON(m)
		}
	}

	var m *escrow.GameMatch
	err = s.query(c, func(ct *escrow.Contract) error {
		var err error
		m, err = ct.GetGameMatch(gameID)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	s.cachePut(c, m)
	return c.JSON(m)
}

func (s *EscrowService) HasStaked(c *fiber.Ctx) error {
	player := escrow.Address(c.Params("player"))
	var staked bool
	err := s.query(c, func(ct *escrow.Contract) error {
		var err error
		staked, err = ct.HasStaked(player)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"player": player, "staked": staked})
}

func (s *EscrowService) GetPlayerGame(c *fiber.Ctx) error {
	player := escrow.Address(c.Params("player"))
	var (
		gameID uint64
		found  bool
	)
	err := s.query(c, func(ct *escrow.Contract) error {
		var err error
		gameID, found, err = ct.GetPlayerGame(player)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	resp := fiber.Map{"player": player, "game_id": nil}
	if found {
		resp["game_id"] = gameID
	}
	return c.JSON(resp)
}

func (s *EscrowService) GetBalance(c *fiber.Ctx) error {
	asset := escrow.Address(c.Params("asset"))
	account := escrow.Address(c.Params("account"))
	amount, err := s.Backend.Balance(c.UserContext(), asset, account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"asset": asset, "account": account, "amount": amount})
}

// ListEvents returns committed events, oldest first, after the optional
// ?after= cursor.
func (s *EscrowService) ListEvents(c *fiber.Ctx) error {
	q := EventQuery{Limit: c.QueryInt("limit", defaultEventLimit)}
	if v := c.Query("game_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid game_id")
		}
		q.GameID = &id
	}
	if v := c.Query("after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid after cursor")
		}
		q.AfterSeq = after
	}

	events, err := s.Backend.Events(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	resp := fiber.Map{"events": events, "next": q.AfterSeq}
	if n := len(events); n > 0 {
		resp["next"] = events[n-1].Seq
	}
	return c.JSON(resp)
}

// ---------- Helpers ----------

// query runs a read-only invocation without a caller identity.
func (s *EscrowService) query(c *fiber.Ctx, fn func(ct *escrow.Contract) error) error {
	return s.Backend.Execute(c.UserContext(), "", fn)
}

func (s *EscrowService) cachePut(c *fiber.Ctx, m *escrow.GameMatch) {
	if s.Cache == nil || m == nil || m.IsActive {
		return
	}
	if err := s.Cache.Put(c.UserContext(), m); err != nil {
		log.Printf("⚠️  [ESCROW] Match cache write failed for game %d: %v", m.GameID, err)
	}
}

func caller(c *fiber.Ctx) escrow.Address {
	id, _ := c.Locals("user_id").(string)
	return escrow.Address(id)
}

func gameIDParam(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("game_id"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid game_id")
	}
	return id, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

var ledgerCodes = []struct {
	err    error
	code   string
	status int
}{
	{escrow.ErrAuthDenied, "AuthDenied", fiber.StatusUnauthorized},
	{escrow.ErrInsufficientBalance, "InsufficientBalance", fiber.StatusPaymentRequired},
	{escrow.ErrNegativeTransfer, "NegativeTransfer", fiber.StatusUnprocessableEntity},
	{escrow.ErrUnknownAsset, "UnknownAsset", fiber.StatusUnprocessableEntity},
}

// StatusOf maps an invocation error to its HTTP status and failure code.
func StatusOf(err error) (int, string) {
	switch code := escrow.Code(err); code {
	case "AlreadyInitialized", "AlreadyStaked", "MatchAlreadyFinished":
		return fiber.StatusConflict, code
	case "NotInitialized":
		return fiber.StatusPreconditionFailed, code
	case "Unauthorized":
		return fiber.StatusForbidden, code
	case "MatchNotFound":
		return fiber.StatusNotFound, code
	case "WinnerNotAPlayer", "InvalidAmount", "AmountOverflow":
		return fiber.StatusUnprocessableEntity, code
	}
	for _, l := range ledgerCodes {
		if errors.Is(err, l.err) {
			return l.status, l.code
		}
	}
	return fiber.StatusInternalServerError, "Internal"
}

func respondError(c *fiber.Ctx, err error) error {
	status, code := StatusOf(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [ESCROW] %s %s failed: %v", c.Method(), c.Path(), err)
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
}
