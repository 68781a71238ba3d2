package escrow

import "errors"

var (
	ErrAlreadyInitialized   = errors.New("already initialized")
	ErrNotInitialized       = errors.New("not initialized")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAlreadyStaked        = errors.New("player already staked for this game")
	ErrMatchNotFound        = errors.New("game not found")
	ErrMatchAlreadyFinished = errors.New("game already finished")
	ErrWinnerNotAPlayer     = errors.New("winner not in player list")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAmountOverflow       = errors.New("amount overflow")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrAlreadyStaked, "AlreadyStaked"},
	{ErrMatchNotFound, "MatchNotFound"},
	{ErrMatchAlreadyFinished, "MatchAlreadyFinished"},
	{ErrWinnerNotAPlayer, "WinnerNotAPlayer"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrAmountOverflow, "AmountOverflow"},
}

// Code returns the failure-kind name of err, or "" when err is not one of
// the state machine's own failures (collaborator and storage errors).
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
