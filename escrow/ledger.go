package escrow

import (
	"errors"
	"fmt"
)

// Failures reported by asset ledgers. They reach callers wrapped with the
// step that failed.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeTransfer    = errors.New("negative amount is not allowed")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrAuthDenied          = errors.New("authorization denied")
)

// CallerAuthorizer authorizes exactly one identity: the verified caller of
// the invocation.
type CallerAuthorizer struct {
	Caller Address
}

func (a CallerAuthorizer) RequireAuth(id Address) error {
	if a.Caller == "" || id != a.Caller {
		return fmt.Errorf("%w: caller %q cannot act for %q", ErrAuthDenied, a.Caller, id)
	}
	return nil
}

// AssetAllowList restricts the assets a ledger accepts. An empty list
// accepts every asset.
type AssetAllowList []Address

func (l AssetAllowList) Check(asset Address) error {
	if len(l) == 0 {
		return nil
	}
	for _, a := range l {
		if a == asset {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
}
