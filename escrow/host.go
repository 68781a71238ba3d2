package escrow

import "context"

// Store is the durable key-value space the contract owns. Implementations
// are bound to a single invocation; writes become visible to later
// invocations only if the invocation commits.
type Store interface {
	Has(k Key) (bool, error)
	Get(k Key) (value []byte, found bool, err error)
	Set(k Key, value []byte) error
	Remove(k Key) error
}

// Authorizer proves that the current invocation acts for an identity. A
// non-nil error aborts the invocation.
type Authorizer interface {
	RequireAuth(id Address) error
}

// AssetLedger moves a fungible asset between accounts.
type AssetLedger interface {
	Transfer(asset, from, to Address, amount Amount) error
}

// EventSink receives the events of an invocation. Events emitted by an
// invocation that later fails are discarded with it.
type EventSink interface {
	Emit(e Event) error
}

// Host is everything one invocation runs against.
type Host struct {
	Store  Store
	Auth   Authorizer
	Assets AssetLedger
	Events EventSink

	// Custody is the contract's own account; stakes are held here.
	Custody Address
}

// Executor runs invocations one at a time. fn's writes, transfers and
// events commit together when fn returns nil and are discarded otherwise.
type Executor interface {
	Execute(ctx context.Context, caller Address, fn func(c *Contract) error) error
}
