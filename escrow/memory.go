package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type balanceKey struct {
	asset, account Address
}

// MemoryExecutor keeps contract state and asset balances in process. Each
// invocation works on a copy that replaces the live state only on success.
type MemoryExecutor struct {
	mu       sync.Mutex
	custody  Address
	assets   AssetAllowList
	authFor  func(caller Address) Authorizer
	state    map[string][]byte
	balances map[balanceKey]Amount
	events   []Event
}

// MemoryOption configures a MemoryExecutor.
type MemoryOption func(*MemoryExecutor)

// WithAssets restricts the accepted assets.
func WithAssets(assets ...Address) MemoryOption {
	return func(m *MemoryExecutor) { m.assets = assets }
}

func NewMemoryExecutor(custody Address, opts ...MemoryOption) *MemoryExecutor {
	m := &MemoryExecutor{
		custody:  custody,
		authFor:  func(caller Address) Authorizer { return CallerAuthorizer{Caller: caller} },
		state:    make(map[string][]byte),
		balances: make(map[balanceKey]Amount),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryExecutor) Execute(ctx context.Context, caller Address, fn func(c *Contract) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	store := &memoryStore{data: cloneState(m.state)}
	ledger := &memoryLedger{assets: m.assets, balances: cloneBalances(m.balances)}
	sink := &memorySink{}

	err := fn(New(Host{
		Store:   store,
		Auth:    m.authFor(caller),
		Assets:  ledger,
		Events:  sink,
		Custody: m.custody,
	}))
	if err != nil {
		return err
	}

	m.state = store.data
	m.balances = ledger.balances
	m.events = append(m.events, sink.events...)
	return nil
}

// Credit adds amount to account outside of any invocation, as a deposit
// from the outside world would.
func (m *MemoryExecutor) Credit(asset, account Address, amount Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := balanceKey{asset, account}
	m.balances[k] = m.balances[k].Add(amount)
}

func (m *MemoryExecutor) Balance(asset, account Address) Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{asset, account}]
}

// Events returns the committed events in emission order.
func (m *MemoryExecutor) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ActiveMatches returns the committed matches still accepting stakes,
// ordered by game id.
func (m *MemoryExecutor) ActiveMatches() ([]GameMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []GameMatch
	for s, raw := range m.state {
		k, ok := ParseKey(s)
		if !ok || k.Kind() != KindGameMatch {
			continue
		}
		var gm GameMatch
		if err := json.Unmarshal(raw, &gm); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s, err)
		}
		if gm.IsActive {
			out = append(out, gm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

func cloneState(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBalances(in map[balanceKey]Amount) map[balanceKey]Amount {
	out := make(map[balanceKey]Amount, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type memoryStore struct {
	data map[string][]byte
}

func (s *memoryStore) Has(k Key) (bool, error) {
	_, ok := s.data[k.String()]
	return ok, nil
}

func (s *memoryStore) Get(k Key) ([]byte, bool, error) {
	v, ok := s.data[k.String()]
	return v, ok, nil
}

func (s *memoryStore) Set(k Key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[k.String()] = cp
	return nil
}

func (s *memoryStore) Remove(k Key) error {
	delete(s.data, k.String())
	return nil
}

type memoryLedger struct {
	assets   AssetAllowList
	balances map[balanceKey]Amount
}

func (l *memoryLedger) Transfer(asset, from, to Address, amount Amount) error {
	if err := l.assets.Check(asset); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrNegativeTransfer
	}
	src := l.balances[balanceKey{asset, from}]
	if src.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, src.String(), amount.String())
	}
	l.balances[balanceKey{asset, from}] = src.Sub(amount)
	dst := balanceKey{asset, to}
	l.balances[dst] = l.balances[dst].Add(amount)
	return nil
}

type memorySink struct {
	events []Event
}

func (s *memorySink) Emit(e Event) error {
	s.events = append(s.events, e)
	return nil
}
