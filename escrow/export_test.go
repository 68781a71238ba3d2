package escrow

// allowAll authorizes every identity.
type allowAll struct{}

func (allowAll) RequireAuth(Address) error { return nil }

func withAuthorizer(f func(caller Address) Authorizer) MemoryOption {
	return func(m *MemoryExecutor) { m.authFor = f }
}
