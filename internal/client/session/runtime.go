package session

import "sync"

// Runtime owns the token store of one client process. The store is built
// on first use and never twice, so only one store ever refreshes and syncs
// the session.
type Runtime struct {
	once  sync.Once
	build func() *Store
	store *Store
}

func NewRuntime(build func() *Store) *Runtime {
	return &Runtime{build: build}
}

// Store returns the runtime's token store, building it on first call.
func (r *Runtime) Store() *Store {
	r.once.Do(func() { r.store = r.build() })
	return r.store
}
