package handlers

import (
	"context"
	"sync"
)

// SessionGroup tracks live websocket sessions. http.Server.Shutdown does not
// see hijacked connections, so the server waits on this group before closing
// the database under them.
type SessionGroup struct {
	wg sync.WaitGroup
}

func NewSessionGroup() *SessionGroup {
	return &SessionGroup{}
}

func (g *SessionGroup) track() func() {
	g.wg.Add(1)
	return g.wg.Done
}

// Wait blocks until every tracked session has returned or ctx is done.
func (g *SessionGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
