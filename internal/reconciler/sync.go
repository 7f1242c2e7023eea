package reconciler

import (
	"context"

	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/internal/gateway"
	"github.com/bloomhouse/cartsync/internal/localstore"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

// ForceSync runs the merge protocol now, even for a user that was already
// synced. It returns gateway.ErrNotAuthenticated when signed out and the
// remote error when a step failed; the local cart is kept in both cases. A
// call made while another sync is in flight returns nil without doing
// anything.
func (r *Reconciler) ForceSync(ctx context.Context) error {
	return r.sync(ctx, true)
}

// Syncing reports whether a sync is in flight.
func (r *Reconciler) Syncing() bool {
	return r.syncing.Load()
}

// LastSyncedUser returns the user id of the last successful sync.
func (r *Reconciler) LastSyncedUser() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSyncedUser
}

func (r *Reconciler) onAuthEvent(e events.Event) {
	changed, ok := e.(events.AuthChanged)
	if !ok {
		return
	}
	switch changed.Type {
	case events.AuthLogin:
		r.syncInBackground()
	case events.AuthLogout:
		r.resetSession()
	}
}

func (r *Reconciler) onStorageEvent(e events.Event) {
	changed, ok := e.(events.StorageChanged)
	if !ok || changed.Key != localstore.TokenKey {
		return
	}
	if r.authenticated(r.context()) {
		r.syncInBackground()
		return
	}
	r.resetSession()
}

func (r *Reconciler) resetSession() {
	r.mu.Lock()
	r.lastSyncedUser = ""
	r.mu.Unlock()
	logger.Debug("Cart sync session reset", nil)
}

func (r *Reconciler) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseCtx
}

func (r *Reconciler) syncInBackground() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ctx := r.baseCtx
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_ = r.sync(ctx, false)
	}()
}

// maxSyncAttempts bounds how often the merge protocol is rerun when local
// mutations keep landing while it is in flight.
const maxSyncAttempts = 3

// sync pushes the local cart, pulls the canonical one and replaces the
// snapshot with it. Only one sync runs at a time; extra requests are dropped.
// When the pulled cart is discarded because the local cart changed in the
// meantime, the protocol is rerun so those changes are pushed too.
func (r *Reconciler) sync(ctx context.Context, force bool) error {
	if !r.authenticated(ctx) {
		return gateway.ErrNotAuthenticated
	}
	userID := r.creds.UserID(ctx)

	if !r.syncing.CompareAndSwap(false, true) {
		logger.Debug("Cart sync already in flight, dropping request", map[string]interface{}{
			"forced": force,
		})
		return nil
	}
	defer r.syncing.Store(false)

	r.mu.Lock()
	if !force && userID != "" && r.lastSyncedUser == userID {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	for attempt := 1; ; attempt++ {
		applied, err := r.syncOnce(ctx, userID, force, attempt)
		if err != nil {
			return err
		}
		if applied {
			break
		}
		if attempt == maxSyncAttempts {
			logger.Warn("Cart kept changing during sync, leaving session unsynced", map[string]interface{}{
				"user_id":  userID,
				"attempts": attempt,
			})
			return nil
		}
		logger.Debug("Cart changed during sync, retrying", map[string]interface{}{
			"user_id": userID,
			"attempt": attempt,
		})
	}

	r.mu.Lock()
	r.lastSyncedUser = userID
	r.mu.Unlock()

	logger.Info("Cart synced", map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

// syncOnce runs one push and pull. It reports false when the pulled cart was
// discarded as stale.
func (r *Reconciler) syncOnce(ctx context.Context, userID string, force bool, attempt int) (bool, error) {
	r.mu.Lock()
	version := r.version
	local := r.snapshot.Clone()
	r.mu.Unlock()

	logger.Info("Syncing cart", map[string]interface{}{
		"user_id": userID,
		"lines":   len(local),
		"forced":  force,
		"attempt": attempt,
	})

	if len(local) > 0 {
		if _, err := r.gateway.SyncCart(ctx, local); err != nil {
			r.applyRemote(ctx, "sync", nil, err, version)
			return false, err
		}
	}

	rc, err := r.gateway.FetchCart(ctx)
	if err != nil {
		r.applyRemote(ctx, "fetch", nil, err, version)
		return false, err
	}
	if rc == nil {
		return true, nil
	}
	return r.applyRemote(ctx, "fetch", rc, nil, version), nil
}

// Drain waits for the background syncs started so far, or for ctx. It must
// not race with calls that start new syncs.
func (r *Reconciler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh replaces the cart with rc, a cart the server pushed after a change
// made elsewhere. Signed-out reconcilers ignore it.
func (r *Reconciler) Refresh(ctx context.Context, rc *gateway.RemoteCart) {
	if !r.authenticated(ctx) {
		return
	}
	r.mu.Lock()
	version := r.version
	r.mu.Unlock()
	r.applyRemote(ctx, "push", rc, nil, version)
}
