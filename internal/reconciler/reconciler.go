// Package reconciler owns the storefront cart: it applies mutations locally
// first, mirrors them to the remote cart when signed in, and merges the local
// and remote carts when a user signs in.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/internal/gateway"
	"github.com/bloomhouse/cartsync/internal/localstore"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

const DefaultNotificationDelay = 3 * time.Second

// Gateway is the remote cart resource. Every call may fail; failures never
// reach the reconciler's callers.
type Gateway interface {
	FetchCart(ctx context.Context) (*gateway.RemoteCart, error)
	AddItem(ctx context.Context, productID string, quantity int, opts gateway.AddOptions) (*gateway.RemoteCart, error)
	UpdateItem(ctx context.Context, cartItemID string, quantity int) (*gateway.RemoteCart, error)
	RemoveItem(ctx context.Context, cartItemID string) (*gateway.RemoteCart, error)
	RemoveByProduct(ctx context.Context, productID, variant string) (*gateway.RemoteCart, error)
	ClearCart(ctx context.Context) (*gateway.RemoteCart, error)
	SyncCart(ctx context.Context, items cart.Snapshot) (*gateway.RemoteCart, error)
}

// CredentialSource exposes the stored credential.
type CredentialSource interface {
	Token(ctx context.Context) string
	UserID(ctx context.Context) string
}

type Deps struct {
	Store       *localstore.CartStore
	Gateway     Gateway
	Credentials CredentialSource
	Bus         *events.Bus
}

type Options struct {
	// NotificationDelay is how long the "cart updated" notice stays open.
	NotificationDelay time.Duration

	// AllowStaleRemote applies every successful remote response, even when a
	// newer local mutation happened after the request was sent.
	AllowStaleRemote bool
}

// Reconciler is the single owner of the cart snapshot and the sync session.
// Construct one per application and pass it to consumers.
type Reconciler struct {
	store   *localstore.CartStore
	gateway Gateway
	creds   CredentialSource
	bus     *events.Bus
	opts    Options

	mu             sync.Mutex
	snapshot       cart.Snapshot
	version        uint64
	lastSyncedUser string
	notifyOpen     bool
	notifyGen      uint64
	notifyTimer    *time.Timer
	closed         bool

	syncing atomic.Bool

	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe []func()
}

func New(deps Deps, opts Options) *Reconciler {
	if opts.NotificationDelay <= 0 {
		opts.NotificationDelay = DefaultNotificationDelay
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	return &Reconciler{
		store:    deps.Store,
		gateway:  deps.Gateway,
		creds:    deps.Credentials,
		bus:      bus,
		opts:     opts,
		snapshot: cart.Snapshot{},
		baseCtx:  context.Background(),
	}
}

// Start loads the stored cart, subscribes to auth and storage signals and,
// when a credential is already present, starts a background sync.
func (r *Reconciler) Start(ctx context.Context) {
	loaded := r.store.Load(ctx)

	r.mu.Lock()
	r.snapshot = loaded
	r.baseCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Unlock()

	r.unsubscribe = append(r.unsubscribe,
		r.bus.Subscribe(events.TopicAuth, r.onAuthEvent),
		r.bus.Subscribe(events.TopicStorage, r.onStorageEvent),
	)

	logger.Info("Cart reconciler started", map[string]interface{}{
		"lines": len(loaded),
	})
	r.publish(loaded.Clone())

	if r.creds.Token(ctx) != "" {
		r.syncInBackground()
	}
}

// Close stops listening for signals, cancels background syncs and waits for
// them to return.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.notifyTimer != nil {
		r.notifyTimer.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	r.wg.Wait()
}

// Subscribe calls fn with the new snapshot after every change. The snapshot
// must be treated as read-only.
func (r *Reconciler) Subscribe(fn func(cart.Snapshot)) func() {
	return r.bus.Subscribe(events.TopicCart, func(e events.Event) {
		if changed, ok := e.(events.CartChanged); ok {
			fn(changed.Snapshot)
		}
	})
}

func (r *Reconciler) authenticated(ctx context.Context) bool {
	return r.creds.Token(ctx) != ""
}

// commit persists the current snapshot and returns a copy for publishing.
// Callers hold r.mu.
func (r *Reconciler) commit(ctx context.Context) cart.Snapshot {
	r.store.Save(ctx, r.snapshot)
	return r.snapshot.Clone()
}

func (r *Reconciler) publish(snapshot cart.Snapshot) {
	r.bus.Publish(events.CartChanged{Snapshot: snapshot})
}

// applyRemote is the one place a remote outcome is turned into local state.
// On success the snapshot is replaced wholesale by the server cart, unless a
// local mutation newer than version exists and stale responses are not
// allowed. On failure the optimistic local state stands.
func (r *Reconciler) applyRemote(ctx context.Context, op string, rc *gateway.RemoteCart, err error, version uint64) bool {
	if err != nil {
		if errors.Is(err, gateway.ErrNotAuthenticated) {
			logger.Debug("Remote cart skipped: signed out", map[string]interface{}{
				"operation": op,
			})
			return false
		}
		logger.Warn("Remote cart operation failed, keeping local cart", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
		return false
	}
	if rc == nil {
		return false
	}

	next := gateway.Transform(rc)

	r.mu.Lock()
	if !r.opts.AllowStaleRemote && r.version != version {
		current := r.version
		r.mu.Unlock()
		logger.Debug("Discarding stale remote cart", map[string]interface{}{
			"operation":       op,
			"request_version": version,
			"current_version": current,
		})
		return false
	}
	r.snapshot = next
	published := r.commit(ctx)
	r.mu.Unlock()

	r.publish(published)
	return true
}
