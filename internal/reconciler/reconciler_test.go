package reconciler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/internal/gateway"
	"github.com/bloomhouse/cartsync/internal/localstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records every call and answers with a fixed remote cart.
// Operations listed in block wait until their channel is closed.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	pushed  []cart.Snapshot
	remote  *gateway.RemoteCart
	errs    map[string]error
	block   map[string]chan struct{}
	entered chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		errs:    map[string]error{},
		block:   map[string]chan struct{}{},
		entered: make(chan string, 64),
	}
}

func (f *fakeGateway) call(ctx context.Context, op string) (*gateway.RemoteCart, error) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	err := f.errs[op]
	rc := f.remote
	block := f.block[op]
	f.mu.Unlock()

	select {
	case f.entered <- op:
	default:
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (f *fakeGateway) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) FetchCart(ctx context.Context) (*gateway.RemoteCart, error) {
	return f.call(ctx, "fetch")
}

func (f *fakeGateway) AddItem(ctx context.Context, _ string, _ int, _ gateway.AddOptions) (*gateway.RemoteCart, error) {
	return f.call(ctx, "add")
}

func (f *fakeGateway) UpdateItem(ctx context.Context, _ string, _ int) (*gateway.RemoteCart, error) {
	return f.call(ctx, "update")
}

func (f *fakeGateway) RemoveItem(ctx context.Context, _ string) (*gateway.RemoteCart, error) {
	return f.call(ctx, "remove")
}

func (f *fakeGateway) RemoveByProduct(ctx context.Context, _, _ string) (*gateway.RemoteCart, error) {
	return f.call(ctx, "remove-product")
}

func (f *fakeGateway) ClearCart(ctx context.Context) (*gateway.RemoteCart, error) {
	return f.call(ctx, "clear")
}

func (f *fakeGateway) SyncCart(ctx context.Context, items cart.Snapshot) (*gateway.RemoteCart, error) {
	f.mu.Lock()
	f.pushed = append(f.pushed, items.Clone())
	f.mu.Unlock()
	return f.call(ctx, "sync")
}

type staticCredentials struct {
	token  string
	userID string
}

func (s staticCredentials) Token(context.Context) string  { return s.token }
func (s staticCredentials) UserID(context.Context) string { return s.userID }

var signedOut = staticCredentials{}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type harness struct {
	r       *Reconciler
	storage *localstore.MemoryStorage
	store   *localstore.CartStore
	bus     *events.Bus
	gw      *fakeGateway
}

func newHarness(t *testing.T, creds CredentialSource, opts Options) *harness {
	t.Helper()
	h := &harness{
		storage: localstore.NewMemoryStorage(),
		bus:     events.NewBus(),
		gw:      newFakeGateway(),
	}
	h.store = localstore.NewCartStore(h.storage)
	h.r = New(Deps{Store: h.store, Gateway: h.gw, Credentials: creds, Bus: h.bus}, opts)
	h.r.Start(context.Background())
	t.Cleanup(h.r.Close)
	return h
}

func roses() cart.Product {
	return cart.Product{ID: "p1", NameEn: "Roses", NameAr: "ورد", BasePrice: 12, FinalPrice: 10, Image: "roses.jpg"}
}

func remoteCart(lines ...gateway.RemoteItem) *gateway.RemoteCart {
	return &gateway.RemoteCart{Items: lines}
}

func waitEntered(t *testing.T, gw *fakeGateway, op string) {
	t.Helper()
	for {
		select {
		case got := <-gw.entered:
			if got == op {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("gateway %q was never called", op)
		}
	}
}

func TestAddLine_DedupSumsQuantities(t *testing.T) {
	h := newHarness(t, signedOut, Options{})
	ctx := context.Background()
	opts := cart.Options{SelectedVariant: "Red", Customization: "Gold ribbon"}

	for _, qty := range []int{1, 2, 4} {
		h.r.AddLine(ctx, roses(), qty, opts)
	}

	snap := h.r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 7, snap[0].Quantity)
	assert.Equal(t, "Gold ribbon", snap[0].Customization)

	h.r.AddLine(ctx, roses(), 1, cart.Options{SelectedVariant: "Red", Customization: "Silver ribbon"})
	assert.Len(t, h.r.Snapshot(), 2)
	assert.Empty(t, h.gw.Calls())
}

func TestAddLine_QuantityBelowOneAddsOne(t *testing.T) {
	h := newHarness(t, signedOut, Options{})

	h.r.AddLine(context.Background(), roses(), 0, cart.Options{})

	assert.Equal(t, 1, h.r.CartCount())
}

func TestSetQuantity_BelowOneRemovesLine(t *testing.T) {
	for _, n := range []int{0, -1, -20} {
		h := newHarness(t, signedOut, Options{})
		ctx := context.Background()
		h.r.AddLine(ctx, roses(), 3, cart.Options{SelectedVariant: "Red"})
		h.r.AddLine(ctx, roses(), 1, cart.Options{SelectedVariant: "Blue"})

		h.r.SetQuantity(ctx, "p1", "Red", n)

		snap := h.r.Snapshot()
		assert.Equal(t, -1, snap.FindVariant("p1", "Red"), "n=%d", n)
		assert.Len(t, snap, 1)
	}
}

func TestIncrementDecrement(t *testing.T) {
	h := newHarness(t, signedOut, Options{})
	ctx := context.Background()
	h.r.AddLine(ctx, roses(), 1, cart.Options{})

	h.r.Increment(ctx, "p1", "")
	h.r.Increment(ctx, "p1", "")
	assert.Equal(t, 3, h.r.QuantityOf("p1"))

	h.r.Decrement(ctx, "p1", "")
	assert.Equal(t, 2, h.r.QuantityOf("p1"))

	h.r.Decrement(ctx, "p1", "")
	h.r.Decrement(ctx, "p1", "")
	assert.False(t, h.r.Contains("p1"))

	// absent line is a no-op
	h.r.Increment(ctx, "nope", "")
	assert.Equal(t, 0, h.r.CartCount())
}

func TestRemoveLine_AbsentIsNoop(t *testing.T) {
	h := newHarness(t, signedOut, Options{})
	ctx := context.Background()
	h.r.AddLine(ctx, roses(), 1, cart.Options{})

	h.r.RemoveLine(ctx, "p1", "Red", "")
	assert.Len(t, h.r.Snapshot(), 1)

	h.r.RemoveLine(ctx, "p1", "", "")
	assert.Empty(t, h.r.Snapshot())
}

func TestMutations_PersistAcrossRestart(t *testing.T) {
	h := newHarness(t, signedOut, Options{})
	ctx := context.Background()
	h.r.AddLine(ctx, roses(), 2, cart.Options{SelectedVariant: "Red", CardMessage: "For you", Colors: []string{"red"}})
	h.r.AddLine(ctx, cart.Product{ID: "p2", NameEn: "Tulips", FinalPrice: 30}, 1, cart.Options{})
	want := h.r.Snapshot()

	restarted := New(Deps{Store: h.store, Gateway: h.gw, Credentials: signedOut, Bus: events.NewBus()}, Options{})
	restarted.Start(ctx)
	defer restarted.Close()

	assert.Equal(t, want, restarted.Snapshot())
}

func TestForceSync_SecondCallWhileInFlightIsDropped(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	// drain the sync triggered by Start
	waitEntered(t, h.gw, "fetch")
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	release := make(chan struct{})
	h.gw.mu.Lock()
	h.gw.block["fetch"] = release
	h.gw.mu.Unlock()
	before := len(h.gw.Calls())

	done := make(chan error, 1)
	go func() { done <- h.r.ForceSync(context.Background()) }()
	waitEntered(t, h.gw, "fetch")
	require.True(t, h.r.Syncing())

	assert.NoError(t, h.r.ForceSync(context.Background()))
	assert.Len(t, h.gw.Calls(), before+1)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, h.gw.Calls(), before+1)
	assert.False(t, h.r.Syncing())
}

func TestTotals(t *testing.T) {
	h := newHarness(t, signedOut, Options{})
	ctx := context.Background()
	h.r.AddLine(ctx, roses(), 2, cart.Options{})
	// sale price above the base price must not produce negative savings
	h.r.AddLine(ctx, cart.Product{ID: "odd", BasePrice: 5, FinalPrice: 9}, 1, cart.Options{})

	assert.Equal(t, h.r.CartTotal(), h.r.CartTotal())
	assert.Equal(t, 29.0, h.r.CartTotal())
	assert.Equal(t, 29.0, h.r.OriginalTotal())
	assert.Equal(t, 0.0, h.r.TotalSavings())

	h.r.RemoveLine(ctx, "odd", "", "")
	assert.Equal(t, 4.0, h.r.TotalSavings())
	assert.GreaterOrEqual(t, h.r.TotalSavings(), 0.0)
}

func TestScenario_EmptyCartUnauthenticatedAdd(t *testing.T) {
	h := newHarness(t, signedOut, Options{})

	h.r.AddLine(context.Background(), cart.Product{ID: "p1", FinalPrice: 10}, 2, cart.Options{})

	snap := h.r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "p1", snap[0].ProductID)
	assert.Equal(t, 2, snap[0].Quantity)
	assert.Equal(t, 20.0, h.r.CartTotal())
	assert.Equal(t, 2, h.r.CartCount())
}

func TestScenario_SameProductTwoVariants(t *testing.T) {
	h := newHarness(t, signedOut, Options{})
	ctx := context.Background()

	h.r.AddLine(ctx, cart.Product{ID: "p1"}, 1, cart.Options{SelectedVariant: "Red"})
	h.r.AddLine(ctx, cart.Product{ID: "p1"}, 1, cart.Options{SelectedVariant: "Blue"})

	snap := h.r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Red", snap[0].SelectedVariant)
	assert.Equal(t, "Blue", snap[1].SelectedVariant)
	assert.Equal(t, 2, h.r.QuantityOf("p1"))
}

func TestScenario_LoginTriggersSync(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	creds := localstore.NewCredentials(localstore.NewMemoryStorage(), localstore.NewMemoryStorage(), bus)
	store := localstore.NewCartStore(localstore.NewMemoryStorage())
	gw := newFakeGateway()
	gw.remote = remoteCart(gateway.RemoteItem{
		ID:        "c-9",
		ProductID: "p1",
		Quantity:  3,
		Price:     10,
		Product:   &cart.RawProduct{ID: "p1", NameEn: "Roses"},
	})

	r := New(Deps{Store: store, Gateway: gw, Credentials: creds, Bus: bus}, Options{})
	r.Start(ctx)
	defer r.Close()

	r.AddLine(ctx, roses(), 1, cart.Options{})
	require.Empty(t, gw.Calls())

	require.NoError(t, creds.Set(ctx, signedToken(t, "u-42"), true))
	bus.Publish(events.AuthChanged{Type: events.AuthLogin})

	require.Eventually(t, func() bool { return r.LastSyncedUser() == "u-42" }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"sync", "fetch"}, gw.Calls())
	gw.mu.Lock()
	require.Len(t, gw.pushed, 1)
	assert.Equal(t, "p1", gw.pushed[0][0].ProductID)
	assert.Equal(t, 1, gw.pushed[0][0].Quantity)
	gw.mu.Unlock()

	assert.Equal(t, gateway.Transform(gw.remote), r.Snapshot())
	assert.Equal(t, gateway.Transform(gw.remote), store.Load(ctx))
}

func TestSync_SkipsAlreadySyncedUserUnlessForced(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	require.Eventually(t, func() bool { return h.r.LastSyncedUser() == "u1" }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	h.bus.Publish(events.AuthChanged{Type: events.AuthLogin})
	h.r.Close()
	assert.Equal(t, []string{"fetch"}, h.gw.Calls())

	require.NoError(t, h.r.ForceSync(context.Background()))
	assert.Equal(t, []string{"fetch", "fetch"}, h.gw.Calls())
}

func TestLogoutResetsSession(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	require.Eventually(t, func() bool { return h.r.LastSyncedUser() == "u1" }, 2*time.Second, 5*time.Millisecond)

	h.bus.Publish(events.AuthChanged{Type: events.AuthLogout})

	assert.Empty(t, h.r.LastSyncedUser())
}

func TestForceSync_SignedOut(t *testing.T) {
	h := newHarness(t, signedOut, Options{})

	err := h.r.ForceSync(context.Background())

	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
	assert.Empty(t, h.gw.Calls())
}

func TestForceSync_FailureKeepsLocalCart(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	waitEntered(t, h.gw, "fetch")
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	h.gw.mu.Lock()
	h.gw.errs["add"] = gateway.ErrNetwork
	h.gw.errs["sync"] = gateway.ErrNetwork
	h.gw.mu.Unlock()
	h.r.AddLine(context.Background(), roses(), 2, cart.Options{})

	err := h.r.ForceSync(context.Background())

	assert.ErrorIs(t, err, gateway.ErrNetwork)
	assert.Equal(t, 2, h.r.CartCount())
	assert.NotContains(t, h.gw.Calls()[2:], "fetch")
}

func TestScenario_RemoteFailureDuringAdd(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	waitEntered(t, h.gw, "fetch")
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	h.gw.mu.Lock()
	h.gw.errs["add"] = &gateway.APIError{StatusCode: 500, Message: "boom"}
	h.gw.mu.Unlock()

	assert.NotPanics(t, func() {
		h.r.AddLine(context.Background(), roses(), 1, cart.Options{SelectedVariant: "Red"})
	})

	snap := h.r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "p1", snap[0].ProductID)
	assert.False(t, snap[0].Synced())
	assert.Contains(t, h.gw.Calls(), "add")
}

func TestScenario_ClearIsImmediate(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	waitEntered(t, h.gw, "fetch")
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	h.r.AddLine(ctx, roses(), 2, cart.Options{})

	release := make(chan struct{})
	h.gw.mu.Lock()
	h.gw.block["clear"] = release
	h.gw.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.r.Clear(ctx)
		close(done)
	}()
	waitEntered(t, h.gw, "clear")

	assert.Empty(t, h.r.Snapshot())
	_, err := h.storage.Get(ctx, localstore.CartKey)
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	close(release)
	<-done
}

func TestRemoteResponseReplacesSnapshot(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	waitEntered(t, h.gw, "fetch")
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	h.gw.mu.Lock()
	h.gw.remote = remoteCart(gateway.RemoteItem{ID: "c-1", ProductID: "p1", Quantity: 1, Price: 10})
	h.gw.mu.Unlock()

	h.r.AddLine(context.Background(), roses(), 1, cart.Options{})

	snap := h.r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "c-1", snap[0].CartItemID)

	// a known line id routes removal by id
	h.r.RemoveLine(context.Background(), "p1", "", "")
	assert.Equal(t, "remove", h.gw.Calls()[len(h.gw.Calls())-1])
}

func TestRemoveUnsyncedLineUsesProductRoute(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	waitEntered(t, h.gw, "fetch")
	require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

	h.r.AddLine(context.Background(), roses(), 1, cart.Options{})
	h.r.SetQuantity(context.Background(), "p1", "", 4)
	h.r.RemoveLine(context.Background(), "p1", "", "")

	calls := h.gw.Calls()
	assert.Equal(t, []string{"fetch", "add", "remove-product"}, calls)
}

func TestStaleRemoteResponse(t *testing.T) {
	tests := []struct {
		name         string
		allowStale   bool
		wantCartItem string
		wantQuantity int
	}{
		{name: "Discarded by default", allowStale: false, wantCartItem: "", wantQuantity: 5},
		{name: "Applied when allowed", allowStale: true, wantCartItem: "c-1", wantQuantity: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{AllowStaleRemote: tt.allowStale})
			waitEntered(t, h.gw, "fetch")
			require.Eventually(t, func() bool { return !h.r.Syncing() }, time.Second, 5*time.Millisecond)

			release := make(chan struct{})
			h.gw.mu.Lock()
			h.gw.remote = remoteCart(gateway.RemoteItem{ID: "c-1", ProductID: "p1", Quantity: 1, Price: 10})
			h.gw.block["add"] = release
			h.gw.mu.Unlock()

			ctx := context.Background()
			done := make(chan struct{})
			go func() {
				h.r.AddLine(ctx, roses(), 1, cart.Options{})
				close(done)
			}()
			waitEntered(t, h.gw, "add")

			// newer local mutation while the add is in flight; the line has
			// no server id so no remote call is made
			h.r.SetQuantity(ctx, "p1", "", 5)

			close(release)
			<-done

			snap := h.r.Snapshot()
			require.Len(t, snap, 1)
			assert.Equal(t, tt.wantCartItem, snap[0].CartItemID)
			assert.Equal(t, tt.wantQuantity, snap[0].Quantity)
		})
	}
}

func TestNotificationAutoCloses(t *testing.T) {
	h := newHarness(t, signedOut, Options{NotificationDelay: 20 * time.Millisecond})
	assert.False(t, h.r.NotificationOpen())

	h.r.AddLine(context.Background(), roses(), 1, cart.Options{})
	assert.True(t, h.r.NotificationOpen())

	assert.Eventually(t, func() bool { return !h.r.NotificationOpen() }, time.Second, 5*time.Millisecond)

	h.r.AddLine(context.Background(), roses(), 1, cart.Options{})
	h.r.CloseNotification()
	assert.False(t, h.r.NotificationOpen())
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	h := newHarness(t, signedOut, Options{})

	var (
		mu   sync.Mutex
		seen []int
	)
	unsubscribe := h.r.Subscribe(func(s cart.Snapshot) {
		mu.Lock()
		seen = append(seen, s.Count())
		mu.Unlock()
	})

	ctx := context.Background()
	h.r.AddLine(ctx, roses(), 2, cart.Options{})
	h.r.Increment(ctx, "p1", "")
	unsubscribe()
	h.r.Clear(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3}, seen)
}

func TestStart_LoadsStoredCart(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	store := localstore.NewCartStore(storage)
	store.Save(ctx, cart.Snapshot{{ProductID: "p1", Price: 10, Quantity: 2}})

	r := New(Deps{Store: store, Gateway: newFakeGateway(), Credentials: signedOut}, Options{})
	r.Start(ctx)
	defer r.Close()

	assert.Equal(t, 2, r.CartCount())
	assert.Equal(t, 20.0, r.CartTotal())
}

func TestClose_CancelsBackgroundSync(t *testing.T) {
	bus := events.NewBus()
	gw := newFakeGateway()
	gw.block["fetch"] = make(chan struct{})
	r := New(Deps{
		Store:       localstore.NewCartStore(localstore.NewMemoryStorage()),
		Gateway:     gw,
		Credentials: staticCredentials{token: "tok", userID: "u1"},
		Bus:         bus,
	}, Options{})
	r.Start(context.Background())
	waitEntered(t, gw, "fetch")

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Empty(t, r.LastSyncedUser())
}

func TestDrain_WaitsForBackgroundSync(t *testing.T) {
	gw := newFakeGateway()
	gw.block["fetch"] = make(chan struct{})
	r := New(Deps{
		Store:       localstore.NewCartStore(localstore.NewMemoryStorage()),
		Gateway:     gw,
		Credentials: staticCredentials{token: "tok", userID: "u1"},
	}, Options{})
	r.Start(context.Background())
	defer r.Close()
	waitEntered(t, gw, "fetch")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(ctx), context.DeadlineExceeded)

	close(gw.block["fetch"])
	require.NoError(t, r.Drain(context.Background()))
	assert.Equal(t, "u1", r.LastSyncedUser())
}

func TestRefresh_AppliesPushedCart(t *testing.T) {
	h := newHarness(t, staticCredentials{token: "tok", userID: "u1"}, Options{})
	require.NoError(t, h.r.Drain(context.Background()))

	pushed := remoteCart(gateway.RemoteItem{
		ID:        "c-7",
		ProductID: "p1",
		Quantity:  4,
		Price:     10,
		Product:   &cart.RawProduct{ID: "p1", NameEn: "Roses"},
	})
	h.r.Refresh(context.Background(), pushed)

	assert.Equal(t, 4, h.r.CartCount())
	assert.Equal(t, gateway.Transform(pushed), h.store.Load(context.Background()))

	out := newHarness(t, signedOut, Options{})
	out.r.Refresh(context.Background(), pushed)
	assert.Zero(t, out.r.CartCount())
}

func TestSync_RerunsWhenCartChangesMidSync(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewCartStore(localstore.NewMemoryStorage())
	store.Save(ctx, cart.Snapshot{cart.NewLineItem(roses(), 1, cart.Options{})})

	release := make(chan struct{})
	gw := newFakeGateway()
	gw.block["fetch"] = release
	gw.remote = remoteCart(
		gateway.RemoteItem{ID: "c-1", ProductID: "p1", Quantity: 2, Price: 10},
		gateway.RemoteItem{ID: "c-2", ProductID: "other-device", Quantity: 1, Price: 7},
	)

	r := New(Deps{Store: store, Gateway: gw, Credentials: staticCredentials{token: "tok", userID: "u-1"}}, Options{})
	r.Start(ctx)
	defer r.Close()
	waitEntered(t, gw, "fetch")

	// the guest line has no server id yet, so this stays local
	r.Increment(ctx, "p1", "")
	assert.Empty(t, r.LastSyncedUser())

	close(release)
	require.NoError(t, r.Drain(ctx))

	assert.Equal(t, []string{"sync", "fetch", "sync", "fetch"}, gw.Calls())
	gw.mu.Lock()
	require.Len(t, gw.pushed, 2)
	assert.Equal(t, 2, gw.pushed[1][0].Quantity, "the rerun pushes the newer quantity")
	gw.mu.Unlock()

	assert.Equal(t, "u-1", r.LastSyncedUser())
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap.Contains("other-device"))
	assert.Equal(t, "c-1", snap[0].CartItemID)
	assert.Equal(t, gateway.Transform(gw.remote), store.Load(ctx))
}

func TestSync_LeavesSessionUnsyncedWhenCartNeverSettles(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewCartStore(localstore.NewMemoryStorage())
	store.Save(ctx, cart.Snapshot{cart.NewLineItem(roses(), 1, cart.Options{})})

	gw := newFakeGateway()
	gw.block["fetch"] = make(chan struct{})
	gw.remote = remoteCart(gateway.RemoteItem{ID: "c-1", ProductID: "p1", Quantity: 1, Price: 10})

	r := New(Deps{Store: store, Gateway: gw, Credentials: staticCredentials{token: "tok", userID: "u-1"}}, Options{})
	r.Start(ctx)
	defer r.Close()

	for i := 0; i < maxSyncAttempts; i++ {
		waitEntered(t, gw, "fetch")
		r.Increment(ctx, "p1", "")
		gw.mu.Lock()
		block := gw.block["fetch"]
		if i < maxSyncAttempts-1 {
			gw.block["fetch"] = make(chan struct{})
		} else {
			delete(gw.block, "fetch")
		}
		gw.mu.Unlock()
		close(block)
	}
	require.NoError(t, r.Drain(ctx))

	assert.Empty(t, r.LastSyncedUser(), "the next auth signal syncs again")
	assert.Equal(t, 1+maxSyncAttempts, r.CartCount())
}

func TestRemoteReplyWithoutCartKeepsLocalCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	creds := staticCredentials{token: "tok", userID: "u1"}
	client, err := gateway.NewClient(gateway.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, creds)
	require.NoError(t, err)

	ctx := context.Background()
	store := localstore.NewCartStore(localstore.NewMemoryStorage())
	r := New(Deps{Store: store, Gateway: client, Credentials: creds}, Options{})
	r.Start(ctx)
	defer r.Close()
	require.NoError(t, r.Drain(ctx))
	assert.Empty(t, r.LastSyncedUser())

	r.AddLine(ctx, roses(), 2, cart.Options{})
	r.Increment(ctx, "p1", "")

	assert.Equal(t, 3, r.CartCount())
	assert.Equal(t, 3, store.Load(ctx).Count())
	assert.ErrorIs(t, r.ForceSync(ctx), gateway.ErrMalformedResponse)
	assert.Equal(t, 3, r.CartCount())
}
