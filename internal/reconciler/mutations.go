package reconciler

import (
	"context"

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/internal/gateway"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

// AddLine adds quantity units of p. A line with the same product, variant
// and customization absorbs the quantity; otherwise a new line is appended.
// Quantities below 1 are treated as 1. The change is visible before any
// remote call is made.
func (r *Reconciler) AddLine(ctx context.Context, p cart.Product, quantity int, opts cart.Options) {
	if p.ID == "" {
		logger.Warn("Ignoring add for product without id", nil)
		return
	}
	if quantity < 1 {
		quantity = 1
	}

	key := cart.Key{ProductID: p.ID, SelectedVariant: opts.SelectedVariant, Customization: opts.Customization}

	r.mu.Lock()
	if idx := r.snapshot.Find(key); idx >= 0 {
		r.snapshot[idx].Quantity += quantity
	} else {
		r.snapshot = append(r.snapshot, cart.NewLineItem(p, quantity, opts))
	}
	r.version++
	version := r.version
	published := r.commit(ctx)
	r.mu.Unlock()

	r.publish(published)
	r.openNotification()

	if !r.authenticated(ctx) {
		return
	}
	rc, err := r.gateway.AddItem(ctx, p.ID, quantity, gateway.AddOptions{
		SelectedVariant: opts.SelectedVariant,
		DeliveryDate:    opts.DeliveryDate,
		DeliveryTime:    opts.DeliveryTime,
		CardMessage:     opts.CardMessage,
		SenderInfo:      opts.SenderInfo,
	})
	r.applyRemote(ctx, "add", rc, err, version)
}

// RemoveLine deletes the line matching productID, variant and customization.
// Removing an absent line is a no-op.
func (r *Reconciler) RemoveLine(ctx context.Context, productID, variant, customization string) {
	r.mu.Lock()
	idx := r.snapshot.Find(cart.Key{ProductID: productID, SelectedVariant: variant, Customization: customization})
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	removed := r.removeAt(idx)
	r.version++
	version := r.version
	published := r.commit(ctx)
	r.mu.Unlock()

	r.publish(published)
	r.mirrorRemoval(ctx, removed, version)
}

// SetQuantity sets the quantity of the line matching productID and variant.
// A quantity below 1 removes the line. The server line is only updated when
// its id is known.
func (r *Reconciler) SetQuantity(ctx context.Context, productID, variant string, quantity int) {
	r.mu.Lock()
	idx := r.snapshot.FindVariant(productID, variant)
	if idx < 0 {
		r.mu.Unlock()
		return
	}

	if quantity < 1 {
		removed := r.removeAt(idx)
		r.version++
		version := r.version
		published := r.commit(ctx)
		r.mu.Unlock()

		r.publish(published)
		r.mirrorRemoval(ctx, removed, version)
		return
	}

	r.snapshot[idx].Quantity = quantity
	cartItemID := r.snapshot[idx].CartItemID
	r.version++
	version := r.version
	published := r.commit(ctx)
	r.mu.Unlock()

	r.publish(published)

	if cartItemID == "" || !r.authenticated(ctx) {
		return
	}
	rc, err := r.gateway.UpdateItem(ctx, cartItemID, quantity)
	r.applyRemote(ctx, "update", rc, err, version)
}

// Increment raises the matching line by one.
func (r *Reconciler) Increment(ctx context.Context, productID, variant string) {
	if current, ok := r.lineQuantity(productID, variant); ok {
		r.SetQuantity(ctx, productID, variant, current+1)
	}
}

// Decrement lowers the matching line by one, removing it at zero.
func (r *Reconciler) Decrement(ctx context.Context, productID, variant string) {
	if current, ok := r.lineQuantity(productID, variant); ok {
		r.SetQuantity(ctx, productID, variant, current-1)
	}
}

// Clear empties the cart and erases it from storage. When signed in the
// server cart is cleared as well.
func (r *Reconciler) Clear(ctx context.Context) {
	r.mu.Lock()
	r.snapshot = cart.Snapshot{}
	r.version++
	version := r.version
	r.store.Clear(ctx)
	r.mu.Unlock()

	r.publish(cart.Snapshot{})

	if !r.authenticated(ctx) {
		return
	}
	rc, err := r.gateway.ClearCart(ctx)
	r.applyRemote(ctx, "clear", rc, err, version)
}

func (r *Reconciler) lineQuantity(productID, variant string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.snapshot.FindVariant(productID, variant)
	if idx < 0 {
		return 0, false
	}
	return r.snapshot[idx].Quantity, true
}

// removeAt drops the line at idx and returns it. Callers hold r.mu.
func (r *Reconciler) removeAt(idx int) cart.LineItem {
	removed := r.snapshot[idx]
	next := make(cart.Snapshot, 0, len(r.snapshot)-1)
	next = append(next, r.snapshot[:idx]...)
	r.snapshot = append(next, r.snapshot[idx+1:]...)
	return removed
}

func (r *Reconciler) mirrorRemoval(ctx context.Context, removed cart.LineItem, version uint64) {
	if !r.authenticated(ctx) {
		return
	}
	var (
		rc  *gateway.RemoteCart
		err error
	)
	if removed.Synced() {
		rc, err = r.gateway.RemoveItem(ctx, removed.CartItemID)
	} else {
		rc, err = r.gateway.RemoveByProduct(ctx, removed.ProductID, removed.SelectedVariant)
	}
	r.applyRemote(ctx, "remove", rc, err, version)
}
