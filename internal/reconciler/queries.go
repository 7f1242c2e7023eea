package reconciler

import (
	"time"

	"github.com/bloomhouse/cartsync/internal/cart"
)

// Snapshot returns a copy of the current cart.
func (r *Reconciler) Snapshot() cart.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Clone()
}

func (r *Reconciler) CartTotal() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Total()
}

func (r *Reconciler) OriginalTotal() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.OriginalTotal()
}

// TotalSavings is never negative.
func (r *Reconciler) TotalSavings() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Savings()
}

// CartCount is the sum of quantities, not the number of lines.
func (r *Reconciler) CartCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Count()
}

func (r *Reconciler) Contains(productID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Contains(productID)
}

// QuantityOf sums the quantity of every line of productID.
func (r *Reconciler) QuantityOf(productID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.QuantityOf(productID)
}

// NotificationOpen reports whether the "cart updated" notice is showing.
func (r *Reconciler) NotificationOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifyOpen
}

func (r *Reconciler) CloseNotification() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifyOpen = false
	r.notifyGen++
	if r.notifyTimer != nil {
		r.notifyTimer.Stop()
		r.notifyTimer = nil
	}
}

func (r *Reconciler) openNotification() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.notifyOpen = true
	r.notifyGen++
	gen := r.notifyGen
	if r.notifyTimer != nil {
		r.notifyTimer.Stop()
	}
	r.notifyTimer = time.AfterFunc(r.opts.NotificationDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.notifyGen == gen {
			r.notifyOpen = false
		}
	})
}
