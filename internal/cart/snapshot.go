package cart

// Snapshot is the ordered collection of lines that makes up the cart at one
// instant. Methods never modify the receiver.
type Snapshot []LineItem

// Clone returns a deep copy. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, item := range s {
		out[i] = item.clone()
	}
	return out
}

// Find returns the index of the line matching key, or -1.
func (s Snapshot) Find(key Key) int {
	for i, item := range s {
		if KeyOf(item) == key {
			return i
		}
	}
	return -1
}

// FindVariant returns the index of the first line for productID and variant,
// regardless of customization, or -1.
func (s Snapshot) FindVariant(productID, variant string) int {
	for i, item := range s {
		if item.ProductID == productID && item.SelectedVariant == variant {
			return i
		}
	}
	return -1
}

// Total is the sum of unit price times quantity.
func (s Snapshot) Total() float64 {
	var total float64
	for _, item := range s {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// OriginalTotal prices every line at its pre-discount price. Lines without
// one count at their unit price.
func (s Snapshot) OriginalTotal() float64 {
	var total float64
	for _, item := range s {
		price := item.OriginalPrice
		if price <= 0 {
			price = item.Price
		}
		total += price * float64(item.Quantity)
	}
	return total
}

// Savings is OriginalTotal - Total, floored at zero.
func (s Snapshot) Savings() float64 {
	savings := s.OriginalTotal() - s.Total()
	if savings < 0 {
		return 0
	}
	return savings
}

// Count is the total number of units.
func (s Snapshot) Count() int {
	var n int
	for _, item := range s {
		n += item.Quantity
	}
	return n
}

// Contains reports whether any line is for productID.
func (s Snapshot) Contains(productID string) bool {
	for _, item := range s {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// QuantityOf sums the quantity of every line for productID.
func (s Snapshot) QuantityOf(productID string) int {
	var n int
	for _, item := range s {
		if item.ProductID == productID {
			n += item.Quantity
		}
	}
	return n
}
