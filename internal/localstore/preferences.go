package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

const (
	LocaleKey               = "locale"
	DeliveryInstructionsKey = "deliveryInstructions"

	LocaleEnglish = "en"
	LocaleArabic  = "ar"

	// MaxDeliveryInstructions is counted in runes.
	MaxDeliveryInstructions = 80
)

var ErrUnsupportedLocale = errors.New("unsupported locale")

// Preferences holds UI state that lives next to the cart.
type Preferences struct {
	storage Storage
	bus     *events.Bus
}

func NewPreferences(storage Storage, bus *events.Bus) *Preferences {
	return &Preferences{storage: storage, bus: bus}
}

// Locale returns the stored display locale, defaulting to English.
func (p *Preferences) Locale(ctx context.Context) string {
	v, err := p.storage.Get(ctx, LocaleKey)
	if err != nil || (v != LocaleEnglish && v != LocaleArabic) {
		return LocaleEnglish
	}
	return v
}

// SetLocale stores locale and, if it changed, publishes LocaleChanged so
// every open view re-renders before SetLocale returns.
func (p *Preferences) SetLocale(ctx context.Context, locale string) error {
	if locale != LocaleEnglish && locale != LocaleArabic {
		return fmt.Errorf("%w: %q", ErrUnsupportedLocale, locale)
	}
	if p.Locale(ctx) == locale {
		return nil
	}
	if err := p.storage.Set(ctx, LocaleKey, locale); err != nil {
		return fmt.Errorf("failed to store locale: %w", err)
	}
	if p.bus != nil {
		p.bus.Publish(events.LocaleChanged{Locale: locale})
	}
	return nil
}

// DeliveryInstructions returns the stored free text, or "".
func (p *Preferences) DeliveryInstructions(ctx context.Context) string {
	v, err := p.storage.Get(ctx, DeliveryInstructionsKey)
	if err != nil {
		return ""
	}
	return v
}

// SetDeliveryInstructions stores text cut to MaxDeliveryInstructions runes
// and returns what was stored.
func (p *Preferences) SetDeliveryInstructions(ctx context.Context, text string) string {
	if r := []rune(text); len(r) > MaxDeliveryInstructions {
		text = string(r[:MaxDeliveryInstructions])
	}
	if err := p.storage.Set(ctx, DeliveryInstructionsKey, text); err != nil {
		logger.Warn("Failed to store delivery instructions", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return text
}
