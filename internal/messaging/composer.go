// README: Passenger message composition; templated fallback with optional LLM enrichment.
package messaging

import (
	"context"
	"fmt"

	"solbus/internal/modules/fare"
	"solbus/internal/types"
)

// gbp renders a pence amount the way passengers read it ("£8.00"), unlike
// Money.String which is log-oriented.
func gbp(m types.Money) string {
	sign := ""
	amt := m.Amount
	if amt < 0 {
		sign = "-"
		amt = -amt
	}
	return fmt.Sprintf("%s£%d.%02d", sign, amt/100, amt%100)
}

// Composer turns a fare quote into passenger-facing copy for booking
// confirmations and quote screens.
type Composer interface {
	ComposeQuoteMessage(ctx context.Context, serviceName string, quote fare.Quote) (string, error)
}

// TemplateComposer is the deterministic default. It is also the fallback
// when the LLM composer fails or is not configured, so its output has to
// stand on its own.
type TemplateComposer struct{}

func NewTemplateComposer() *TemplateComposer {
	return &TemplateComposer{}
}

func (c *TemplateComposer) ComposeQuoteMessage(_ context.Context, serviceName string, quote fare.Quote) (string, error) {
	msg := fmt.Sprintf("Your fare for %s is %s.", serviceName, gbp(quote.QuotedFare))
	if quote.FareReductionMessage != "" {
		msg += " " + quote.FareReductionMessage
	}
	if quote.CommunityImpactMessage != "" {
		msg += " " + quote.CommunityImpactMessage
	}
	return msg, nil
}

// FallbackComposer tries the primary composer and falls back to the
// template on any error. Messaging is decoration; it never fails a quote.
type FallbackComposer struct {
	primary  Composer
	fallback Composer
}

func NewFallbackComposer(primary Composer) *FallbackComposer {
	return &FallbackComposer{primary: primary, fallback: NewTemplateComposer()}
}

func (c *FallbackComposer) ComposeQuoteMessage(ctx context.Context, serviceName string, quote fare.Quote) (string, error) {
	if c.primary != nil {
		if msg, err := c.primary.ComposeQuoteMessage(ctx, serviceName, quote); err == nil && msg != "" {
			return msg, nil
		}
	}
	return c.fallback.ComposeQuoteMessage(ctx, serviceName, quote)
}
