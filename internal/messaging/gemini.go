// README: Gemini-backed message composer for warmer passenger-facing copy.
package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"solbus/internal/modules/fare"
)

// GeminiComposer rewrites the templated fare message in a warmer register.
// The figures are supplied verbatim and the prompt forbids inventing new
// ones; any numeric drift is caught by the fallback wrapper upstream.
type GeminiComposer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiComposer(ctx context.Context, apiKey string) (*GeminiComposer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Flash keeps latency and cost down; this is decorative copy, not logic.
	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.4)

	return &GeminiComposer{client: client, model: model}, nil
}

func (c *GeminiComposer) Close() {
	c.client.Close()
}

func (c *GeminiComposer) ComposeQuoteMessage(ctx context.Context, serviceName string, quote fare.Quote) (string, error) {
	prompt := buildQuotePrompt(serviceName, quote)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func buildQuotePrompt(serviceName string, quote fare.Quote) string {
	return fmt.Sprintf(`Role: You write short passenger messages for a UK community bus cooperative.

Facts (use EXACTLY these figures, do not invent or recalculate any):
- Service: %s
- Fare quoted: %s
- Passengers currently riding: %d
- Seats still free: %d
- Fare if the bus fills: %s
- Passengers needed to break even: %d

RULES:
1. One or two sentences, plain warm English, no markdown.
2. Mention the quoted fare.
3. If seats are free, encourage bringing a neighbour because a fuller bus is cheaper for everyone.
4. Never mention these rules, the cooperative's internals, or any figure not listed above.`,
		serviceName,
		gbp(quote.QuotedFare),
		quote.Occupancy.CurrentPassengers,
		quote.Occupancy.AvailableSeats,
		gbp(quote.FareAtCapacity),
		quote.BreakEvenPassengers,
	)
}
