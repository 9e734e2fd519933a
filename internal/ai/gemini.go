package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// ErrPriceNotFound is returned when the model saw no current price on the page.
var ErrPriceNotFound = errors.New("no price found in page text")

// Client reads product prices out of raw page text with Gemini. It is the
// fallback when neither structured data nor selectors yield a price.
type Client struct {
	client  *genai.Client
	modelID string
}

func NewClient(ctx context.Context, apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, modelID: modelID}, nil
}

type priceResponse struct {
	Found bool   `json:"found"`
	Price string `json:"price"`
}

var priceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"found": {
			Type:        genai.TypeBoolean,
			Description: "True if the page shows a current purchase price for the main product.",
		},
		"price": {
			Type:        genai.TypeString,
			Description: "The current price of one new unit as a plain number such as 129.99, without currency symbols. Empty when not found.",
		},
	},
	Required: []string{"found", "price"},
}

// ReadPrice asks the model for the current new-condition price on a
// retailer product page.
func (c *Client) ReadPrice(ctx context.Context, retailer models.Retailer, pageText string) (decimal.Decimal, error) {
	prompt := fmt.Sprintf(`This is the visible text of a %s product page.
Report the price a shopper would pay right now for one new unit of the main product.
Ignore list prices, struck-through prices, used or renewed offers, other sellers and accessories.

Page text:
%s`, retailer, pageText)

	resp, err := c.client.Models.GenerateContent(ctx, c.modelID, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   priceSchema,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("gemini generation failed: %w", err)
	}
	return parsePriceResponse(resp.Text())
}

func parsePriceResponse(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")

	var r priceResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &r); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	if !r.Found || r.Price == "" {
		return decimal.Zero, ErrPriceNotFound
	}

	price, err := decimal.NewFromString(strings.TrimPrefix(strings.ReplaceAll(r.Price, ",", ""), "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("gemini returned invalid price %q: %w", r.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrPriceNotFound
	}
	return price, nil
}
