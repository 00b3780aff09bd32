// Package frames builds canned reply frames in every wire shape the gate
// has ever emitted. The card data mirrors the wallet tool's mock users so
// the client can be exercised against realistic payloads.
package frames

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
)

// Wallet is one mock user's stored payment methods.
type Wallet struct {
	UserID string
	Name   string
	Cards  []comm.CardRecord
}

var Wallets = map[string]Wallet{
	"user1": {
		UserID: "user1",
		Name:   "John Doe",
		Cards: []comm.CardRecord{
			{CardID: "card_001", Type: "credit", Brand: "Chase Freedom", Last4Digits: "1234", Nickname: "Freedom Card"},
			{CardID: "card_002", Type: "credit", Brand: "Chase Sapphire Preferred", Last4Digits: "5678", Nickname: "Sapphire Card"},
		},
	},
	"user2": {
		UserID: "user2",
		Name:   "Jane Smith",
		Cards: []comm.CardRecord{
			{CardID: "card_003", Type: "credit", Brand: "Chase Freedom Unlimited", Last4Digits: "9012", Nickname: "Freedom Unlimited"},
		},
	},
}

// StructuredWallet renders a wallet as the JSON payment_methods shape.
func StructuredWallet(w Wallet) string {
	payload := struct {
		PaymentMethods []comm.CardRecord `json:"payment_methods"`
	}{PaymentMethods: w.Cards}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}

// TextWallet renders a wallet as the prose card-list shape: intro line,
// numbered blocks, closing offer of help.
func TextWallet(w Wallet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has the following available cards:\n\n", w.Name)
	for i, card := range w.Cards {
		fmt.Fprintf(&b, "%d. %s\n", i+1, card.Brand)
		fmt.Fprintf(&b, " - Type: %s\n", card.Type)
		fmt.Fprintf(&b, " - Last 4 Digits: %s\n", card.Last4Digits)
		fmt.Fprintf(&b, " - Nickname: %s\n\n", card.Nickname)
	}
	b.WriteString("if\nyou need more information about any of these cards, just ask!")
	return b.String()
}

// ContentWrapped renders a text in the content-marker shape.
func ContentWrapped(text string) string {
	if strings.Contains(text, "'") {
		return fmt.Sprintf("content=%q", text)
	}
	return fmt.Sprintf("content='%s'", text)
}

// FlightSummary is a content-wrapped flight-search flavored reply.
func FlightSummary() string {
	return ContentWrapped("I found 2 flights from New York to London: " +
		"British Airways BA112 departing 18:30 for $745.00, and " +
		"Delta DL403 departing 21:05 for $689.00. " +
		"Your Chase Sapphire Preferred earns 2X points on travel purchases.")
}

// BenefitsSummary is a raw unstructured benefits reply.
func BenefitsSummary() string {
	return "Chase Sapphire Preferred: $95 annual fee, 2X points on travel and dining, " +
		"1.25 cents per point through the travel portal. " +
		"Chase Freedom: no annual fee, 5% cash back in rotating quarterly categories."
}

// Help is the default content-wrapped reply.
func Help() string {
	return ContentWrapped("I can help you plan travel and pick the best payment method. " +
		"Try asking about your payment methods, flights, or card benefits.")
}
