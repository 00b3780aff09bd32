// Package decode interprets inbound gate frames. The gate's wire format
// changed across backend revisions without any version marker, so a frame is
// matched against every known shape in fixed priority order and the first
// successful decoder wins. Each decoder is a pure function; a failed match
// never escapes as an error.
package decode

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
)

// Announcement accompanies every freshly decoded card list.
const Announcement = "Here are your available payment methods."

// Payload is the outcome of classifying one inbound frame.
type Payload struct {
	// Cards is non-nil when the frame carried a card list. The current
	// snapshot is replaced wholesale with it.
	Cards []comm.CardRecord

	// Texts are assistant chat texts to append, in extraction order.
	Texts []string

	// Dedup marks texts that must be dropped when an identical text is
	// already present anywhere in the accumulated history.
	Dedup bool
}

// Classify runs the decoders in priority order and returns the first match.
// RawFallback always matches, so every frame resolves to some payload.
func Classify(frame string) Payload {
	if p, ok := StructuredCardList(frame); ok {
		return p
	}
	if p, ok := TextCardList(frame); ok {
		return p
	}
	if p, ok := ContentWrapped(frame); ok {
		return p
	}
	p, _ := RawFallback(frame)
	return p
}

// StructuredCardList matches a JSON frame with a payment_methods array, the
// shape the wallet tool emits. Malformed JSON is a miss, not an error.
func StructuredCardList(frame string) (Payload, bool) {
	var envelope struct {
		PaymentMethods json.RawMessage `json:"payment_methods"`
	}
	if err := json.Unmarshal([]byte(frame), &envelope); err != nil {
		return Payload{}, false
	}
	if len(envelope.PaymentMethods) == 0 {
		return Payload{}, false
	}
	var cards []comm.CardRecord
	if err := json.Unmarshal(envelope.PaymentMethods, &cards); err != nil {
		return Payload{}, false
	}
	if cards == nil {
		return Payload{}, false
	}
	return Payload{Cards: cards, Texts: []string{Announcement}}, true
}

// One card block: an ordinal line naming the brand, then Type, Last 4 Digits
// and Nickname lines. The surrounding intro and offer-of-help sentences are
// ignored.
var cardBlockRe = regexp.MustCompile(
	`(?m)^\s*\d+\.\s*(.+?)\s*\n\s*-\s*Type:\s*(.+?)\s*\n\s*-\s*Last 4 Digits:\s*(\d+)\s*\n\s*-\s*Nickname:\s*(.+?)\s*$`)

// TextCardList matches the prose card listing some backend revisions emit.
// Requires at least one well-formed block. This shape carries no stable card
// identifier, so ids are synthesized from block position.
func TextCardList(frame string) (Payload, bool) {
	blocks := cardBlockRe.FindAllStringSubmatch(frame, -1)
	if len(blocks) == 0 {
		return Payload{}, false
	}
	cards := make([]comm.CardRecord, 0, len(blocks))
	for i, b := range blocks {
		cards = append(cards, comm.CardRecord{
			CardID:      fmt.Sprintf("text-card-%d", i+1),
			Brand:       b[1],
			Type:        b[2],
			Last4Digits: b[3],
			Nickname:    b[4],
		})
	}
	return Payload{Cards: cards, Texts: []string{Announcement}}, true
}

// content= values quoted by matching single or double quotes. Escaped or
// nested quotes are not handled; upstream has never emitted them.
var contentRe = regexp.MustCompile(`content='([^']*)'|content="([^"]*)"`)

// ContentWrapped extracts every content='...' / content="..." substring.
// Requires at least one value; duplicates within the frame collapse to the
// first occurrence.
func ContentWrapped(frame string) (Payload, bool) {
	matches := contentRe.FindAllStringSubmatchIndex(frame, -1)
	if len(matches) == 0 {
		return Payload{}, false
	}
	seen := make(map[string]struct{}, len(matches))
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		start, end := m[2], m[3] // single-quoted alternative
		if start < 0 {
			start, end = m[4], m[5] // double-quoted alternative
		}
		text := frame[start:end]
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		texts = append(texts, text)
	}
	return Payload{Texts: texts, Dedup: true}, true
}

// RawFallback turns the whole frame into one verbatim assistant entry. It
// always matches, which is what guarantees total coverage of inbound frames.
func RawFallback(frame string) (Payload, bool) {
	return Payload{Texts: []string{frame}}, true
}
