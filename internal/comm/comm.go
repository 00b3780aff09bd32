package comm

// Originator identifies who produced a chat entry.
type Originator string

const (
	OriginatorUser      Originator = "user"
	OriginatorAssistant Originator = "assistant"
)

// ChatEntry is one line of conversation history. Entries are immutable once
// created; Seq is assigned by the message store in insertion order.
type ChatEntry struct {
	Text       string     `json:"text"`
	Originator Originator `json:"originator"`
	Seq        int64      `json:"seq"`
}

// CardRecord is one payment card as presented to the user. The json tags
// follow the wallet wire format.
type CardRecord struct {
	CardID      string `json:"card_id"`
	Type        string `json:"type"`
	Brand       string `json:"brand"`
	Last4Digits string `json:"last4"`
	Nickname    string `json:"nickname"`
}
