// Package session holds the per-session conversation state: the append-only
// message history and the current card snapshot. Both live for the session
// only; nothing is persisted.
package session

import (
	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
)

// Store is the append-only ordered chat history. Entries keep insertion
// order and are never reordered. Every appended text is indexed so that
// selective de-duplication is an O(1) membership check against the entire
// accumulated history.
type Store struct {
	entries []comm.ChatEntry
	seen    map[string]struct{}
	seq     int64
}

func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

// Append adds an entry unconditionally, repetition or not.
func (s *Store) Append(text string, from comm.Originator) comm.ChatEntry {
	s.seq++
	entry := comm.ChatEntry{Text: text, Originator: from, Seq: s.seq}
	s.entries = append(s.entries, entry)
	s.seen[text] = struct{}{}
	return entry
}

// AppendUnique adds an entry unless an identical text already exists
// anywhere in the history. Returns false when the entry was dropped.
func (s *Store) AppendUnique(text string, from comm.Originator) (comm.ChatEntry, bool) {
	if _, dup := s.seen[text]; dup {
		return comm.ChatEntry{}, false
	}
	return s.Append(text, from), true
}

// Entries returns a copy of the history in insertion order.
func (s *Store) Entries() []comm.ChatEntry {
	out := make([]comm.ChatEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Len() int {
	return len(s.entries)
}

// Snapshot is the single current view of the user's payment cards. It is
// replaced wholesale each time a card-bearing frame decodes, never merged,
// and cleared the instant the user sends a new outbound message so stale
// cards cannot linger into the next turn.
type Snapshot struct {
	cards []comm.CardRecord
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Replace swaps in a new card list.
func (s *Snapshot) Replace(cards []comm.CardRecord) {
	s.cards = make([]comm.CardRecord, len(cards))
	copy(s.cards, cards)
}

// Clear empties the snapshot.
func (s *Snapshot) Clear() {
	s.cards = nil
}

// Cards returns a copy of the current card list; empty when cleared.
func (s *Snapshot) Cards() []comm.CardRecord {
	out := make([]comm.CardRecord, len(s.cards))
	copy(out, s.cards)
	return out
}

func (s *Snapshot) Len() int {
	return len(s.cards)
}
