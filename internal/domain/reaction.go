package domain

// ReactionType is one of the five reactions a post supports.
type ReactionType string

const (
	ReactionConnection ReactionType = "connection"
	ReactionImpact     ReactionType = "impact"
	ReactionRepresent  ReactionType = "represent"
	ReactionThink      ReactionType = "think"
	ReactionUnderrated ReactionType = "underrated"
)

// Valid reports whether t is a known reaction type.
func (t ReactionType) Valid() bool {
	switch t {
	case ReactionConnection, ReactionImpact, ReactionRepresent, ReactionThink, ReactionUnderrated:
		return true
	}
	return false
}

// ReactionCount is a (type, count) pair inside ReactionMetadata.
type ReactionCount struct {
	Type  ReactionType `json:"reaction_type"`
	Count int          `json:"count"`
}

// ReactionMetadata is the derived per-post reaction summary the UI renders.
// TopReactions holds at most the two highest-count types, ordered by count
// descending. UserReaction is nil when the viewer has not reacted.
type ReactionMetadata struct {
	TotalCount   int             `json:"total_count"`
	TopReactions []ReactionCount `json:"top_reactions"`
	UserReaction *ReactionType   `json:"user_reaction"`
}

// Clone returns a deep copy so a stored snapshot cannot be mutated through
// the original slice.
func (m ReactionMetadata) Clone() ReactionMetadata {
	cp := m
	cp.TopReactions = append([]ReactionCount(nil), m.TopReactions...)
	if m.UserReaction != nil {
		r := *m.UserReaction
		cp.UserReaction = &r
	}
	return cp
}

// TypingEvent is the ephemeral broadcast payload for typing presence.
// It is never persisted.
type TypingEvent struct {
	SenderID    string `json:"sender_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}
