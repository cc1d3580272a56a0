package chat

import "time"

// Session captures where a visitor is in the menu tree.
type Session struct {
	ID                  string    `json:"id"`
	SessionToken        string    `json:"sessionToken"`
	CurrentMenu         string    `json:"currentMenu"`
	MenuStack           []string  `json:"menuStack"`
	ConversationHistory []Message `json:"conversationHistory"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices with a store.
func (s Session) Clone() Session {
	out := s
	out.MenuStack = append(make([]string, 0, len(s.MenuStack)), s.MenuStack...)
	out.ConversationHistory = make([]Message, len(s.ConversationHistory))
	for i, m := range s.ConversationHistory {
		out.ConversationHistory[i] = m.Clone()
	}
	return out
}

// SessionPatch lists the client-updatable fields; nil means unchanged.
type SessionPatch struct {
	CurrentMenu         *string    `json:"currentMenu,omitempty"`
	MenuStack           *[]string  `json:"menuStack,omitempty"`
	ConversationHistory *[]Message `json:"conversationHistory,omitempty"`
}

// Apply copies the set fields of p onto s.
func (p SessionPatch) Apply(s *Session) {
	if p.CurrentMenu != nil {
		s.CurrentMenu = *p.CurrentMenu
	}
	if p.MenuStack != nil {
		s.MenuStack = append(make([]string, 0, len(*p.MenuStack)), (*p.MenuStack)...)
	}
	if p.ConversationHistory != nil {
		history := make([]Message, len(*p.ConversationHistory))
		for i, m := range *p.ConversationHistory {
			history[i] = m.Clone()
		}
		s.ConversationHistory = history
	}
}
