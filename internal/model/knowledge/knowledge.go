package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// RootMenuID identifies the menu every conversation starts from.
const RootMenuID = "main"

// MenuOption is a selectable entry inside a menu.
type MenuOption struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Action      string `json:"action,omitempty" yaml:"action,omitempty"`
}

// ActionKey returns the key used to resolve the option: the action when set, the id otherwise.
func (o MenuOption) ActionKey() string {
	if o.Action != "" {
		return o.Action
	}
	return o.ID
}

// Menu is a node of the navigation tree.
type Menu struct {
	ID      string       `json:"id" yaml:"id"`
	Title   string       `json:"title" yaml:"title"`
	Parent  string       `json:"parent,omitempty" yaml:"parent,omitempty"`
	Options []MenuOption `json:"options" yaml:"options"`
}

// KeywordEntry lists the phrases that route free text to a response key.
type KeywordEntry struct {
	Key     string   `json:"key" yaml:"key"`
	Phrases []string `json:"phrases" yaml:"phrases"`
}

// SynonymGroup maps a canonical word to the variants users type instead.
type SynonymGroup struct {
	Canonical string   `json:"canonical" yaml:"canonical"`
	Variants  []string `json:"variants" yaml:"variants"`
}

// Messages holds the fixed bot copy that is not tied to a response key.
type Messages struct {
	Welcome        string `json:"welcome" yaml:"welcome"`
	Fallback       string `json:"fallback" yaml:"fallback"`
	MainPrompt     string `json:"mainPrompt" yaml:"main_prompt"`
	MenuPrompt     string `json:"menuPrompt" yaml:"menu_prompt"`
	SelectedPrefix string `json:"selectedPrefix" yaml:"selected_prefix"`
	RootLabel      string `json:"rootLabel" yaml:"root_label"`
}

// Definition is the serialisable form of a knowledge base.
type Definition struct {
	Menus     []Menu            `yaml:"menus"`
	Responses map[string]string `yaml:"responses"`
	Keywords  []KeywordEntry    `yaml:"keywords"`
	Synonyms  []SynonymGroup    `yaml:"synonyms"`
	Messages  Messages          `yaml:"messages"`
}

var defaultMessages = Messages{
	Welcome:        "Welcome! How can I assist you today?",
	Fallback:       "I'm sorry, I didn't quite understand that. Here are some things I can help you with:",
	MainPrompt:     "What would you like to know about? Choose from the options below:",
	MenuPrompt:     "Here are the %s options:",
	SelectedPrefix: "Selected: ",
	RootLabel:      "Main Menu",
}

// ErrInvalidKnowledge wraps every structural problem reported by Validate.
var ErrInvalidKnowledge = errors.New("invalid knowledge base")

// Base is the immutable, process-wide reference data behind the assistant.
type Base struct {
	menus     map[string]Menu
	order     []string
	responses map[string]string
	keywords  []KeywordEntry
	synonyms  []SynonymGroup
	messages  Messages
}

// New builds and validates a Base from a definition. The definition is copied.
func New(def Definition) (*Base, error) {
	b := &Base{
		menus:     make(map[string]Menu, len(def.Menus)),
		order:     make([]string, 0, len(def.Menus)),
		responses: make(map[string]string, len(def.Responses)),
		messages:  withDefaults(def.Messages),
	}

	for _, m := range def.Menus {
		if _, dup := b.menus[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate menu %q", ErrInvalidKnowledge, m.ID)
		}
		m.Options = append([]MenuOption(nil), m.Options...)
		b.menus[m.ID] = m
		b.order = append(b.order, m.ID)
	}
	for k, v := range def.Responses {
		b.responses[k] = v
	}
	for _, entry := range def.Keywords {
		phrases := make([]string, len(entry.Phrases))
		for i, p := range entry.Phrases {
			phrases[i] = strings.ToLower(p)
		}
		b.keywords = append(b.keywords, KeywordEntry{Key: entry.Key, Phrases: phrases})
	}
	for _, group := range def.Synonyms {
		b.synonyms = append(b.synonyms, SynonymGroup{
			Canonical: group.Canonical,
			Variants:  append([]string(nil), group.Variants...),
		})
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func withDefaults(m Messages) Messages {
	if m.Welcome == "" {
		m.Welcome = defaultMessages.Welcome
	}
	if m.Fallback == "" {
		m.Fallback = defaultMessages.Fallback
	}
	if m.MainPrompt == "" {
		m.MainPrompt = defaultMessages.MainPrompt
	}
	if m.MenuPrompt == "" {
		m.MenuPrompt = defaultMessages.MenuPrompt
	}
	if m.SelectedPrefix == "" {
		m.SelectedPrefix = defaultMessages.SelectedPrefix
	}
	if m.RootLabel == "" {
		m.RootLabel = defaultMessages.RootLabel
	}
	return m
}

// Validate checks the structural invariants of the navigation tree and keyword table.
func (b *Base) Validate() error {
	root, ok := b.menus[RootMenuID]
	if !ok {
		return fmt.Errorf("%w: missing root menu %q", ErrInvalidKnowledge, RootMenuID)
	}
	if root.Parent != "" {
		return fmt.Errorf("%w: root menu must not have a parent", ErrInvalidKnowledge)
	}

	for _, id := range b.order {
		menu := b.menus[id]
		if id == "" {
			return fmt.Errorf("%w: menu with empty id", ErrInvalidKnowledge)
		}
		if menu.Parent != "" {
			if _, ok := b.menus[menu.Parent]; !ok {
				return fmt.Errorf("%w: menu %q references unknown parent %q", ErrInvalidKnowledge, id, menu.Parent)
			}
		}
		if b.parentDepth(id) > len(b.order) {
			return fmt.Errorf("%w: menu %q is part of a parent cycle", ErrInvalidKnowledge, id)
		}
		seen := make(map[string]struct{}, len(menu.Options))
		for _, opt := range menu.Options {
			if opt.ID == "" {
				return fmt.Errorf("%w: menu %q has an option without id", ErrInvalidKnowledge, id)
			}
			if _, dup := seen[opt.ID]; dup {
				return fmt.Errorf("%w: menu %q has duplicate option %q", ErrInvalidKnowledge, id, opt.ID)
			}
			seen[opt.ID] = struct{}{}
		}
	}

	for _, entry := range b.keywords {
		if entry.Key == "" {
			return fmt.Errorf("%w: keyword entry without key", ErrInvalidKnowledge)
		}
		for _, phrase := range entry.Phrases {
			if strings.TrimSpace(phrase) == "" {
				return fmt.Errorf("%w: empty keyword for %q", ErrInvalidKnowledge, entry.Key)
			}
		}
	}

	if strings.Count(b.messages.MenuPrompt, "%s") != 1 {
		return fmt.Errorf("%w: menu prompt must contain exactly one %%s", ErrInvalidKnowledge)
	}
	return nil
}

func (b *Base) parentDepth(id string) int {
	depth := 0
	for m, ok := b.menus[id]; ok && m.Parent != ""; m, ok = b.menus[m.Parent] {
		depth++
		if depth > len(b.order) {
			break
		}
	}
	return depth
}

// Menu returns the menu registered under id.
func (b *Base) Menu(id string) (Menu, bool) {
	m, ok := b.menus[id]
	if !ok {
		return Menu{}, false
	}
	m.Options = append([]MenuOption(nil), m.Options...)
	return m, true
}

// HasMenu reports whether id names a menu.
func (b *Base) HasMenu(id string) bool {
	_, ok := b.menus[id]
	return ok
}

// Root returns the root menu.
func (b *Base) Root() Menu {
	m, _ := b.Menu(RootMenuID)
	return m
}

// MenuIDs lists menu identifiers in definition order.
func (b *Base) MenuIDs() []string {
	return append([]string(nil), b.order...)
}

// Response returns the canned text for key.
func (b *Base) Response(key string) (string, bool) {
	text, ok := b.responses[key]
	return text, ok
}

// ResolveOptionLabel finds the label of the first option whose action key or id equals key.
// Unknown keys resolve to themselves.
func (b *Base) ResolveOptionLabel(key string) string {
	for _, id := range b.order {
		for _, opt := range b.menus[id].Options {
			if opt.Action == key || opt.ID == key {
				return opt.Label
			}
		}
	}
	return key
}

// Keywords returns the keyword table in scan order.
func (b *Base) Keywords() []KeywordEntry {
	out := make([]KeywordEntry, len(b.keywords))
	for i, entry := range b.keywords {
		out[i] = KeywordEntry{Key: entry.Key, Phrases: append([]string(nil), entry.Phrases...)}
	}
	return out
}

// Synonyms returns the synonym groups in scan order.
func (b *Base) Synonyms() []SynonymGroup {
	out := make([]SynonymGroup, len(b.synonyms))
	for i, group := range b.synonyms {
		out[i] = SynonymGroup{Canonical: group.Canonical, Variants: append([]string(nil), group.Variants...)}
	}
	return out
}

// Messages returns the fixed bot copy.
func (b *Base) Messages() Messages {
	return b.messages
}

// Breadcrumb returns the titles from the root down to menuID.
func (b *Base) Breadcrumb(menuID string) []string {
	var trail []string
	seen := make(map[string]struct{})
	for id := menuID; id != ""; {
		if _, loop := seen[id]; loop {
			break
		}
		seen[id] = struct{}{}
		m, ok := b.menus[id]
		if !ok {
			break
		}
		title := m.Title
		if id == RootMenuID {
			title = b.messages.RootLabel
		}
		trail = append([]string{title}, trail...)
		id = m.Parent
	}
	return trail
}
