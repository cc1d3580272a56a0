package conversation

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
)

// ActionType names what the visitor did.
type ActionType string

const (
	ActionSelect ActionType = "select"
	ActionText   ActionType = "text"
	ActionBack   ActionType = "back"
	ActionHome   ActionType = "home"
)

// Action is a single visitor input: a click on an option, free text, or navigation.
type Action struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value,omitempty"`
}

// Valid reports whether the action type is known.
func (a Action) Valid() bool {
	switch a.Type {
	case ActionSelect, ActionText, ActionBack, ActionHome:
		return true
	}
	return false
}

// State is the navigation position: the current menu plus the menus to go back to.
type State struct {
	CurrentMenu string   `json:"currentMenu"`
	Stack       []string `json:"menuStack"`
}

// InitialState places a new visitor at the root menu.
func InitialState() State {
	return State{CurrentMenu: knowledge.RootMenuID, Stack: []string{}}
}

func (s State) clone() State {
	return State{CurrentMenu: s.CurrentMenu, Stack: append(make([]string, 0, len(s.Stack)), s.Stack...)}
}

// Equal reports whether two states point at the same place with the same history.
func (s State) Equal(other State) bool {
	if s.CurrentMenu != other.CurrentMenu || len(s.Stack) != len(other.Stack) {
		return false
	}
	for i := range s.Stack {
		if s.Stack[i] != other.Stack[i] {
			return false
		}
	}
	return true
}

// BotMessage is what the assistant says, optionally with options to click.
type BotMessage struct {
	Content string                 `json:"content"`
	Options []knowledge.MenuOption `json:"options,omitempty"`
}

// Reply is the outcome of one transition. Bot is nil when nothing is said.
type Reply struct {
	State    State
	UserText string
	Bot      *BotMessage
}

// Searcher resolves free text to a response key.
type Searcher interface {
	Search(text string) (string, bool)
}

// Engine drives menu navigation and canned-response lookup. It performs no I/O.
type Engine struct {
	kb       *knowledge.Base
	searcher Searcher
}

// NewEngine creates an engine over kb using searcher for free text.
func NewEngine(kb *knowledge.Base, searcher Searcher) *Engine {
	return &Engine{kb: kb, searcher: searcher}
}

// Knowledge exposes the reference data the engine answers from.
func (e *Engine) Knowledge() *knowledge.Base {
	return e.kb
}

// Welcome is the greeting shown when a conversation opens.
func (e *Engine) Welcome() BotMessage {
	return BotMessage{Content: e.kb.Messages().Welcome, Options: e.kb.Root().Options}
}

// Handle dispatches action against state. Unknown action types leave state untouched.
func (e *Engine) Handle(state State, action Action) Reply {
	state = e.normalize(state)

	switch action.Type {
	case ActionSelect:
		return e.Select(state, action.Value)
	case ActionText:
		return e.Submit(state, action.Value)
	case ActionBack:
		return e.Back(state)
	case ActionHome:
		return e.Home(state)
	default:
		return Reply{State: state}
	}
}

// Select handles a click on an option whose action key (or id) is key. Unknown keys
// produce no messages.
func (e *Engine) Select(state State, key string) Reply {
	state = e.normalize(state)
	msgs := e.kb.Messages()

	if menu, ok := e.kb.Menu(key); ok {
		reply := e.navigate(state, key)
		reply.UserText = msgs.SelectedPrefix + menu.Title
		return reply
	}

	if text, ok := e.kb.Response(key); ok {
		label := msgs.SelectedPrefix + e.kb.ResolveOptionLabel(key)
		return Reply{State: state, UserText: label, Bot: &BotMessage{Content: text}}
	}

	// Keys that are neither a menu nor a response are ignored.
	return Reply{State: state}
}

// Submit handles free text typed by the visitor. Blank input is ignored.
func (e *Engine) Submit(state State, text string) Reply {
	state = e.normalize(state)
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{State: state}
	}

	if key, ok := e.searcher.Search(text); ok {
		if response, ok := e.kb.Response(key); ok {
			return Reply{State: state, UserText: text, Bot: &BotMessage{Content: response}}
		}
	}
	return Reply{State: state, UserText: text, Bot: e.fallback()}
}

// Back returns to the previous menu, or to the root when there is none.
func (e *Engine) Back(state State) Reply {
	state = e.normalize(state)

	if n := len(state.Stack); n > 0 {
		previous := state.Stack[n-1]
		next := State{CurrentMenu: previous, Stack: state.Stack[:n-1]}.clone()
		if previous == knowledge.RootMenuID {
			return Reply{State: next, Bot: e.rootMessage()}
		}
		if menu, ok := e.kb.Menu(previous); ok {
			return Reply{State: next, Bot: e.menuMessage(menu)}
		}
	}

	return Reply{
		State: State{CurrentMenu: knowledge.RootMenuID, Stack: []string{}},
		Bot:   e.rootMessage(),
	}
}

// Home clears the back stack and shows the root menu.
func (e *Engine) Home(State) Reply {
	return Reply{
		State: InitialState(),
		Bot:   e.rootMessage(),
	}
}

// Breadcrumb returns the trail from the root to the current menu.
func (e *Engine) Breadcrumb(state State) []string {
	return e.kb.Breadcrumb(e.normalize(state).CurrentMenu)
}

func (e *Engine) navigate(state State, target string) Reply {
	if target == knowledge.RootMenuID {
		return e.Home(state)
	}

	next := state.clone()
	if state.CurrentMenu != knowledge.RootMenuID {
		next.Stack = append(next.Stack, state.CurrentMenu)
	}
	next.CurrentMenu = target

	menu, _ := e.kb.Menu(target)
	return Reply{State: next, Bot: e.menuMessage(menu)}
}

func (e *Engine) menuMessage(menu knowledge.Menu) *BotMessage {
	return &BotMessage{
		Content: fmt.Sprintf(e.kb.Messages().MenuPrompt, menu.Title),
		Options: menu.Options,
	}
}

func (e *Engine) rootMessage() *BotMessage {
	return &BotMessage{Content: e.kb.Messages().MainPrompt, Options: e.kb.Root().Options}
}

func (e *Engine) fallback() *BotMessage {
	return &BotMessage{Content: e.kb.Messages().Fallback, Options: e.kb.Root().Options}
}

// normalize repairs states that reference menus the knowledge base does not have.
func (e *Engine) normalize(state State) State {
	out := State{CurrentMenu: state.CurrentMenu, Stack: make([]string, 0, len(state.Stack))}
	if !e.kb.HasMenu(out.CurrentMenu) {
		out.CurrentMenu = knowledge.RootMenuID
	}
	for _, id := range state.Stack {
		if e.kb.HasMenu(id) {
			out.Stack = append(out.Stack, id)
		}
	}
	return out
}
