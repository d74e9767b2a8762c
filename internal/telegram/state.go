package telegram

import "sync"

type SessionState int

const (
	StateIdle SessionState = iota

	// Admin: add-product dialog.
	StateAwaitingCategory
	StateAwaitingProductName
	StateAwaitingProductDescription
	StateAwaitingProductPrice
	StateAwaitingProductPhoto
	StateAwaitingAutodeliveryChoice
	StateAwaitingAutodeliveryContent

	// Admin: promo creation dialog.
	StateAwaitingPromoCode
	StateAwaitingPromoAmount
	StateAwaitingPromoUses

	// Admin: catalog deletion.
	StateAwaitingDeleteCategory

	// Buyer dialogs.
	StateAwaitingUserPromo
	StateAwaitingPurchasePromo
)

// Session is the per-conversation state: the current dialog step, values
// accumulated across steps and the id of the last bot message on this chat.
type Session struct {
	State SessionState

	CategoryID         int64
	ProductName        string
	ProductDescription string
	ProductPrice       int
	ProductID          int64

	PromoCode   string
	PromoAmount int

	LastMessageID int
}

type StateManager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns the session for a chat, creating it on first access.
func (m *StateManager) Get(chatID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[chatID]
	if !ok {
		session = &Session{State: StateIdle}
		m.sessions[chatID] = session
	}
	return session
}

// Reset drops the dialog state but keeps the last-message tracking.
func (m *StateManager) Reset(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[chatID]; ok {
		lastID := session.LastMessageID
		m.sessions[chatID] = &Session{State: StateIdle, LastMessageID: lastID}
	}
}
