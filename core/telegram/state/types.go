package state

// State identifies a dialog step.
type State string

const (
	// StateIdle indicates there is no active dialog in the chat.
	StateIdle State = "idle"
)

// Manager keeps one dialog state per chat.
type Manager interface {
	SetState(chatID int64, st State)
	GetState(chatID int64) State
	ClearState(chatID int64)
	InProgress(chatID int64) bool
	// Active returns the number of chats with a dialog in progress.
	Active() int
}
