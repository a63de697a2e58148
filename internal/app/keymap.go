package app

// Key binding constants used in handleKey.
const (
	KeyCtrlC     = "ctrl+c"
	KeyTalk      = "ctrl+r"
	KeyCancel    = "esc"
	KeySubmit    = "enter"
	KeyBackspace = "backspace"
	KeyTab       = "tab"

	// Ledger panel only; in the chat panel these are typed.
	KeyQuit         = "q"
	KeyRefresh      = "r"
	KeyConfirm      = "c"
	KeyUp           = "up"
	KeyDown         = "down"
	KeyJ            = "j"
	KeyK            = "k"
	KeyMoreInstall  = "+"
	KeyLessInstall  = "-"
	KeyMoreInterest = "]"
	KeyLessInterest = "["
)
