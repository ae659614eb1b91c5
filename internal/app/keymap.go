package app

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeyTab       = "tab"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyJ         = "j"
	KeyK         = "k"
	KeyEnter     = "enter"
	KeyEscape    = "esc"
	KeySearch    = "/"
	KeyBackspace = "backspace"
	KeyHome      = "home"
	KeyEnd       = "end"
	KeyPageUp    = "pgup"
	KeyPageDown  = "pgdown"
)
