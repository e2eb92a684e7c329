package cvhost

type action int

const (
	actionNone action = iota
	actionQuit
	actionPause
	actionNext
	actionPrev
	actionSeekBack
	actionSeekForward
	actionGrow
	actionShrink
)

// Arrow key codes as reported by the GTK and Win32 highgui backends.
const (
	keyLeftGTK    = 65361
	keyRightGTK   = 65363
	keyLeftWin32  = 2424832
	keyRightWin32 = 2555904
	keyEscape     = 27
)

func actionFor(key int) action {
	switch key {
	case 'q', keyEscape:
		return actionQuit
	case ' ':
		return actionPause
	case 'n':
		return actionNext
	case 'p':
		return actionPrev
	case ',', keyLeftGTK, keyLeftWin32:
		return actionSeekBack
	case '.', keyRightGTK, keyRightWin32:
		return actionSeekForward
	case '+', '=':
		return actionGrow
	case '-':
		return actionShrink
	}
	return actionNone
}
