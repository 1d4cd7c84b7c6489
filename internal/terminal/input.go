package terminal

import (
	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"tiltbot/internal/sim"
)

// KeyAction is what a key press asks the simulator to do.
type KeyAction int

const (
	KeyIgnored KeyAction = iota
	KeyCommand
	KeyQuit
)

var runeCommands = map[rune]sim.Command{
	'w': sim.Forward, 'W': sim.Forward,
	's': sim.Backward, 'S': sim.Backward,
	'a': sim.Left, 'A': sim.Left,
	'd': sim.Right, 'D': sim.Right,
	' ': sim.Stop,
}

var keyCommands = map[tcell.Key]sim.Command{
	tcell.KeyUp:    sim.Forward,
	tcell.KeyDown:  sim.Backward,
	tcell.KeyLeft:  sim.Left,
	tcell.KeyRight: sim.Right,
}

// MapKey translates a key event.
func MapKey(ev *tcell.EventKey) (KeyAction, sim.Command) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return KeyQuit, sim.Stop
	case tcell.KeyRune:
		r := ev.Rune()
		if r == 'q' || r == 'Q' {
			return KeyQuit, sim.Stop
		}
		if cmd, ok := runeCommands[r]; ok {
			return KeyCommand, cmd
		}
		return KeyIgnored, sim.Stop
	}
	if cmd, ok := keyCommands[ev.Key()]; ok {
		return KeyCommand, cmd
	}
	return KeyIgnored, sim.Stop
}

// PollInput reads screen events until the screen is finalized. Commands are
// passed to manual and a quit key calls quit once.
func PollInput(screen tcell.Screen, manual func(sim.Command) bool, quit func(), logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	quitting := false
	for {
		ev := screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			action, cmd := MapKey(ev)
			switch action {
			case KeyQuit:
				if !quitting {
					quitting = true
					logger.Infow("quit requested from keyboard")
					quit()
				}
			case KeyCommand:
				if manual(cmd) {
					logger.Infow("manual command", "command", cmd.String(), "name", cmd.Name())
				}
			}
		}
	}
}
