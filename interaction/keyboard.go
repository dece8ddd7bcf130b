package interaction

import "strings"

// KeyEvent is a key press as reported by the browser.
type KeyEvent struct {
	Key         string `json:"key"`
	Ctrl        bool   `json:"ctrl"`
	Meta        bool   `json:"meta"`
	Shift       bool   `json:"shift"`
	InTextField bool   `json:"inTextField"`
}

// CommandKind is what a key press asks the editor to do.
type CommandKind string

const (
	CommandNone           CommandKind = ""
	CommandDelete         CommandKind = "delete"
	CommandClearSelection CommandKind = "clear-selection"
	CommandReset          CommandKind = "reset"
	CommandExport         CommandKind = "export"
	CommandNudge          CommandKind = "nudge"
)

const (
	NudgeStep      = 1.0
	NudgeShiftStep = 10.0
)

// Command is the decoded key press. DX and DY are set for nudges.
type Command struct {
	Kind   CommandKind
	DX, DY float64
}

// Key maps a key press to a command. hasActive reports whether a layer is
// selected; delete and nudge need one.
func Key(ev KeyEvent, hasActive bool) Command {
	key := ev.Key
	if ev.Ctrl || ev.Meta {
		switch strings.ToLower(key) {
		case "z":
			return Command{Kind: CommandReset}
		case "e":
			return Command{Kind: CommandExport}
		}
	}

	switch key {
	case "Delete", "Backspace":
		if hasActive && !ev.InTextField {
			return Command{Kind: CommandDelete}
		}
	case "Escape":
		return Command{Kind: CommandClearSelection}
	case "ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight":
		if !hasActive {
			return Command{}
		}
		step := NudgeStep
		if ev.Shift {
			step = NudgeShiftStep
		}
		c := Command{Kind: CommandNudge}
		switch key {
		case "ArrowUp":
			c.DY = -step
		case "ArrowDown":
			c.DY = step
		case "ArrowLeft":
			c.DX = -step
		case "ArrowRight":
			c.DX = step
		}
		return c
	}
	return Command{}
}
