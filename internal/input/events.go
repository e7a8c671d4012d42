// Package input maps user commands onto a playback session.
package input

// Command identifies a user command.
type Command string

const (
	CommandTogglePlay     Command = "toggle_play"
	CommandStep           Command = "step"
	CommandRun            Command = "run"
	CommandResolutionUp   Command = "resolution_up"
	CommandResolutionDown Command = "resolution_down"
	CommandExport         Command = "export"
	CommandSaveSequence   Command = "save_sequence"
	CommandSnapshot       Command = "snapshot"
	CommandReconnect      Command = "reconnect"
	CommandQuit           Command = "quit"
)

// Target receives commands. *session.Session implements it.
type Target interface {
	TogglePlay()
	Step()
	RunSource()
	StepResolution(dir int)
	Export()
	SaveSequence()
	SaveSnapshot()
	Reconnect()
}

// Dispatch applies c to t. It reports false for CommandQuit and unknown
// commands, which the caller handles.
func Dispatch(t Target, c Command) bool {
	switch c {
	case CommandTogglePlay:
		t.TogglePlay()
	case CommandStep:
		t.Step()
	case CommandRun:
		t.RunSource()
	case CommandResolutionUp:
		t.StepResolution(1)
	case CommandResolutionDown:
		t.StepResolution(-1)
	case CommandExport:
		t.Export()
	case CommandSaveSequence:
		t.SaveSequence()
	case CommandSnapshot:
		t.SaveSnapshot()
	case CommandReconnect:
		t.Reconnect()
	default:
		return false
	}
	return true
}

// Commands lists every command with its help text, in display order.
var Commands = []struct {
	Command Command
	Help    string
}{
	{CommandTogglePlay, "play/pause"},
	{CommandStep, "step one frame"},
	{CommandRun, "run source"},
	{CommandResolutionUp, "finer grid"},
	{CommandResolutionDown, "coarser grid"},
	{CommandExport, "export and post"},
	{CommandSaveSequence, "save sequence as APNG"},
	{CommandSnapshot, "save current frame"},
	{CommandReconnect, "reconnect"},
	{CommandQuit, "quit"},
}
