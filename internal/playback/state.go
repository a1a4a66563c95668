// Package playback holds the reader's playback state machine.
package playback

// Mode is the current playback mode.
type Mode int

const (
	// ModeIdle means nothing is being read.
	ModeIdle Mode = iota
	// ModeLoading means synthesis was requested and no audio is playable yet.
	ModeLoading
	// ModeSpeaking means audio is playing.
	ModeSpeaking
	// ModePaused means playback is suspended at a remembered position.
	ModePaused
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeLoading:
		return "loading"
	case ModeSpeaking:
		return "speaking"
	case ModePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a session exists in this mode.
func (m Mode) Active() bool {
	return m != ModeIdle
}

// Machine tracks the playback mode and runs hooks on transitions. It is not
// safe for concurrent use; the owner serializes access.
type Machine struct {
	current     Mode
	transitions map[Mode][]Mode
	onEnter     map[Mode]func(from Mode)
	onExit      map[Mode]func(to Mode)
}

// NewMachine returns a machine in ModeIdle.
func NewMachine() *Machine {
	return &Machine{
		current: ModeIdle,
		transitions: map[Mode][]Mode{
			ModeIdle:     {ModeLoading},
			ModeLoading:  {ModeSpeaking, ModeIdle},
			ModeSpeaking: {ModePaused, ModeIdle},
			ModePaused:   {ModeSpeaking, ModeIdle},
		},
		onEnter: make(map[Mode]func(Mode)),
		onExit:  make(map[Mode]func(Mode)),
	}
}

// CanTransition reports whether moving to mode to is allowed.
func (m *Machine) CanTransition(to Mode) bool {
	for _, mode := range m.transitions[m.current] {
		if mode == to {
			return true
		}
	}
	return false
}

// Transition moves to mode to. Requests the table does not allow leave the
// machine untouched and return false.
func (m *Machine) Transition(to Mode) bool {
	if !m.CanTransition(to) {
		return false
	}

	from := m.current
	if fn := m.onExit[from]; fn != nil {
		fn(to)
	}
	m.current = to
	if fn := m.onEnter[to]; fn != nil {
		fn(from)
	}
	return true
}

// Current returns the current mode.
func (m *Machine) Current() Mode {
	return m.current
}

// OnEnter registers a callback run after entering mode.
func (m *Machine) OnEnter(mode Mode, fn func(from Mode)) {
	m.onEnter[mode] = fn
}

// OnExit registers a callback run before leaving mode.
func (m *Machine) OnExit(mode Mode, fn func(to Mode)) {
	m.onExit[mode] = fn
}
