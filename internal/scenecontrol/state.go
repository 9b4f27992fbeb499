package scenecontrol

import (
	"fmt"
	"strings"
)

// SceneID identifies a scene. Zero is invalid.
type SceneID uint64

// InvalidSceneID is the zero SceneID.
const InvalidSceneID SceneID = 0

// DisplayHandle identifies a display. Zero is invalid.
type DisplayHandle uint32

// InvalidDisplay is the zero DisplayHandle.
const InvalidDisplay DisplayHandle = 0

// OffscreenBufferHandle identifies an offscreen buffer.
// InvalidBuffer stands for the display framebuffer.
type OffscreenBufferHandle uint32

// InvalidBuffer is the zero OffscreenBufferHandle.
const InvalidBuffer OffscreenBufferHandle = 0

// DataSlotID identifies a data provider or consumer slot inside a scene.
type DataSlotID uint32

// SceneVersionTag is the version a producer attaches to a flush. Zero is invalid.
type SceneVersionTag uint64

// InvalidVersionTag is the zero SceneVersionTag.
const InvalidVersionTag SceneVersionTag = 0

// SceneState is the public state of a scene.
type SceneState int

const (
	Unavailable SceneState = iota
	Available
	Ready
	Rendered
)

var sceneStateNames = [...]string{
	Unavailable: "unavailable",
	Available:   "available",
	Ready:       "ready",
	Rendered:    "rendered",
}

func (s SceneState) String() string {
	if s < 0 || int(s) >= len(sceneStateNames) {
		return fmt.Sprintf("SceneState(%d)", int(s))
	}
	return sceneStateNames[s]
}

// ParseSceneState parses a public state name, case-insensitive.
func ParseSceneState(s string) (SceneState, error) {
	for i, name := range sceneStateNames {
		if strings.EqualFold(s, name) {
			return SceneState(i), nil
		}
	}
	return Unavailable, fmt.Errorf("unknown scene state: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s SceneState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SceneState) UnmarshalText(b []byte) error {
	v, err := ParseSceneState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// InternalState is the fine-grained state the control logic drives a scene through.
type InternalState int

const (
	StateUnpublished InternalState = iota
	StatePublished
	StateSubscribed
	StateMapped
	StateMappedAndAssigned
	StateRendered

	internalStateCount
)

var internalStateNames = [internalStateCount]string{
	StateUnpublished:       "unpublished",
	StatePublished:         "published",
	StateSubscribed:        "subscribed",
	StateMapped:            "mapped",
	StateMappedAndAssigned: "mapped_and_assigned",
	StateRendered:          "rendered",
}

func (s InternalState) String() string {
	if s < 0 || s >= internalStateCount {
		return fmt.Sprintf("InternalState(%d)", int(s))
	}
	return internalStateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s InternalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Public returns the public state covering s.
func (s InternalState) Public() SceneState {
	switch s {
	case StateSubscribed, StateMapped:
		return Available
	case StateMappedAndAssigned:
		return Ready
	case StateRendered:
		return Rendered
	default:
		return Unavailable
	}
}

// targetFor returns the canonical internal target for a public state.
func targetFor(s SceneState) InternalState {
	switch s {
	case Available:
		return StateSubscribed
	case Ready:
		return StateMappedAndAssigned
	case Rendered:
		return StateRendered
	default:
		return StatePublished
	}
}

// EventResult is the outcome carried by an asynchronous renderer reply.
type EventResult int

const (
	ResultOK EventResult = iota
	ResultFailed
	ResultIndirect
)

func (r EventResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultFailed:
		return "failed"
	case ResultIndirect:
		return "indirect"
	default:
		return fmt.Sprintf("EventResult(%d)", int(r))
	}
}

// Command is a renderer command that waits for a reply.
type Command int

const (
	CommandNone Command = iota
	CommandSubscribe
	CommandUnsubscribe
	CommandMap
	CommandUnmap
	CommandShow
	CommandHide
	CommandAssign
)

var commandNames = [...]string{
	CommandNone:        "none",
	CommandSubscribe:   "subscribe",
	CommandUnsubscribe: "unsubscribe",
	CommandMap:         "map",
	CommandUnmap:       "unmap",
	CommandShow:        "show",
	CommandHide:        "hide",
	CommandAssign:      "assign",
}

func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// edge is one allowed step out of a state. The zero edge means no step.
type edge struct {
	cmd Command
	to  InternalState
}

func (e edge) valid() bool { return e.cmd != CommandNone }

type transition struct {
	forward  edge
	backward edge
}

// transitions holds the outgoing edges of every internal state.
// CommandAssign is synchronous; every other command waits for a reply.
var transitions = [internalStateCount]transition{
	StateUnpublished: {},
	StatePublished: {
		forward: edge{CommandSubscribe, StateSubscribed},
	},
	StateSubscribed: {
		forward:  edge{CommandMap, StateMapped},
		backward: edge{CommandUnsubscribe, StatePublished},
	},
	StateMapped: {
		forward:  edge{CommandAssign, StateMappedAndAssigned},
		backward: edge{CommandUnmap, StateSubscribed},
	},
	StateMappedAndAssigned: {
		forward:  edge{CommandShow, StateRendered},
		backward: edge{CommandUnmap, StateSubscribed},
	},
	StateRendered: {
		backward: edge{CommandHide, StateMappedAndAssigned},
	},
}

// replyOutcome describes what an OK reply to a waiting command leads to.
type replyOutcome struct {
	to       InternalState
	indirect bool // whether an indirect result is legal for this command
}

var replyOutcomes = map[Command]replyOutcome{
	CommandSubscribe:   {to: StateSubscribed},
	CommandMap:         {to: StateMapped},
	CommandShow:        {to: StateRendered},
	CommandUnsubscribe: {to: StatePublished, indirect: true},
	CommandUnmap:       {to: StateSubscribed, indirect: true},
	CommandHide:        {to: StateMappedAndAssigned, indirect: true},
}
