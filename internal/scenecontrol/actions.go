package scenecontrol

import (
	"encoding/json"
	"fmt"
)

// ActionType is the kind of a queued reference action.
type ActionType int

const (
	ActionLinkData ActionType = iota
	ActionUnlinkData
)

func (t ActionType) String() string {
	switch t {
	case ActionLinkData:
		return "link_data"
	case ActionUnlinkData:
		return "unlink_data"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ActionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ActionType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "link_data":
		*t = ActionLinkData
	case "unlink_data":
		*t = ActionUnlinkData
	default:
		return fmt.Errorf("unknown action type: %q", string(b))
	}
	return nil
}

// Action is a data-link operation queued on a master scene. Scene operands are
// reference handles resolved when the action executes; SelfReference is the master.
type Action struct {
	Type          ActionType      `json:"type"`
	ProviderScene ReferenceHandle `json:"provider_scene"`
	ProviderID    DataSlotID      `json:"provider_id"`
	ConsumerScene ReferenceHandle `json:"consumer_scene"`
	ConsumerID    DataSlotID      `json:"consumer_id"`
}

// LinkAction returns an action linking a provider slot to a consumer slot.
func LinkAction(providerScene ReferenceHandle, providerID DataSlotID, consumerScene ReferenceHandle, consumerID DataSlotID) Action {
	return Action{
		Type:          ActionLinkData,
		ProviderScene: providerScene,
		ProviderID:    providerID,
		ConsumerScene: consumerScene,
		ConsumerID:    consumerID,
	}
}

// UnlinkAction returns an action unlinking a consumer slot.
func UnlinkAction(consumerScene ReferenceHandle, consumerID DataSlotID) Action {
	return Action{
		Type:          ActionUnlinkData,
		ConsumerScene: consumerScene,
		ConsumerID:    consumerID,
	}
}

// ParseActions decodes a JSON array of actions.
func ParseActions(data []byte) ([]Action, error) {
	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}
	return actions, nil
}

// uses reports whether the action names handle as one of its scenes.
func (a Action) uses(handle ReferenceHandle) bool {
	if a.ConsumerScene == handle {
		return true
	}
	return a.Type == ActionLinkData && a.ProviderScene == handle
}
