package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// scene lifecycle
	"scene.requested":      {},
	"scene.command":        {},
	"scene.command_failed": {},
	"scene.reply_ignored":  {},
	"scene.state_changed":  {},
	"scene.published":      {},
	"scene.unpublished":    {},

	// scene references
	"scene_reference.state_changed":    {},
	"scene_reference.flushed":          {},
	"scene_reference.data_linked":      {},
	"scene_reference.data_unlinked":    {},
	"scene_reference.action":           {},
	"scene_reference.master_destroyed": {},
	"scene_reference.master_expired":   {},
	"scene_reference.master_recovered": {},

	// loop
	"loop.started": {},
	"loop.tick":    {},
	"loop.stopped": {},

	// renderer link
	"renderer.connected":     {},
	"renderer.disconnected":  {},
	"renderer.reply_invalid": {},
	"renderer.table_update":  {},

	// operator
	"operator.request": {},
	"operator.token":   {},

	// system
	"system.startup":         {},
	"system.startup_restore": {},
	"system.shutdown":        {},
	"system.error":           {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
