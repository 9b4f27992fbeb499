package mqtt

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
)

// Command types on the commands topic.
const (
	CmdSubscribeScene      = "subscribe_scene"
	CmdUnsubscribeScene    = "unsubscribe_scene"
	CmdMapScene            = "map_scene"
	CmdUnmapScene          = "unmap_scene"
	CmdShowScene           = "show_scene"
	CmdHideScene           = "hide_scene"
	CmdAssignSceneToBuffer = "assign_scene_to_buffer"
	CmdLinkData            = "link_data"
	CmdUnlinkData          = "unlink_data"
)

// CommandMessage is one command sent to the renderer.
type CommandMessage struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	SceneID  sc.SceneID `json:"scene_id,omitempty"`
	Indirect bool       `json:"indirect,omitempty"`

	Display     sc.DisplayHandle         `json:"display,omitempty"`
	Buffer      sc.OffscreenBufferHandle `json:"buffer,omitempty"`
	RenderOrder int32                    `json:"render_order,omitempty"`

	ProviderSceneID sc.SceneID    `json:"provider_scene_id,omitempty"`
	ProviderID      sc.DataSlotID `json:"provider_id,omitempty"`
	ConsumerSceneID sc.SceneID    `json:"consumer_scene_id,omitempty"`
	ConsumerID      sc.DataSlotID `json:"consumer_id,omitempty"`

	Timestamp string `json:"ts"`
}

// failedReplies maps the commands that wait for a reply to the reply reporting
// their failure.
var failedReplies = map[string]sc.ReplyType{
	CmdSubscribeScene:   sc.ReplySceneSubscribeFailed,
	CmdUnsubscribeScene: sc.ReplySceneUnsubscribeFailed,
	CmdMapScene:         sc.ReplySceneMapFailed,
	CmdUnmapScene:       sc.ReplySceneUnmapFailed,
	CmdShowScene:        sc.ReplySceneShowFailed,
	CmdHideScene:        sc.ReplySceneHideFailed,
}

// CommandPublisher sends scene commands to the renderer over MQTT.
// Replies arrive asynchronously on the replies topic.
//
// A state command that cannot be published is answered locally with its
// failure reply so the control logic retries it. While the broker is
// unreachable the failure is held back and delivered by Redeliver.
type CommandPublisher struct {
	transport Transport
	topic     string
	inbox     Inbox

	mu     sync.Mutex
	parked map[sc.SceneID]sc.Reply

	sent   atomic.Uint64
	failed atomic.Uint64
}

var _ sc.SceneStateControl = (*CommandPublisher)(nil)

// NewCommandPublisher creates a publisher for topics.Commands().
func NewCommandPublisher(transport Transport, topics Topics) *CommandPublisher {
	return &CommandPublisher{
		transport: transport,
		topic:     topics.Commands(),
		parked:    make(map[sc.SceneID]sc.Reply),
	}
}

// SetInbox sets where failure replies of unpublished commands go.
func (p *CommandPublisher) SetInbox(inbox Inbox) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbox = inbox
}

func (p *CommandPublisher) publish(m CommandMessage) bool {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(m)
	if err == nil {
		err = p.transport.Publish(p.topic, false, b)
	}
	if err != nil {
		p.failed.Add(1)
		log.Printf("mqtt: failed to publish %s for scene %d: %v", m.Type, m.SceneID, err)
		p.fail(m, err)
		return false
	}
	p.sent.Add(1)
	return true
}

func (p *CommandPublisher) fail(m CommandMessage, err error) {
	rt, ok := failedReplies[m.Type]
	if !ok {
		return
	}
	r := sc.Reply{Type: rt, SceneID: m.SceneID}

	p.mu.Lock()
	inbox := p.inbox
	if inbox == nil {
		p.mu.Unlock()
		return
	}
	if !errors.Is(err, ErrNotConnected) {
		p.mu.Unlock()
		inbox.DeliverReply(r)
		return
	}
	// One command per scene waits for a reply, so the latest failure replaces any older one.
	p.parked[m.SceneID] = r
	p.mu.Unlock()

	// The connection may have come back between the failed publish and parking.
	if p.transport.IsConnected() {
		p.Redeliver()
	}
}

// Redeliver hands the failures held back while disconnected to the inbox,
// in scene order. It is registered as a reconnect hook.
func (p *CommandPublisher) Redeliver() {
	p.mu.Lock()
	inbox := p.inbox
	if inbox == nil || len(p.parked) == 0 {
		p.mu.Unlock()
		return
	}
	replies := make([]sc.Reply, 0, len(p.parked))
	for _, r := range p.parked {
		replies = append(replies, r)
	}
	p.parked = make(map[sc.SceneID]sc.Reply)
	p.mu.Unlock()

	sort.Slice(replies, func(i, j int) bool { return replies[i].SceneID < replies[j].SceneID })
	for _, r := range replies {
		inbox.DeliverReply(r)
	}
}

// Parked returns the number of failures waiting for a reconnect.
func (p *CommandPublisher) Parked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.parked)
}

func (p *CommandPublisher) SubscribeScene(id sc.SceneID) {
	p.publish(CommandMessage{Type: CmdSubscribeScene, SceneID: id})
}

func (p *CommandPublisher) UnsubscribeScene(id sc.SceneID, indirect bool) {
	p.publish(CommandMessage{Type: CmdUnsubscribeScene, SceneID: id, Indirect: indirect})
}

func (p *CommandPublisher) MapScene(id sc.SceneID, display sc.DisplayHandle) {
	p.publish(CommandMessage{Type: CmdMapScene, SceneID: id, Display: display})
}

func (p *CommandPublisher) UnmapScene(id sc.SceneID) {
	p.publish(CommandMessage{Type: CmdUnmapScene, SceneID: id})
}

func (p *CommandPublisher) ShowScene(id sc.SceneID) {
	p.publish(CommandMessage{Type: CmdShowScene, SceneID: id})
}

func (p *CommandPublisher) HideScene(id sc.SceneID) {
	p.publish(CommandMessage{Type: CmdHideScene, SceneID: id})
}

// AssignSceneToDisplayBuffer reports success once the broker accepted the command.
func (p *CommandPublisher) AssignSceneToDisplayBuffer(id sc.SceneID, buffer sc.OffscreenBufferHandle, renderOrder int32) bool {
	return p.publish(CommandMessage{Type: CmdAssignSceneToBuffer, SceneID: id, Buffer: buffer, RenderOrder: renderOrder})
}

func (p *CommandPublisher) LinkData(providerScene sc.SceneID, providerID sc.DataSlotID, consumerScene sc.SceneID, consumerID sc.DataSlotID) {
	p.publish(CommandMessage{
		Type:            CmdLinkData,
		ProviderSceneID: providerScene,
		ProviderID:      providerID,
		ConsumerSceneID: consumerScene,
		ConsumerID:      consumerID,
	})
}

func (p *CommandPublisher) UnlinkData(consumerScene sc.SceneID, consumerID sc.DataSlotID) {
	p.publish(CommandMessage{Type: CmdUnlinkData, ConsumerSceneID: consumerScene, ConsumerID: consumerID})
}

// Sent returns the number of commands the broker accepted.
func (p *CommandPublisher) Sent() uint64 { return p.sent.Load() }

// Failed returns the number of commands that could not be published.
func (p *CommandPublisher) Failed() uint64 { return p.failed.Load() }
