package scenecontrol

import (
	"sort"
	"testing"
)

const (
	master SceneID = 10
	refA   SceneID = 20
	refB   SceneID = 30
)

type referenceFixture struct {
	table  *SceneTable
	logic  *fakeLogic
	linker *fakeControl
	sender *fakeSender
	refs   *ReferenceLogic
}

// newReferenceFixture sets up master 10 referencing scene 20 (handle 1) and 30 (handle 2).
func newReferenceFixture(t *testing.T) *referenceFixture {
	t.Helper()
	fx := &referenceFixture{
		table:  NewSceneTable(),
		logic:  newFakeLogic(),
		linker: newFakeControl(),
		sender: &fakeSender{},
	}
	fx.refs = NewReferenceLogic(fx.table, fx.logic, fx.linker, fx.sender)

	fx.table.AddScene(master)
	mustSetReference(t, fx.table, SceneReference{Handle: 1, SceneID: refA, RequestedState: Rendered})
	mustSetReference(t, fx.table, SceneReference{Handle: 2, SceneID: refB, RequestedState: Rendered})
	return fx
}

func mustSetReference(t *testing.T, table *SceneTable, ref SceneReference) {
	t.Helper()
	if err := table.SetReference(master, ref); err != nil {
		t.Fatalf("set reference: %v", err)
	}
}

func TestReferencesFollowMasterMapping(t *testing.T) {
	fx := newReferenceFixture(t)
	mustSetReference(t, fx.table, SceneReference{Handle: 1, SceneID: refA, RequestedState: Rendered, RenderOrder: 5})
	fx.logic.infos[master] = SceneInfo{TargetState: Ready, Display: 3, Buffer: 4, RenderOrder: 2}

	fx.refs.Update()

	want := []string{
		"mapping 20 display=3",
		"assignment 20 buffer=4 order=7",
		"state 20 ready",
		"mapping 30 display=3",
		"assignment 30 buffer=4 order=2",
		"state 30 ready",
	}
	if got := fx.logic.take(); !equalStrings(got, want) {
		t.Errorf("requests:\n got %v\nwant %v", got, want)
	}

	fx.refs.Update()
	if got := fx.logic.take(); len(got) != 0 {
		t.Errorf("second update must not repeat requests, got %v", got)
	}

	fx.logic.infos[master] = SceneInfo{TargetState: Ready, Display: 3, Buffer: 4, RenderOrder: 10}
	fx.refs.Update()
	want = []string{
		"assignment 20 buffer=4 order=15",
		"assignment 30 buffer=4 order=10",
	}
	if got := fx.logic.take(); !equalStrings(got, want) {
		t.Errorf("requests after reorder:\n got %v\nwant %v", got, want)
	}
}

func TestReferenceMappingUntouchedWithoutMasterDisplay(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.logic.infos[master] = SceneInfo{TargetState: Available}

	fx.refs.Update()

	want := []string{"state 20 available", "state 30 available"}
	if got := fx.logic.take(); !equalStrings(got, want) {
		t.Errorf("requests:\n got %v\nwant %v", got, want)
	}
}

func TestReferenceStateIsClampedToMaster(t *testing.T) {
	fx := newReferenceFixture(t)
	mustSetReference(t, fx.table, SceneReference{Handle: 2, SceneID: refB, RequestedState: Available})
	fx.logic.infos[master] = SceneInfo{TargetState: Rendered}

	fx.refs.Update()
	want := []string{"state 20 rendered", "state 30 available"}
	if got := fx.logic.take(); !equalStrings(got, want) {
		t.Errorf("requests:\n got %v\nwant %v", got, want)
	}

	fx.logic.infos[master] = SceneInfo{TargetState: Unavailable}
	fx.refs.Update()
	want = []string{"state 20 unavailable", "state 30 unavailable"}
	if got := fx.logic.take(); !equalStrings(got, want) {
		t.Errorf("requests:\n got %v\nwant %v", got, want)
	}
}

// settle answers every outstanding command with OK until the renderer is idle.
func settle(t *testing.T, l *ControlLogic, f *fakeControl) {
	t.Helper()
	for i := 0; len(f.outstanding) > 0; i++ {
		if i > 100 {
			t.Fatal("scenes did not settle")
		}
		ids := make([]SceneID, 0, len(f.outstanding))
		for id := range f.outstanding {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		for _, id := range ids {
			deliver(t, l, f, id, ResultOK)
		}
	}
}

func TestReferenceNeverExceedsMasterTarget(t *testing.T) {
	table := NewSceneTable()
	control := newFakeControl()
	logic := NewControlLogic(control)
	refs := NewReferenceLogic(table, logic, control, &fakeSender{})

	table.AddScene(master)
	table.AddScene(refA)
	mustSetReference(t, table, SceneReference{Handle: 1, SceneID: refA, RequestedState: Rendered})

	logic.ScenePublished(master)
	logic.ScenePublished(refA)
	logic.SetSceneMapping(master, 1)
	logic.SetSceneState(master, Ready)

	for i := 0; i < 3; i++ {
		refs.Update()
		settle(t, logic, control)
	}

	for _, c := range control.take() {
		if c == "show 20" {
			t.Fatal("reference was shown while its master only targets ready")
		}
	}
	if st, _ := logic.SceneStatus(refA); st.State != Ready {
		t.Fatalf("expected reference ready, got %s", st.State)
	}
	if info := logic.SceneInfo(refA); info.Display != 1 {
		t.Errorf("expected reference on display 1, got %d", info.Display)
	}

	logic.SetSceneState(master, Rendered)
	settle(t, logic, control)
	refs.Update()
	settle(t, logic, control)

	shown := false
	for _, c := range control.take() {
		if c == "show 20" {
			shown = true
		}
	}
	if !shown {
		t.Error("reference must be shown once its master targets rendered")
	}
	if st, _ := logic.SceneStatus(refA); st.State != Rendered {
		t.Errorf("expected reference rendered, got %s", st.State)
	}
}

func TestDestroyedMasterReleasesReferences(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.logic.infos[master] = SceneInfo{TargetState: Rendered, Display: 1}
	fx.refs.Update()
	fx.logic.take()

	fx.table.AddScene(refA)
	fx.table.AddScene(refB)
	fx.refs.AddActions(master, []Action{LinkAction(SelfReference, 1, 1, 2)})
	fx.table.RemoveScene(master)
	fx.refs.Update()

	want := []string{"state 20 unavailable", "state 30 unavailable"}
	if got := fx.logic.take(); !equalStrings(got, want) {
		t.Errorf("requests:\n got %v\nwant %v", got, want)
	}
	if cmds := fx.linker.take(); len(cmds) != 0 {
		t.Errorf("actions of a destroyed master must be discarded, got %v", cmds)
	}
	if fx.refs.PendingActions(master) != 0 {
		t.Error("pending actions not cleared")
	}
	if fx.refs.HasAnyReferencedScenes() {
		t.Error("expected no live masters")
	}

	fx.refs.Update()
	if got := fx.logic.take(); len(got) != 0 {
		t.Errorf("destroyed master must be handled once, got %v", got)
	}
}

func TestDestroyedMasterSkipsReferencesNoLongerHeld(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.table.AddScene(refA)
	fx.refs.Update()
	fx.logic.take()

	fx.table.RemoveScene(master)
	fx.refs.Update()

	if got := fx.logic.take(); !equalStrings(got, []string{"state 20 unavailable"}) {
		t.Errorf("only the held reference may be released, got %v", got)
	}
	if _, ok := fx.logic.infos[refB]; ok {
		t.Error("a scene the renderer does not hold must not get a request")
	}
}

func TestRecreatedMasterIsAliveAgain(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()
	fx.table.RemoveScene(master)
	fx.refs.Update()
	if fx.refs.HasAnyReferencedScenes() {
		t.Fatal("expected master destroyed")
	}

	fx.table.AddScene(master)
	mustSetReference(t, fx.table, SceneReference{Handle: 1, SceneID: refA})
	fx.refs.Update()
	if !fx.refs.HasAnyReferencedScenes() {
		t.Error("expected master alive after it came back")
	}
}

func TestPendingActionsRunInOrder(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.AddActions(master, []Action{
		LinkAction(SelfReference, 1, 1, 2),
		UnlinkAction(2, 5),
		LinkAction(1, 3, 2, 4),
	})
	fx.refs.AddActions(master, []Action{UnlinkAction(2, 5)})

	fx.refs.Update()

	want := []string{
		"link 10:1 -> 20:2",
		"unlink 30:5",
		"link 20:3 -> 30:4",
		"unlink 30:5",
	}
	if got := fx.linker.take(); !equalStrings(got, want) {
		t.Errorf("commands:\n got %v\nwant %v", got, want)
	}

	fx.refs.Update()
	if got := fx.linker.take(); len(got) != 0 {
		t.Errorf("actions must run once, got %v", got)
	}
}

func TestActionWithUnknownHandleIsSkipped(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.AddActions(master, []Action{
		LinkAction(7, 1, SelfReference, 2),
		UnlinkAction(9, 1),
		UnlinkAction(SelfReference, 3),
	})

	fx.refs.Update()

	if got := fx.linker.take(); !equalStrings(got, []string{"unlink 10:3"}) {
		t.Errorf("expected only the valid action, got %v", got)
	}
}

func TestActionsOnMasterWithoutReferences(t *testing.T) {
	table := NewSceneTable()
	table.AddScene(master)
	linker := newFakeControl()
	refs := NewReferenceLogic(table, newFakeLogic(), linker, &fakeSender{})

	refs.AddActions(master, []Action{UnlinkAction(SelfReference, 1)})
	refs.Update()

	if got := linker.take(); !equalStrings(got, []string{"unlink 10:1"}) {
		t.Errorf("expected self action to run, got %v", got)
	}
}

func TestReleasedReferenceIsForgotten(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()

	fx.refs.AddActions(master, []Action{
		UnlinkAction(1, 1),
		LinkAction(2, 1, 1, 2),
		UnlinkAction(SelfReference, 2),
	})
	fx.table.ReleaseReference(master, 1)
	fx.refs.Update()

	if got := fx.linker.take(); !equalStrings(got, []string{"unlink 10:2"}) {
		t.Errorf("actions using the released handle must be dropped, got %v", got)
	}

	kept := fx.refs.ExtractAndSendSceneReferenceEvents([]Event{
		{Type: EventSceneStateChanged, SceneID: refA, State: Ready},
		{Type: EventSceneStateChanged, SceneID: refB, State: Ready},
	})
	if len(kept) != 1 || kept[0].SceneID != refA {
		t.Errorf("expected only the released scene's event to pass, got %+v", kept)
	}
}

func TestReferenceMovesToAnotherMaster(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()

	const other SceneID = 11
	fx.table.ReleaseReference(master, 1)
	fx.table.AddScene(other)
	if err := fx.table.SetReference(other, SceneReference{Handle: 1, SceneID: refA}); err != nil {
		t.Fatalf("set reference: %v", err)
	}
	fx.refs.Update()
	fx.sender.take()

	fx.refs.ExtractAndSendSceneReferenceEvents([]Event{{Type: EventSceneStateChanged, SceneID: refA, State: Available}})
	want := []string{"state master=11 ref=20 available"}
	if got := fx.sender.take(); !equalStrings(got, want) {
		t.Errorf("sent:\n got %v\nwant %v", got, want)
	}
}

func TestExtractAndSendSceneReferenceEvents(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()

	in := []Event{
		{Type: EventSceneStateChanged, SceneID: refA, State: Ready},
		{Type: EventSceneStateChanged, SceneID: 99, State: Ready},
		{Type: EventSceneFlushed, SceneID: refA, Version: 5},
		{Type: EventDataLinked, ProviderSceneID: refA, ProviderID: 1, ConsumerSceneID: master, ConsumerID: 2},
		{Type: EventDataLinkFailed, ProviderSceneID: master, ProviderID: 1, ConsumerSceneID: refB, ConsumerID: 2},
		{Type: EventDataUnlinkFailed, ConsumerSceneID: refB, ConsumerID: 2},
		{Type: EventScenePublished, SceneID: refA},
		{Type: EventDataConsumerCreated, SceneID: refA, ConsumerID: 4},
		{Type: EventBufferLinked, ConsumerSceneID: refB, ConsumerID: 1},
		{Type: EventScenePublished, SceneID: master},
	}
	kept := fx.refs.ExtractAndSendSceneReferenceEvents(in)

	if len(kept) != 3 || kept[0].SceneID != 99 || kept[1].SceneID != refA || kept[2].SceneID != master {
		t.Errorf("expected unrelated and publish events to remain, got %+v", kept)
	}
	want := []string{
		"state master=10 ref=20 ready",
		"linked master=10 20:1 -> 10:2 ok=true",
		"linked master=10 10:1 -> 30:2 ok=false",
		"unlinked master=10 30:2 ok=false",
	}
	if got := fx.sender.take(); !equalStrings(got, want) {
		t.Errorf("sent:\n got %v\nwant %v", got, want)
	}
}

func TestPublishEventsOfReferencedScenesStay(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()

	in := []Event{
		{Type: EventScenePublished, SceneID: refA},
		{Type: EventSceneUnpublished, SceneID: refA},
		{Type: EventSceneAssignedToBuffer, SceneID: refA},
		{Type: EventSceneAssignToBufferFailed, SceneID: refB},
		{Type: EventDataProviderCreated, SceneID: refA},
		{Type: EventDataProviderDestroyed, SceneID: refA},
		{Type: EventDataConsumerDestroyed, SceneID: refB},
		{Type: EventBufferLinkFailed, ConsumerSceneID: refA},
	}
	kept := fx.refs.ExtractAndSendSceneReferenceEvents(in)

	if len(kept) != 2 || kept[0].Type != EventScenePublished || kept[1].Type != EventSceneUnpublished {
		t.Errorf("expected publish and unpublish to remain, got %+v", kept)
	}
	if got := fx.sender.take(); len(got) != 0 {
		t.Errorf("nothing must be sent for these events, got %v", got)
	}
}

func TestFlushNotifications(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.table.AddScene(refA)
	fx.table.SetLastAppliedVersion(refA, 7)
	mustSetReference(t, fx.table, SceneReference{Handle: 1, SceneID: refA, FlushNotifications: true})

	fx.refs.Update()
	if got := fx.sender.take(); !equalStrings(got, []string{"flushed master=10 ref=20 version=7"}) {
		t.Errorf("expected last applied version on enable, got %v", got)
	}

	fx.refs.Update()
	if got := fx.sender.take(); len(got) != 0 {
		t.Errorf("enable notification must be sent once, got %v", got)
	}

	fx.refs.ExtractAndSendSceneReferenceEvents([]Event{{Type: EventSceneFlushed, SceneID: refA, Version: 8}})
	if got := fx.sender.take(); !equalStrings(got, []string{"flushed master=10 ref=20 version=8"}) {
		t.Errorf("expected forwarded flush, got %v", got)
	}

	mustSetReference(t, fx.table, SceneReference{Handle: 1, SceneID: refA})
	fx.refs.Update()
	kept := fx.refs.ExtractAndSendSceneReferenceEvents([]Event{{Type: EventSceneFlushed, SceneID: refA, Version: 9}})
	if got := fx.sender.take(); len(got) != 0 {
		t.Errorf("disabled notifications must not be sent, got %v", got)
	}
	if len(kept) != 0 {
		t.Errorf("flush of a reference must be removed, got %+v", kept)
	}
}

func TestMasterExpirationIsEdgeTriggered(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()

	steps := []struct {
		in   []Event
		want []EventType
	}{
		{[]Event{{Type: EventSceneExpired, SceneID: refA}}, []EventType{EventSceneExpired}},
		{[]Event{{Type: EventSceneExpired, SceneID: refB}}, nil},
		{[]Event{{Type: EventSceneRecoveredFromExpiration, SceneID: refA}}, nil},
		{nil, nil},
		{[]Event{{Type: EventSceneRecoveredFromExpiration, SceneID: refB}}, []EventType{EventSceneRecoveredFromExpiration}},
		{[]Event{{Type: EventSceneExpired, SceneID: refA}}, []EventType{EventSceneExpired}},
		{[]Event{{Type: EventSceneStateChanged, SceneID: refA, State: Unavailable}}, []EventType{EventSceneRecoveredFromExpiration}},
	}

	for i, step := range steps {
		kept := fx.refs.ExtractAndSendSceneReferenceEvents(step.in)
		if len(kept) != len(step.want) {
			t.Fatalf("step %d: expected %v, got %+v", i, step.want, kept)
		}
		for j, e := range kept {
			if e.Type != step.want[j] || e.SceneID != master {
				t.Errorf("step %d: expected %s for master, got %+v", i, step.want[j], e)
			}
		}
	}
}

func TestReleasedExpiredReferenceRecoversMaster(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()
	fx.refs.ExtractAndSendSceneReferenceEvents([]Event{{Type: EventSceneExpired, SceneID: refA}})

	fx.table.ReleaseReference(master, 1)
	fx.refs.Update()

	kept := fx.refs.ExtractAndSendSceneReferenceEvents(nil)
	if len(kept) != 1 || kept[0].Type != EventSceneRecoveredFromExpiration || kept[0].SceneID != master {
		t.Errorf("expected master recovery, got %+v", kept)
	}
}

func TestDestroyedMasterStillOwnsReferenceEvents(t *testing.T) {
	fx := newReferenceFixture(t)
	fx.refs.Update()
	fx.table.RemoveScene(master)
	fx.refs.Update()

	kept := fx.refs.ExtractAndSendSceneReferenceEvents([]Event{{Type: EventSceneStateChanged, SceneID: refA, State: Unavailable}})
	if len(kept) != 0 {
		t.Errorf("expected reference event to be removed, got %+v", kept)
	}
	if got := fx.sender.take(); !equalStrings(got, []string{"state master=10 ref=20 unavailable"}) {
		t.Errorf("sent: %v", got)
	}
}

func TestHasAnyReferencedScenes(t *testing.T) {
	table := NewSceneTable()
	refs := NewReferenceLogic(table, newFakeLogic(), newFakeControl(), &fakeSender{})
	if refs.HasAnyReferencedScenes() {
		t.Error("expected no masters initially")
	}

	table.AddScene(master)
	if err := table.SetReference(master, SceneReference{Handle: 1, SceneID: refA}); err != nil {
		t.Fatalf("set reference: %v", err)
	}
	refs.Update()
	if !refs.HasAnyReferencedScenes() {
		t.Error("expected a master after update")
	}
	if got := refs.Masters(); len(got) != 1 || got[0] != master {
		t.Errorf("expected [10], got %v", got)
	}
}
