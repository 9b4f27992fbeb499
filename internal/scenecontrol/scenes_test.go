package scenecontrol

import (
	"encoding/json"
	"testing"
)

func TestSceneTableReferences(t *testing.T) {
	table := NewSceneTable()

	if err := table.SetReference(1, SceneReference{Handle: 1, SceneID: 2}); err == nil {
		t.Error("expected error for unknown master")
	}

	table.AddScene(1)
	cases := []SceneReference{
		{Handle: SelfReference, SceneID: 2},
		{Handle: 1, SceneID: InvalidSceneID},
		{Handle: 1, SceneID: 1},
	}
	for _, ref := range cases {
		if err := table.SetReference(1, ref); err == nil {
			t.Errorf("expected error for %+v", ref)
		}
	}

	for _, ref := range []SceneReference{
		{Handle: 3, SceneID: 5},
		{Handle: 1, SceneID: 7},
		{Handle: 2, SceneID: 6},
	} {
		if err := table.SetReference(1, ref); err != nil {
			t.Fatalf("set reference: %v", err)
		}
	}

	refs := table.SceneReferences(1)
	if len(refs) != 3 || refs[0].Handle != 1 || refs[1].Handle != 2 || refs[2].Handle != 3 {
		t.Fatalf("expected references ordered by handle, got %+v", refs)
	}

	table.ReleaseReference(1, 2)
	if _, ok := table.SceneReference(1, 2); ok {
		t.Error("released reference still present")
	}
	if ref, ok := table.SceneReference(1, 3); !ok || ref.SceneID != 5 {
		t.Errorf("unexpected reference %+v", ref)
	}

	table.RemoveScene(1)
	if table.HasScene(1) || table.SceneReferences(1) != nil {
		t.Error("removed scene must drop its references")
	}
}

func TestSceneTableApply(t *testing.T) {
	table := NewSceneTable()
	updates := []TableUpdate{
		{Type: UpdateSceneReceived, SceneID: 4},
		{Type: UpdateSceneReceived, SceneID: 2},
		{Type: UpdateReferenceAllocated, SceneID: 4, Reference: SceneReference{Handle: 1, SceneID: 2, RequestedState: Ready}},
		{Type: UpdateReferenceChanged, SceneID: 4, Reference: SceneReference{Handle: 1, SceneID: 2, RequestedState: Rendered, RenderOrder: 3}},
		{Type: UpdateSceneVersionApplied, SceneID: 2, Version: 9},
	}
	for _, u := range updates {
		if err := table.Apply(u); err != nil {
			t.Fatalf("apply %s: %v", u.Type, err)
		}
	}

	if ids := table.SceneIDs(); len(ids) != 2 || ids[0] != 2 || ids[1] != 4 {
		t.Errorf("expected [2 4], got %v", ids)
	}
	ref, ok := table.SceneReference(4, 1)
	if !ok || ref.RequestedState != Rendered || ref.RenderOrder != 3 {
		t.Errorf("unexpected reference %+v", ref)
	}
	if v := table.LastAppliedVersion(2); v != 9 {
		t.Errorf("expected version 9, got %d", v)
	}
	if v := table.LastAppliedVersion(8); v != InvalidVersionTag {
		t.Errorf("unknown scene must report invalid version, got %d", v)
	}

	if err := table.Apply(TableUpdate{Type: UpdateReferenceReleased, SceneID: 4, Reference: SceneReference{Handle: 1}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := table.SceneReference(4, 1); ok {
		t.Error("expected reference released")
	}

	if err := table.Apply(TableUpdate{Type: "scene_teleported"}); err == nil {
		t.Error("expected error for unknown update")
	}
	if err := table.Apply(TableUpdate{Type: UpdateSceneDestroyed, SceneID: 4}); err != nil || table.HasScene(4) {
		t.Errorf("expected scene 4 destroyed, err=%v", err)
	}
}

func TestTableUpdateDecoding(t *testing.T) {
	var u TableUpdate
	raw := `{"type":"reference_allocated","scene_id":4,"reference":{"handle":2,"scene_id":9,"requested_state":"ready","render_order":-1,"flush_notifications":true}}`
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !IsTableUpdate(string(u.Type)) {
		t.Errorf("%q should be a table update", u.Type)
	}
	want := SceneReference{Handle: 2, SceneID: 9, RequestedState: Ready, RenderOrder: -1, FlushNotifications: true}
	if u.Reference != want {
		t.Errorf("expected %+v, got %+v", want, u.Reference)
	}
	if IsTableUpdate("scene_subscribed") {
		t.Error("replies are not table updates")
	}
}

func TestParseActions(t *testing.T) {
	actions, err := ParseActions([]byte(`[
		{"type":"link_data","provider_scene":0,"provider_id":1,"consumer_scene":2,"consumer_id":3},
		{"type":"unlink_data","consumer_scene":2,"consumer_id":3}
	]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(actions) != 2 || actions[0] != LinkAction(SelfReference, 1, 2, 3) || actions[1] != UnlinkAction(2, 3) {
		t.Errorf("unexpected actions %+v", actions)
	}
	if _, err := ParseActions([]byte(`[{"type":"teleport"}]`)); err == nil {
		t.Error("expected error for unknown action type")
	}
}
