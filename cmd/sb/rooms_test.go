package main

import (
	"strings"
	"testing"
)

func TestRoomsList_OnlyRooms(t *testing.T) {
	useFakeGateway(t, newFakeGateway())

	out, err := runCmd(t, "", "rooms", "list")
	if err != nil {
		t.Fatalf("rooms list: %v", err)
	}
	if !strings.Contains(out, "Lab") {
		t.Errorf("output missing room: %s", out)
	}
	if strings.Contains(out, "Ava") {
		t.Errorf("output lists an agent: %s", out)
	}
}

func TestRoomsCreate(t *testing.T) {
	fake := newFakeGateway()
	useFakeGateway(t, fake)

	out, err := runCmd(t, "", "rooms", "create", "Book Club", "--agent", "Ava", "--note", "Weekly", "--no-backchanneling")
	if err != nil {
		t.Fatalf("rooms create: %v", err)
	}
	if len(fake.created) != 1 {
		t.Fatalf("created = %d", len(fake.created))
	}
	req := fake.created[0]
	if req.Name != "Book Club" || req.Note != "Weekly" || len(req.AgentIDs) != 1 || req.AgentIDs[0] != testAgentID {
		t.Errorf("request = %+v", req)
	}
	if req.Backchanneling == nil || *req.Backchanneling {
		t.Error("backchanneling should be off")
	}
	if !strings.Contains(out, "Created room Book Club") || !strings.Contains(out, "with 1 agents") {
		t.Errorf("output = %q", out)
	}
}

func TestRoomsCreate_RejectsRoomMember(t *testing.T) {
	fake := newFakeGateway()
	useFakeGateway(t, fake)

	if _, err := runCmd(t, "", "rooms", "create", "Nested", "--agent", "Lab"); err == nil {
		t.Fatal("expected error for a room as member")
	}
	if len(fake.created) != 0 {
		t.Error("room created")
	}
}

func TestRoomsDelete(t *testing.T) {
	fake := newFakeGateway()
	fake.status = "Room deleted."
	useFakeGateway(t, fake)

	out, err := runCmd(t, "", "rooms", "delete", "Lab")
	if err != nil {
		t.Fatalf("rooms delete: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != testRoomID {
		t.Errorf("deleted = %q", fake.deleted)
	}
	if strings.TrimSpace(out) != "Room deleted." {
		t.Errorf("output = %q", out)
	}
}
