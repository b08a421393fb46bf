package store

import "testing"

func TestListEventsKeysetPagination(t *testing.T) {
	s := newTestStore(t)
	p := mustCreateProject(t, s, "acme")
	pr := mustCreateProtocolRun(t, s, p.ID, "ship-feature")

	for i := 0; i < 5; i++ {
		if _, err := s.CreateEvent(CreateEventInput{
			ProtocolRunID: pr.ID,
			EventType:     "note",
			Message:       "event",
		}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	page1, err := s.ListEvents(pr.ID, 0, 2)
	if err != nil {
		t.Fatalf("ListEvents page1: %v", err)
	}
	if len(page1.Events) != 2 || page1.NextCursor == 0 {
		t.Fatalf("expected 2 events with a next cursor, got %+v", page1)
	}

	page2, err := s.ListEvents(pr.ID, page1.NextCursor, 2)
	if err != nil {
		t.Fatalf("ListEvents page2: %v", err)
	}
	if len(page2.Events) != 2 {
		t.Fatalf("expected 2 events on page2, got %d", len(page2.Events))
	}
	if page2.Events[0].ID <= page1.Events[len(page1.Events)-1].ID {
		t.Fatalf("page2 should start after page1's last id")
	}

	page3, err := s.ListEvents(pr.ID, page2.NextCursor, 2)
	if err != nil {
		t.Fatalf("ListEvents page3: %v", err)
	}
	if len(page3.Events) != 1 || page3.NextCursor != 0 {
		t.Fatalf("expected final page of 1 with no cursor, got %+v", page3)
	}
}

func TestCreateEventRequiresType(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateEvent(CreateEventInput{Message: "no type"})
	if err == nil {
		t.Fatal("expected error for missing event_type")
	}
}
