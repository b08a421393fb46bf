package store

import "testing"

func TestCreateClarificationIsIdempotentByKey(t *testing.T) {
	s := newTestStore(t)
	p := mustCreateProject(t, s, "acme")
	pr := mustCreateProtocolRun(t, s, p.ID, "ship-feature")

	in := CreateClarificationInput{
		Scope:         "protocol",
		ProjectID:     p.ID,
		ProtocolRunID: pr.ID,
		Key:           "which-registry",
		Question:      "Which container registry should the image be pushed to?",
		Blocking:      true,
	}
	first, err := s.CreateClarification(in)
	if err != nil {
		t.Fatalf("CreateClarification first: %v", err)
	}
	second, err := s.CreateClarification(in)
	if err != nil {
		t.Fatalf("CreateClarification second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected idempotent clarification, got ids %d and %d", first.ID, second.ID)
	}
}

func TestAnswerClarificationRejectsDoubleAnswer(t *testing.T) {
	s := newTestStore(t)
	p := mustCreateProject(t, s, "acme")
	pr := mustCreateProtocolRun(t, s, p.ID, "ship-feature")

	c, err := s.CreateClarification(CreateClarificationInput{
		Scope: "protocol", ProjectID: p.ID, ProtocolRunID: pr.ID, Key: "target-env",
	})
	if err != nil {
		t.Fatalf("CreateClarification: %v", err)
	}

	if err := s.AnswerClarification(c.ID, "staging", "operator"); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := s.AnswerClarification(c.ID, "prod", "operator"); err == nil {
		t.Fatal("expected error answering an already-answered clarification")
	}
}

func TestListOpenClarificationsExcludesAnswered(t *testing.T) {
	s := newTestStore(t)
	p := mustCreateProject(t, s, "acme")
	pr := mustCreateProtocolRun(t, s, p.ID, "ship-feature")

	open, err := s.CreateClarification(CreateClarificationInput{Scope: "protocol", ProjectID: p.ID, ProtocolRunID: pr.ID, Key: "a"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	_, err = s.CreateClarification(CreateClarificationInput{Scope: "protocol", ProjectID: p.ID, ProtocolRunID: pr.ID, Key: "b"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if err := s.AnswerClarification(open.ID, "yes", "op"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	openList, err := s.ListOpenClarifications(pr.ID)
	if err != nil {
		t.Fatalf("ListOpenClarifications: %v", err)
	}
	if len(openList) != 1 || openList[0].Key != "b" {
		t.Fatalf("expected only 'b' still open, got %+v", openList)
	}
}
