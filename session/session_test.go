package session

import (
	"errors"
	"reflect"
	"testing"

	"github.com/josephgoksu/TrackWing/graph"
	"github.com/josephgoksu/TrackWing/models"
	"github.com/josephgoksu/TrackWing/tracking"
	"github.com/spf13/afero"
)

func sp(s string) *string { return &s }

func newTestStore() *Store {
	return NewStore(afero.NewMemMapFs(), "/sessions")
}

func sampleTree(t *testing.T) *tracking.Tree {
	t.Helper()
	tt := tracking.NewRootedTree(*models.NewTask("temp-1", "Root"))
	tt, err := tt.AddChild("temp-1", models.NewTaskNode(*models.NewTask("temp-2", "Child")))
	if err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	tt, err = tt.UpdateTask("temp-2", models.TaskUpdate{
		models.FieldStatus: {From: sp("pending"), To: sp("in-progress")},
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	return tt
}

func TestSaveAndLoadTree(t *testing.T) {
	s := newTestStore()
	tt := sampleTree(t)

	if err := s.SaveTree("work", tt); err != nil {
		t.Fatalf("SaveTree failed: %v", err)
	}
	restored, err := s.LoadTree("work")
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}

	if !reflect.DeepEqual(restored.Pending(), tt.Pending()) {
		t.Error("pending log did not survive save/load")
	}
	if !reflect.DeepEqual(restored.Snapshot().Root(), tt.Snapshot().Root()) {
		t.Error("snapshot did not survive save/load")
	}
}

func TestSaveAndLoadGraph(t *testing.T) {
	s := newTestStore()
	g, err := graph.New(
		[]models.Task{*models.NewTask("A", "A"), *models.NewTask("B", "B")},
		nil,
	)
	if err != nil {
		t.Fatalf("graph.New failed: %v", err)
	}
	tg := tracking.NewGraph(g)
	tg, err = tg.AddDependency("A", "B")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	if err := s.SaveGraph("work", tg); err != nil {
		t.Fatalf("SaveGraph failed: %v", err)
	}
	restored, err := s.LoadGraph("work")
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if !reflect.DeepEqual(restored.Pending(), tg.Pending()) {
		t.Error("pending log did not survive save/load")
	}
}

func TestLoad_MissingSession(t *testing.T) {
	s := newTestStore()
	_, err := s.LoadTree("nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveOverwritesPreviousState(t *testing.T) {
	s := newTestStore()
	tt := sampleTree(t)
	if err := s.SaveTree("work", tt); err != nil {
		t.Fatalf("SaveTree failed: %v", err)
	}

	tt2, err := tt.UpdateTask("temp-1", models.TaskUpdate{
		models.FieldTitle: {From: sp("Root"), To: sp("Renamed")},
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if err := s.SaveTree("work", tt2); err != nil {
		t.Fatalf("second SaveTree failed: %v", err)
	}

	restored, err := s.LoadTree("work")
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}
	if got := restored.Snapshot().Data().Title; got != "Renamed" {
		t.Errorf("title = %s, want the overwritten state", got)
	}
}

func TestListAndDelete(t *testing.T) {
	s := newTestStore()
	tt := sampleTree(t)
	if err := s.SaveTree("alpha", tt); err != nil {
		t.Fatalf("SaveTree failed: %v", err)
	}
	if err := s.SaveTree("beta", tt); err != nil {
		t.Fatalf("SaveTree failed: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("List = %v, want two sessions", names)
	}

	if err := s.Delete("alpha"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.LoadTree("alpha"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected deleted session to be gone, got %v", err)
	}
	// Deleting twice is fine.
	if err := s.Delete("alpha"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestListOnEmptyStore(t *testing.T) {
	s := newTestStore()
	names, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List = %v, want empty", names)
	}
}
