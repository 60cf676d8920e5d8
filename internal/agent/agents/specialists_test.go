package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/voicegate/voicegate/internal/agent"
	"github.com/voicegate/voicegate/internal/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIdeasAgentCaptureAndList(t *testing.T) {
	db := testDB(t)
	a := NewIdeasAgent(database.NewIdeaRepository(db), database.NewProjectRepository(db))
	call := &agent.CallContext{CallID: "c1", CallerID: "+49151"}
	ctx := context.Background()

	res, err := a.ExecuteTool(ctx, call, "idee_erfassen",
		json.RawMessage(`{"titel":"Balkonkraftwerk","beschreibung":"Solar am Balkon","kategorie":"haus"}`))
	if err != nil {
		t.Fatalf("idee_erfassen: %v", err)
	}
	if txt, ok := res.(agent.Text); !ok || !strings.Contains(txt.Message, "Balkonkraftwerk") {
		t.Errorf("result = %#v", res)
	}

	res, err = a.ExecuteTool(ctx, call, "ideen_auflisten", nil)
	if err != nil {
		t.Fatalf("ideen_auflisten: %v", err)
	}
	if txt, ok := res.(agent.Text); !ok || !strings.Contains(txt.Message, "Balkonkraftwerk") {
		t.Errorf("list = %#v", res)
	}

	if _, err := a.ExecuteTool(ctx, call, "idee_erfassen", json.RawMessage(`{}`)); err == nil {
		t.Error("missing title should fail")
	}
}

func TestIdeasAgentAppendNote(t *testing.T) {
	db := testDB(t)
	ideaRepo := database.NewIdeaRepository(db)
	a := NewIdeasAgent(ideaRepo, database.NewProjectRepository(db))
	call := &agent.CallContext{CallID: "c1"}
	ctx := context.Background()

	if _, err := a.ExecuteTool(ctx, call, "idee_erfassen", json.RawMessage(`{"titel":"T"}`)); err != nil {
		t.Fatalf("idee_erfassen: %v", err)
	}
	ideas, err := ideaRepo.List(ctx, 1)
	if err != nil || len(ideas) != 1 {
		t.Fatalf("List: %v, %d", err, len(ideas))
	}

	res, err := a.ExecuteTool(ctx, call, "notiz_hinzufuegen",
		json.RawMessage(`{"idee_id":"`+ideas[0].ID+`","notiz":"mehr Details"}`))
	if err != nil {
		t.Fatalf("notiz_hinzufuegen: %v", err)
	}
	if _, ok := res.(agent.Text); !ok {
		t.Errorf("result = %#v", res)
	}

	got, _ := ideaRepo.GetByID(ctx, ideas[0].ID)
	if !strings.Contains(got.Notes, "mehr Details") {
		t.Errorf("notes = %s", got.Notes)
	}
}

func TestCodeAgentTaskFlow(t *testing.T) {
	db := testDB(t)
	taskRepo := database.NewTaskRepository(db)
	a := NewCodeAgent(taskRepo)
	call := &agent.CallContext{CallID: "c1", CallerID: "+49151"}
	ctx := context.Background()

	res, err := a.ExecuteTool(ctx, call, "aufgabe_erstellen",
		json.RawMessage(`{"beschreibung":"Parser refaktorieren"}`))
	if err != nil {
		t.Fatalf("aufgabe_erstellen: %v", err)
	}
	if _, ok := res.(agent.Text); !ok {
		t.Fatalf("result = %#v", res)
	}

	tasks, err := taskRepo.List(ctx, 10)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("List: %v, %d", err, len(tasks))
	}
	if tasks[0].Status != "pending" || tasks[0].CallerID != "+49151" {
		t.Errorf("task = %+v", tasks[0])
	}

	// Status by spoken short id.
	short := tasks[0].ID[:8]
	res, err = a.ExecuteTool(ctx, call, "aufgaben_status",
		json.RawMessage(`{"aufgabe_id":"`+short+`"}`))
	if err != nil {
		t.Fatalf("aufgaben_status: %v", err)
	}
	if txt, ok := res.(agent.Text); !ok || !strings.Contains(txt.Message, "pending") {
		t.Errorf("status = %#v", res)
	}

	if _, err := a.ExecuteTool(ctx, call, "aufgabe_erstellen", json.RawMessage(`{}`)); err == nil {
		t.Error("missing description should fail")
	}
}

func TestCodeAgentPinsPremium(t *testing.T) {
	a := NewCodeAgent(nil)
	if a.PinnedModel() != "premium" {
		t.Errorf("pinned = %q, want premium", a.PinnedModel())
	}
}

func TestBestellAgentOrderFlow(t *testing.T) {
	db := testDB(t)
	orderRepo := database.NewOrderRepository(db)
	a := NewBestellAgent(orderRepo)
	call := &agent.CallContext{CallID: "c1", CallerID: "+49151"}
	ctx := context.Background()

	res, err := a.ExecuteTool(ctx, call, "bestellung_aufnehmen",
		json.RawMessage(`{"kunde":"Sanitaer Weber"}`))
	if err != nil {
		t.Fatalf("bestellung_aufnehmen: %v", err)
	}
	if txt, ok := res.(agent.Text); !ok || !strings.Contains(txt.Message, "Sanitaer Weber") {
		t.Fatalf("result = %#v", res)
	}

	orders, err := orderRepo.List(ctx, 1)
	if err != nil || len(orders) != 1 {
		t.Fatalf("List: %v, %d", err, len(orders))
	}
	if orders[0].Status != "open" || orders[0].CallerID != "+49151" {
		t.Errorf("order = %+v", orders[0])
	}
	short := orders[0].ID[:8]

	// Closing an empty order is refused.
	res, err = a.ExecuteTool(ctx, call, "bestellung_abschliessen",
		json.RawMessage(`{"bestell_id":"`+short+`"}`))
	if err != nil {
		t.Fatalf("bestellung_abschliessen: %v", err)
	}
	if txt := res.(agent.Text); !strings.Contains(txt.Message, "keine Positionen") {
		t.Errorf("empty close = %#v", res)
	}

	res, err = a.ExecuteTool(ctx, call, "position_hinzufuegen",
		json.RawMessage(`{"bestell_id":"`+short+`","artikel":"Eckventil 1/2 Zoll","menge":12,"hersteller":"Viega"}`))
	if err != nil {
		t.Fatalf("position_hinzufuegen: %v", err)
	}
	if txt := res.(agent.Text); !strings.Contains(txt.Message, "12 Stueck") || !strings.Contains(txt.Message, "Viega") {
		t.Errorf("position = %#v", res)
	}

	res, err = a.ExecuteTool(ctx, call, "bestellung_abschliessen",
		json.RawMessage(`{"bestell_id":"`+short+`"}`))
	if err != nil {
		t.Fatalf("bestellung_abschliessen: %v", err)
	}
	if txt := res.(agent.Text); !strings.Contains(txt.Message, "1 Positionen") {
		t.Errorf("close = %#v", res)
	}

	got, _ := orderRepo.GetByID(ctx, orders[0].ID)
	if got.Status != "submitted" || !strings.Contains(got.Items, "Eckventil") {
		t.Errorf("order after close = %+v", got)
	}

	// Submitted orders take no further positions.
	res, err = a.ExecuteTool(ctx, call, "position_hinzufuegen",
		json.RawMessage(`{"bestell_id":"`+short+`","artikel":"Rohr","menge":1}`))
	if err != nil {
		t.Fatalf("position_hinzufuegen: %v", err)
	}
	if txt := res.(agent.Text); !strings.Contains(txt.Message, "abgeschlossen") {
		t.Errorf("late position = %#v", res)
	}
}

func TestBestellAgentValidation(t *testing.T) {
	db := testDB(t)
	a := NewBestellAgent(database.NewOrderRepository(db))
	call := &agent.CallContext{CallID: "c1"}
	ctx := context.Background()

	if _, err := a.ExecuteTool(ctx, call, "bestellung_aufnehmen", json.RawMessage(`{}`)); err == nil {
		t.Error("missing customer should fail")
	}
	if _, err := a.ExecuteTool(ctx, call, "position_hinzufuegen",
		json.RawMessage(`{"bestell_id":"x","artikel":"Rohr"}`)); err == nil {
		t.Error("missing quantity should fail")
	}

	res, err := a.ExecuteTool(ctx, call, "bestellungen_auflisten", nil)
	if err != nil {
		t.Fatalf("bestellungen_auflisten: %v", err)
	}
	if txt := res.(agent.Text); !strings.Contains(txt.Message, "keine Bestellungen") {
		t.Errorf("empty list = %#v", res)
	}
}

func TestSpecialistIntentMatching(t *testing.T) {
	db := testDB(t)
	ideas := NewIdeasAgent(database.NewIdeaRepository(db), database.NewProjectRepository(db))
	code := NewCodeAgent(database.NewTaskRepository(db))
	bestell := NewBestellAgent(database.NewOrderRepository(db))

	if s := ideas.MatchesIntent("ich habe eine neue Idee"); s <= 0 {
		t.Errorf("ideas score = %f", s)
	}
	if s := code.MatchesIntent("da ist ein Bug im Code"); s < 0.59 {
		t.Errorf("code score = %f", s)
	}
	if s := bestell.MatchesIntent("ich moechte zehn Stueck bestellen"); s < 0.59 {
		t.Errorf("bestell score = %f", s)
	}
}
