package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/voicegate/voicegate/internal/agent"
	"github.com/voicegate/voicegate/internal/database"
	"github.com/voicegate/voicegate/internal/database/models"
)

// CodeAgent takes coding tasks over the phone and records them for later
// execution. It pins the premium model; task descriptions need the better
// comprehension.
type CodeAgent struct {
	agent.BaseAgent
	tasks database.TaskRepository
}

// NewCodeAgent creates the coding task intake agent.
func NewCodeAgent(tasks database.TaskRepository) *CodeAgent {
	return &CodeAgent{
		BaseAgent: agent.BaseAgent{
			AgentName:        "code",
			AgentDisplayName: "Code-Assistent",
			AgentDescription: "Nimmt Programmier-Aufgaben entgegen und meldet deren Status.",
			AgentGreeting:    "Code-Assistent hier. Welche Aufgabe soll ich aufnehmen?",
			AgentModel:       "premium",
			AgentCaps:        []string{"Aufgaben aufnehmen", "Status melden"},
			AgentKeywords:    []string{"code", "programm", "bug", "feature", "aufgabe", "software"},
		},
		tasks: tasks,
	}
}

func (a *CodeAgent) Instructions() string {
	return "Du bist ein Assistent fuer Programmier-Aufgaben am Telefon. Nimm " +
		"Aufgaben mit aufgabe_erstellen auf, frage bei unklaren Beschreibungen " +
		"nach und beantworte Statusfragen ueber aufgaben_auflisten und " +
		"aufgaben_status. Du fuehrst selbst keinen Code aus. Sprich nur Deutsch."
}

func (a *CodeAgent) Tools() []agent.ToolDef {
	return []agent.ToolDef{
		{
			Name:        "aufgabe_erstellen",
			Description: "Speichert eine neue Programmier-Aufgabe.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"beschreibung":{"type":"string"}},"required":["beschreibung"]}`),
		},
		{
			Name:        "aufgaben_auflisten",
			Description: "Zaehlt die zuletzt aufgenommenen Aufgaben mit Status auf.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "aufgaben_status",
			Description: "Meldet den Status einer Aufgabe.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"aufgabe_id":{"type":"string"}},"required":["aufgabe_id"]}`),
		},
	}
}

func (a *CodeAgent) ExecuteTool(ctx context.Context, call *agent.CallContext, name string, args json.RawMessage) (agent.ToolResult, error) {
	switch name {
	case "aufgabe_erstellen":
		var params struct {
			Beschreibung string `json:"beschreibung"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		if params.Beschreibung == "" {
			return nil, fmt.Errorf("Beschreibung fehlt")
		}
		task := &models.Task{
			ID:          uuid.NewString(),
			AgentName:   a.Name(),
			Description: params.Beschreibung,
			Status:      "pending",
			CallerID:    call.CallerID,
		}
		if err := a.tasks.Create(ctx, task); err != nil {
			return nil, err
		}
		return agent.Text{Message: fmt.Sprintf("Aufgabe aufgenommen, Kennung %s.", shortID(task.ID))}, nil

	case "aufgaben_auflisten":
		tasks, err := a.tasks.List(ctx, 10)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			return agent.Text{Message: "Es sind keine Aufgaben vorhanden."}, nil
		}
		var b strings.Builder
		b.WriteString("Aufgaben: ")
		for i, t := range tasks {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s (Status %s)", shortID(t.ID), t.Description, t.Status)
		}
		return agent.Text{Message: b.String()}, nil

	case "aufgaben_status":
		var params struct {
			AufgabeID string `json:"aufgabe_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		task, err := a.findTask(ctx, params.AufgabeID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return agent.Text{Message: fmt.Sprintf("Keine Aufgabe mit Kennung %s gefunden.", params.AufgabeID)}, nil
		}
		msg := fmt.Sprintf("Aufgabe %s hat den Status %s.", shortID(task.ID), task.Status)
		if task.Result != "" {
			msg += " Ergebnis: " + task.Result
		}
		if task.Error != "" {
			msg += " Fehler: " + task.Error
		}
		return agent.Text{Message: msg}, nil

	default:
		return nil, fmt.Errorf("unbekanntes Werkzeug %q", name)
	}
}

// findTask resolves either a full or a spoken short id.
func (a *CodeAgent) findTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := a.tasks.GetByID(ctx, id)
	if err != nil || task != nil {
		return task, err
	}
	tasks, err := a.tasks.List(ctx, 50)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if strings.HasPrefix(tasks[i].ID, id) {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
