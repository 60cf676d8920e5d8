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

// IdeasAgent captures ideas and project updates spoken on the phone.
type IdeasAgent struct {
	agent.BaseAgent
	ideas    database.IdeaRepository
	projects database.ProjectRepository
}

// NewIdeasAgent creates the idea capture agent.
func NewIdeasAgent(ideas database.IdeaRepository, projects database.ProjectRepository) *IdeasAgent {
	return &IdeasAgent{
		BaseAgent: agent.BaseAgent{
			AgentName:        "ideas",
			AgentDisplayName: "Ideen",
			AgentDescription: "Nimmt Ideen auf, verwaltet Notizen und Projekte.",
			AgentGreeting:    "Hier ist der Ideen-Assistent. Was soll ich festhalten?",
			AgentCaps:        []string{"Ideen erfassen", "Notizen anhaengen", "Projekte auflisten"},
			AgentKeywords:    []string{"idee", "einfall", "notiz", "projekt", "gedanke"},
		},
		ideas:    ideas,
		projects: projects,
	}
}

func (a *IdeasAgent) Instructions() string {
	return "Du bist ein Assistent fuer Ideen und Projekte am Telefon. Erfasse neue " +
		"Ideen mit idee_erfassen, haenge Notizen mit notiz_hinzufuegen an und " +
		"beantworte Fragen zu bestehenden Ideen und Projekten ueber ideen_auflisten " +
		"und projekte_auflisten. Fasse dich kurz und sprich nur Deutsch."
}

func (a *IdeasAgent) Tools() []agent.ToolDef {
	return []agent.ToolDef{
		{
			Name:        "idee_erfassen",
			Description: "Speichert eine neue Idee.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"titel":{"type":"string"},"beschreibung":{"type":"string"},"kategorie":{"type":"string"}},"required":["titel"]}`),
		},
		{
			Name:        "ideen_auflisten",
			Description: "Zaehlt die zuletzt erfassten Ideen auf.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "notiz_hinzufuegen",
			Description: "Haengt eine Notiz an eine bestehende Idee an.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"idee_id":{"type":"string"},"notiz":{"type":"string"}},"required":["idee_id","notiz"]}`),
		},
		{
			Name:        "projekte_auflisten",
			Description: "Zaehlt die laufenden Projekte mit Status auf.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (a *IdeasAgent) ExecuteTool(ctx context.Context, call *agent.CallContext, name string, args json.RawMessage) (agent.ToolResult, error) {
	switch name {
	case "idee_erfassen":
		var params struct {
			Titel        string `json:"titel"`
			Beschreibung string `json:"beschreibung"`
			Kategorie    string `json:"kategorie"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		if params.Titel == "" {
			return nil, fmt.Errorf("Titel fehlt")
		}
		idea := &models.Idea{
			ID:          uuid.NewString(),
			Title:       params.Titel,
			Description: params.Beschreibung,
			Category:    params.Kategorie,
			Status:      "new",
		}
		if err := a.ideas.Create(ctx, idea); err != nil {
			return nil, err
		}
		return agent.Text{Message: fmt.Sprintf("Idee %q gespeichert.", params.Titel)}, nil

	case "ideen_auflisten":
		ideas, err := a.ideas.List(ctx, 10)
		if err != nil {
			return nil, err
		}
		if len(ideas) == 0 {
			return agent.Text{Message: "Es sind noch keine Ideen erfasst."}, nil
		}
		var b strings.Builder
		b.WriteString("Die letzten Ideen: ")
		for i, idea := range ideas {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s (Status %s)", idea.Title, idea.Status)
		}
		return agent.Text{Message: b.String()}, nil

	case "notiz_hinzufuegen":
		var params struct {
			IdeeID string `json:"idee_id"`
			Notiz  string `json:"notiz"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		if err := a.ideas.AppendNote(ctx, params.IdeeID, params.Notiz); err != nil {
			return nil, err
		}
		return agent.Text{Message: "Notiz gespeichert."}, nil

	case "projekte_auflisten":
		projects, err := a.projects.List(ctx, 10)
		if err != nil {
			return nil, err
		}
		if len(projects) == 0 {
			return agent.Text{Message: "Es gibt derzeit keine Projekte."}, nil
		}
		var b strings.Builder
		b.WriteString("Projekte: ")
		for i, p := range projects {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s (Status %s)", p.Title, p.Status)
		}
		return agent.Text{Message: b.String()}, nil

	default:
		return nil, fmt.Errorf("unbekanntes Werkzeug %q", name)
	}
}
