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

// BestellAgent takes customer orders over the phone, position by position.
type BestellAgent struct {
	agent.BaseAgent
	orders database.OrderRepository
}

// NewBestellAgent creates the order intake agent.
func NewBestellAgent(orders database.OrderRepository) *BestellAgent {
	return &BestellAgent{
		BaseAgent: agent.BaseAgent{
			AgentName:        "bestell",
			AgentDisplayName: "Bestellservice",
			AgentDescription: "Nimmt Bestellungen mit Artikeln, Mengen und Herstellern auf.",
			AgentGreeting:    "Bestellservice, guten Tag. Fuer welchen Kunden darf ich eine Bestellung aufnehmen?",
			AgentCaps:        []string{"Bestellungen aufnehmen", "Positionen ergaenzen", "Bestellungen auflisten"},
			AgentKeywords: []string{
				"bestellen", "bestellung", "artikel", "produkt", "hersteller",
				"lieferung", "stueck", "menge", "katalog", "preis",
			},
		},
		orders: orders,
	}
}

func (a *BestellAgent) Instructions() string {
	return "Du bist der Bestellservice am Telefon. Lege mit bestellung_aufnehmen " +
		"eine Bestellung fuer den genannten Kunden an, ergaenze jede genannte " +
		"Position mit position_hinzufuegen (Artikel, Menge, optional Hersteller) " +
		"und schliesse die Bestellung mit bestellung_abschliessen ab, wenn der " +
		"Anrufer fertig ist. Wiederhole jede Position zur Bestaetigung und " +
		"frage bei fehlender Menge nach. Sprich nur Deutsch."
}

func (a *BestellAgent) Tools() []agent.ToolDef {
	return []agent.ToolDef{
		{
			Name:        "bestellung_aufnehmen",
			Description: "Legt eine neue Bestellung fuer einen Kunden an.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"kunde":{"type":"string"},"notiz":{"type":"string"}},"required":["kunde"]}`),
		},
		{
			Name:        "position_hinzufuegen",
			Description: "Fuegt einer Bestellung eine Position hinzu.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"bestell_id":{"type":"string"},"artikel":{"type":"string"},"menge":{"type":"integer"},"hersteller":{"type":"string"}},"required":["bestell_id","artikel","menge"]}`),
		},
		{
			Name:        "bestellungen_auflisten",
			Description: "Zaehlt die letzten Bestellungen mit Status auf.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "bestellung_abschliessen",
			Description: "Schliesst eine Bestellung ab und gibt sie zur Bearbeitung frei.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"bestell_id":{"type":"string"}},"required":["bestell_id"]}`),
		},
	}
}

func (a *BestellAgent) ExecuteTool(ctx context.Context, call *agent.CallContext, name string, args json.RawMessage) (agent.ToolResult, error) {
	switch name {
	case "bestellung_aufnehmen":
		var params struct {
			Kunde string `json:"kunde"`
			Notiz string `json:"notiz"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		if params.Kunde == "" {
			return nil, fmt.Errorf("Kunde fehlt")
		}
		order := &models.Order{
			ID:       uuid.NewString(),
			Customer: params.Kunde,
			CallerID: call.CallerID,
			Note:     params.Notiz,
			Status:   "open",
		}
		if err := a.orders.Create(ctx, order); err != nil {
			return nil, err
		}
		return agent.Text{Message: fmt.Sprintf(
			"Bestellung fuer %s angelegt, Kennung %s. Welche Positionen?",
			params.Kunde, shortID(order.ID))}, nil

	case "position_hinzufuegen":
		var params struct {
			BestellID  string `json:"bestell_id"`
			Artikel    string `json:"artikel"`
			Menge      int    `json:"menge"`
			Hersteller string `json:"hersteller"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		if params.Artikel == "" {
			return nil, fmt.Errorf("Artikel fehlt")
		}
		if params.Menge <= 0 {
			return nil, fmt.Errorf("Menge fehlt oder ist ungueltig")
		}
		order, err := a.findOrder(ctx, params.BestellID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return agent.Text{Message: fmt.Sprintf("Keine Bestellung mit Kennung %s gefunden.", params.BestellID)}, nil
		}
		if order.Status != "open" {
			return agent.Text{Message: fmt.Sprintf("Bestellung %s ist bereits abgeschlossen.", shortID(order.ID))}, nil
		}
		item := models.OrderItem{
			Article:      params.Artikel,
			Quantity:     params.Menge,
			Manufacturer: params.Hersteller,
		}
		if err := a.orders.AddItem(ctx, order.ID, item); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("Notiert: %d Stueck %s", params.Menge, params.Artikel)
		if params.Hersteller != "" {
			msg += " von " + params.Hersteller
		}
		return agent.Text{Message: msg + "."}, nil

	case "bestellungen_auflisten":
		orders, err := a.orders.List(ctx, 10)
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			return agent.Text{Message: "Es liegen keine Bestellungen vor."}, nil
		}
		var b strings.Builder
		b.WriteString("Bestellungen: ")
		for i, o := range orders {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s fuer %s, %d Positionen (Status %s)",
				shortID(o.ID), o.Customer, itemCount(o.Items), o.Status)
		}
		return agent.Text{Message: b.String()}, nil

	case "bestellung_abschliessen":
		var params struct {
			BestellID string `json:"bestell_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("ungueltige Argumente: %w", err)
		}
		order, err := a.findOrder(ctx, params.BestellID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return agent.Text{Message: fmt.Sprintf("Keine Bestellung mit Kennung %s gefunden.", params.BestellID)}, nil
		}
		if itemCount(order.Items) == 0 {
			return agent.Text{Message: "Die Bestellung hat noch keine Positionen."}, nil
		}
		if err := a.orders.UpdateStatus(ctx, order.ID, "submitted"); err != nil {
			return nil, err
		}
		return agent.Text{Message: fmt.Sprintf(
			"Bestellung %s mit %d Positionen abgeschlossen.",
			shortID(order.ID), itemCount(order.Items))}, nil

	default:
		return nil, fmt.Errorf("unbekanntes Werkzeug %q", name)
	}
}

// findOrder resolves either a full or a spoken short id.
func (a *BestellAgent) findOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := a.orders.GetByID(ctx, id)
	if err != nil || order != nil {
		return order, err
	}
	orders, err := a.orders.List(ctx, 50)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if strings.HasPrefix(orders[i].ID, id) {
			return &orders[i], nil
		}
	}
	return nil, nil
}

func itemCount(items string) int {
	var parsed []models.OrderItem
	if err := json.Unmarshal([]byte(items), &parsed); err != nil {
		return 0
	}
	return len(parsed)
}
