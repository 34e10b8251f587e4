// Package ai runs the admin inventory assistant on Gemini function calling.
// Every tool it exposes is read-only.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/database"
	"go-inventory-agent/internal/lowstock"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const (
	modelName     = "gemini-2.0-flash-001"
	maxToolRounds = 4
	dateLayout    = "2006-01-02"
)

// Agent answers inventory questions from live catalog, low-stock and sales data.
type Agent struct {
	apiKey  string
	db      *gorm.DB
	catalog *catalog.Service
	monitor *lowstock.Monitor
	log     *zap.Logger
	now     func() time.Time
}

func NewAgent(apiKey string, db *gorm.DB, cat *catalog.Service, mon *lowstock.Monitor, log *zap.Logger) *Agent {
	return &Agent{apiKey: apiKey, db: db, catalog: cat, monitor: mon, log: log, now: time.Now}
}

var tools = []*genai.Tool{
	{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "Get the full inventory list. Use this to find ANY product details like ID, Name, SKU, Price or Stock. Bundle stock and price are already resolved from their components.",
			},
			{
				Name:        "list_low_stock",
				Description: "List products whose stock is at or below their low-stock threshold.",
			},
			{
				Name:        "get_sales_report",
				Description: "Get order revenue and order count for a date range. Cancelled orders are excluded.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
		},
	},
}

func (a *Agent) systemPrompt(userMessage string) string {
	return fmt.Sprintf(`SYSTEM: Today is %s. You are an inventory assistant for warehouse admins.

	RULES:
	1. READ: If a user asks for PRICE, STOCK, SKU or DETAILS of a product:
	   - You MUST call 'check_inventory' and read the JSON to find the item.
	   - Bundles list their components; their stock is how many complete bundles can be built.
	2. LOW STOCK: If the user asks what needs restocking, call 'list_low_stock'.
	3. SALES: If the user asks for sales or revenue, use 'get_sales_report'.
	4. You cannot change data. If asked to, explain that edits happen in the admin screens.

	USER: %s`, a.now().Format(dateLayout), userMessage)
}

// Run sends one question to the model and resolves its tool calls until it answers in text.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	if a.apiKey == "" {
		return "", errors.New("assistant is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	model.Tools = tools
	session := model.StartChat()

	resp, err := session.SendMessage(ctx, genai.Text(a.systemPrompt(userMessage)))
	if err != nil {
		return "", err
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return printResponse(resp), nil
		}
		var replies []genai.Part
		for _, call := range calls {
			a.log.Debug("assistant tool call", zap.String("tool", call.Name))
			out, err := a.CallTool(ctx, call.Name, call.Args)
			if err != nil {
				out = map[string]any{"error": err.Error()}
			}
			replies = append(replies, genai.FunctionResponse{Name: call.Name, Response: out})
		}
		if resp, err = session.SendMessage(ctx, replies...); err != nil {
			return "", err
		}
	}
	return printResponse(resp), nil
}

// CallTool executes one tool and returns the payload handed back to the model.
func (a *Agent) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "check_inventory":
		return a.checkInventory(ctx)
	case "list_low_stock":
		items, err := a.monitor.ListLowStock(ctx)
		if err != nil {
			return nil, err
		}
		return encode("low_stock", items)
	case "get_sales_report":
		return a.salesReport(ctx, args)
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}

type inventoryRow struct {
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	IsBundle   bool            `json:"isBundle"`
	Stock      int             `json:"stock"`
	Price      decimal.Decimal `json:"price"`
	Components []string        `json:"components,omitempty"`
}

func (a *Agent) checkInventory(ctx context.Context) (map[string]any, error) {
	products, err := a.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]inventoryRow, 0, len(products))
	for _, p := range products {
		row := inventoryRow{ID: p.ID, Name: p.Name, SKU: p.SKU, IsBundle: p.IsBundle, Stock: p.Stock, Price: p.Price}
		for _, bc := range p.BundleComponents {
			row.Components = append(row.Components, fmt.Sprintf("%d x %s", bc.Quantity, bc.ComponentName))
		}
		rows = append(rows, row)
	}
	return encode("inventory", rows)
}

func (a *Agent) salesReport(ctx context.Context, args map[string]any) (map[string]any, error) {
	startStr, _ := args["start_date"].(string)
	endStr, _ := args["end_date"].(string)

	start, err1 := time.Parse(dateLayout, startStr)
	end, err2 := time.Parse(dateLayout, endStr)
	if err1 != nil || err2 != nil {
		return nil, errors.New("dates must be in YYYY-MM-DD format")
	}
	end = end.Add(24*time.Hour - time.Nanosecond)

	report, err := database.GetSalesReport(a.db.WithContext(ctx), start, end)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"revenue":     report.TotalRevenue.StringFixed(2),
		"sales_count": report.TotalCount,
	}, nil
}

func encode(key string, v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return map[string]any{key: string(b)}, nil
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if fc, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

func printResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "I could not find an answer."
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt)
		}
	}
	return "I could not find an answer."
}
