package ai

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/database"
	"go-inventory-agent/internal/lowstock"
	"go-inventory-agent/internal/models"
	"go-inventory-agent/internal/notify"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAgent(t *testing.T) (*Agent, *catalog.Service) {
	t.Helper()
	db, err := database.OpenInMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	cat := catalog.NewService(db, catalog.NewResolver(decimal.NewFromInt(1)), zap.NewNop())
	mon := lowstock.NewMonitor(db, cat, notify.NewLogNotifier(zap.NewNop()), lowstock.Options{}, zap.NewNop())
	return NewAgent("", db, cat, mon, zap.NewNop()), cat
}

func TestCallTool_CheckInventoryResolvesBundles(t *testing.T) {
	a, cat := newAgent(t)
	ctx := context.Background()
	cup, err := cat.CreateProduct(ctx, catalog.ProductInput{Name: "Cup", SKU: "CUP", Stock: 9, Price: decimal.NewFromInt(2)})
	require.NoError(t, err)
	_, err = cat.CreateProduct(ctx, catalog.ProductInput{
		Name: "Cup Set", SKU: "SET", IsBundle: true,
		Components: []catalog.ComponentInput{{ProductID: cup.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	out, err := a.CallTool(ctx, "check_inventory", nil)
	require.NoError(t, err)

	var rows []inventoryRow
	require.NoError(t, json.Unmarshal([]byte(out["inventory"].(string)), &rows))
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.SKU == "SET" {
			assert.Equal(t, 2, r.Stock)
			assert.True(t, r.Price.Equal(decimal.NewFromInt(8)))
			assert.Equal(t, []string{"4 x Cup"}, r.Components)
		}
	}
}

func TestCallTool_ListLowStock(t *testing.T) {
	a, cat := newAgent(t)
	ctx := context.Background()
	five := 5
	_, err := cat.CreateProduct(ctx, catalog.ProductInput{Name: "Tape", SKU: "TAPE", Stock: 3, Price: decimal.NewFromInt(1), LowStockThreshold: &five})
	require.NoError(t, err)

	out, err := a.CallTool(ctx, "list_low_stock", nil)
	require.NoError(t, err)
	assert.Contains(t, out["low_stock"], `"sku":"TAPE"`)
}

func TestCallTool_SalesReport(t *testing.T) {
	a, _ := newAgent(t)
	day := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, a.db.Create(&models.Order{ClientName: "A", TotalPrice: decimal.RequireFromString("12.50"), Status: models.StatusPending, OrderDate: day}).Error)
	require.NoError(t, a.db.Create(&models.Order{ClientName: "B", TotalPrice: decimal.NewFromInt(99), Status: models.StatusCancelled, OrderDate: day}).Error)

	out, err := a.CallTool(context.Background(), "get_sales_report", map[string]any{"start_date": "2025-03-10", "end_date": "2025-03-10"})
	require.NoError(t, err)
	assert.Equal(t, "12.50", out["revenue"])
	assert.Equal(t, int64(1), out["sales_count"])

	_, err = a.CallTool(context.Background(), "get_sales_report", map[string]any{"start_date": "10/03/2025"})
	assert.Error(t, err)
}

func TestCallTool_UnknownTool(t *testing.T) {
	a, _ := newAgent(t)
	_, err := a.CallTool(context.Background(), "update_product_price", nil)
	assert.Error(t, err)
}

func TestRun_RequiresKey(t *testing.T) {
	a, _ := newAgent(t)
	_, err := a.Run(context.Background(), "hello")
	assert.Error(t, err)
}

func TestResponseHelpers(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.FunctionCall{Name: "list_low_stock"},
			genai.Text("ok"),
		}},
	}}}
	calls := functionCalls(resp)
	require.Len(t, calls, 1)
	assert.Equal(t, "list_low_stock", calls[0].Name)
	assert.Equal(t, "ok", printResponse(resp))
	assert.Equal(t, "I could not find an answer.", printResponse(&genai.GenerateContentResponse{}))
}
