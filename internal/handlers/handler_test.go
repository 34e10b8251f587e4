package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"go-inventory-agent/internal/auth"
	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/database"
	"go-inventory-agent/internal/lowstock"
	"go-inventory-agent/internal/models"
	"go-inventory-agent/internal/notify"
	"go-inventory-agent/internal/orders"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []notify.Alert
	err  error
}

func (s *stubNotifier) Send(_ context.Context, a notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, a)
	return nil
}

type stubAssistant struct{ reply string }

func (s stubAssistant) Run(_ context.Context, msg string) (string, error) {
	return s.reply + ": " + msg, nil
}

var serverSeq atomic.Int64

type testServer struct {
	t           *testing.T
	db          *gorm.DB
	router      *gin.Engine
	catalog     *catalog.Service
	notifier    *stubNotifier
	issuer      *auth.Issuer
	adminID     uint
	adminToken  string
	clientToken string
}

func newServer(t *testing.T, assistant Assistant) *testServer {
	t.Helper()
	name := fmt.Sprintf("%s_%d", strings.ReplaceAll(t.Name(), "/", "_"), serverSeq.Add(1))
	db, err := database.OpenInMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := zap.NewNop()
	resolver := catalog.NewResolver(decimal.NewFromInt(1))
	cat := catalog.NewService(db, resolver, log)
	ord := orders.NewService(db, resolver, log)
	n := &stubNotifier{}
	mon := lowstock.NewMonitor(db, cat, n, lowstock.Options{FallbackRecipient: "ops@example.com"}, log)
	ord.OnStockChanged(func(ctx context.Context, ids []uint) { _, _ = mon.EvaluateAfterOrder(ctx, ids) })

	issuer, err := auth.NewIssuer("handler-test-secret")
	require.NoError(t, err)

	h := New(Deps{DB: db, Catalog: cat, Orders: ord, Monitor: mon, Issuer: issuer, Assistant: assistant, Log: log})
	r := gin.New()
	h.Register(r, Options{AllowRegistration: true})

	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	admin := models.User{Username: "admin", PasswordHash: hash, Role: models.RoleAdmin}
	client := models.User{Username: "client", PasswordHash: hash, Role: models.RoleClient}
	require.NoError(t, db.Create(&admin).Error)
	require.NoError(t, db.Create(&client).Error)

	adminToken, err := issuer.GenerateToken(admin.ID, admin.Role)
	require.NoError(t, err)
	clientToken, err := issuer.GenerateToken(client.ID, client.Role)
	require.NoError(t, err)

	return &testServer{t: t, db: db, router: r, catalog: cat, notifier: n, issuer: issuer, adminID: admin.ID, adminToken: adminToken, clientToken: clientToken}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) simple(sku string, stock int, price string) uint {
	s.t.Helper()
	p, err := s.catalog.CreateProduct(context.Background(), catalog.ProductInput{
		Name: "Item " + sku, SKU: sku, Stock: stock, Price: decimal.RequireFromString(price),
	})
	require.NoError(s.t, err)
	return p.ID
}

func (s *testServer) bundle(sku string, comps ...catalog.ComponentInput) uint {
	s.t.Helper()
	p, err := s.catalog.CreateProduct(context.Background(), catalog.ProductInput{
		Name: "Bundle " + sku, SKU: sku, IsBundle: true, Components: comps,
	})
	require.NoError(s.t, err)
	return p.ID
}

func (s *testServer) stock(id uint) int {
	s.t.Helper()
	p, err := s.catalog.GetProduct(context.Background(), id)
	require.NoError(s.t, err)
	return p.Stock
}

func order(items ...gin.H) gin.H {
	return gin.H{"clientName": "Ada", "clientAddress": "1 Loop Rd", "products": items}
}

func line(id uint, qty int) gin.H {
	return gin.H{"productId": id, "quantity": qty}
}

func TestAuthGuards(t *testing.T) {
	s := newServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/products", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/products", s.clientToken, nil).Code)

	w := s.do(http.MethodPost, "/api/products", s.clientToken, gin.H{"name": "X", "sku": "X"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProducts_CreateBundleAndRead(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")
	b := s.simple("B", 3, "10")

	w := s.do(http.MethodPost, "/api/products", s.adminToken, gin.H{
		"name": "Kit", "sku": "KIT", "isBundle": true,
		"bundleComponents": []gin.H{{"product": a, "quantity": 2}, {"product": b, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, float64(3), created["stock"])
	assert.Equal(t, float64(20), created["price"])

	id := uint(created["_id"].(float64))
	w = s.do(http.MethodGet, "/api/products/"+itoa(id), s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	comps := got["bundleComponents"].([]any)
	require.Len(t, comps, 2)
	assert.Equal(t, "Item A", comps[0].(map[string]any)["name"])
}

func TestProducts_CycleIsUnprocessable(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")
	kit := s.bundle("KIT", catalog.ComponentInput{ProductID: a, Quantity: 1})

	w := s.do(http.MethodPut, "/api/products/"+itoa(kit), s.adminToken, gin.H{
		"name": "Kit", "sku": "KIT", "isBundle": true,
		"bundleComponents": []gin.H{{"product": kit, "quantity": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "InvalidBundleComposition", decode(t, w)["kind"])
}

func TestProducts_AdjustStockAndDelete(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 2, "5")

	w := s.do(http.MethodPost, "/api/products/"+itoa(a)+"/stock", s.adminToken, gin.H{"delta": 8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 10, s.stock(a))

	w = s.do(http.MethodPost, "/api/products/"+itoa(a)+"/stock", s.adminToken, gin.H{"delta": -11})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 10, s.stock(a))

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/products/"+itoa(a), s.adminToken, nil).Code)
	w = s.do(http.MethodGet, "/api/products/"+itoa(a), s.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ProductNotFound", decode(t, w)["kind"])
}

func TestPlaceOrder_Success(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")
	b := s.simple("B", 3, "10")
	kit := s.bundle("KIT", catalog.ComponentInput{ProductID: a, Quantity: 2}, catalog.ComponentInput{ProductID: b, Quantity: 1})

	w := s.do(http.MethodPost, "/api/orders/place", s.clientToken, order(line(kit, 2), line(a, 1)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "Pending", body["status"])
	assert.Equal(t, float64(45), body["totalPrice"])
	assert.Len(t, body["products"], 2)
	assert.Equal(t, 5, s.stock(a))
	assert.Equal(t, 1, s.stock(b))
}

func TestPlaceOrder_InsufficientStockBody(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")
	b := s.simple("B", 3, "10")
	kit := s.bundle("KIT", catalog.ComponentInput{ProductID: a, Quantity: 2}, catalog.ComponentInput{ProductID: b, Quantity: 1})

	w := s.do(http.MethodPost, "/api/orders/place", s.clientToken, order(line(kit, 4)))
	require.Equal(t, http.StatusConflict, w.Code)

	body := decode(t, w)
	assert.Equal(t, "InsufficientStock", body["kind"])
	assert.Equal(t, float64(b), body["productId"])
	assert.Equal(t, float64(1), body["shortfall"])
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, 10, s.stock(a))
	assert.Equal(t, 3, s.stock(b))
}

func TestPlaceOrder_InputErrors(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")

	cases := []struct {
		name   string
		body   gin.H
		status int
		kind   string
	}{
		{"empty", order(), http.StatusBadRequest, "EmptyOrder"},
		{"zero quantity", order(line(a, 0)), http.StatusBadRequest, "InvalidQuantity"},
		{"unknown product", order(line(999, 1)), http.StatusNotFound, "ProductNotFound"},
		{"missing client", gin.H{"clientAddress": "x", "products": []gin.H{line(a, 1)}}, http.StatusBadRequest, "ValidationError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/orders/place", s.clientToken, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.kind, decode(t, w)["kind"])
		})
	}
	assert.Equal(t, 10, s.stock(a))
}

func TestOrders_UpdateAndDelete(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")

	w := s.do(http.MethodPost, "/api/orders/place", s.clientToken, order(line(a, 4)))
	require.Equal(t, http.StatusCreated, w.Code)
	id := uint(decode(t, w)["_id"].(float64))
	path := "/api/orders/" + itoa(id)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, path, s.clientToken, gin.H{"status": "Shipped"}).Code)

	w = s.do(http.MethodPut, path, s.adminToken, gin.H{"products": []gin.H{line(a, 1)}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, path, s.adminToken, gin.H{"status": "Shipped", "clientAddress": "2 Loop Rd"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Shipped", body["status"])
	assert.Equal(t, "2 Loop Rd", body["clientAddress"])
	assert.Equal(t, float64(20), body["totalPrice"])

	w = s.do(http.MethodGet, path, s.clientToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, s.adminToken, nil).Code)
	assert.Equal(t, 10, s.stock(a))

	w = s.do(http.MethodGet, path, s.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "OrderNotFound", decode(t, w)["kind"])
}

// newClientToken creates another client account and returns its token.
func (s *testServer) newClientToken(username string) string {
	s.t.Helper()
	u := models.User{Username: username, PasswordHash: "x", Role: models.RoleClient}
	require.NoError(s.t, s.db.Create(&u).Error)
	token, err := s.issuer.GenerateToken(u.ID, u.Role)
	require.NoError(s.t, err)
	return token
}

func TestOrders_ClientsSeeOnlyTheirOwn(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")
	other := s.newClientToken("other")

	placeAs := func(token string) uint {
		w := s.do(http.MethodPost, "/api/orders/place", token, order(line(a, 1)))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return uint(decode(t, w)["_id"].(float64))
	}
	mine := placeAs(s.clientToken)
	theirs := placeAs(other)
	adminOrder := placeAs(s.adminToken)

	list := func(token string) []uint {
		w := s.do(http.MethodGet, "/api/orders", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var rows []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		ids := make([]uint, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, uint(r["_id"].(float64)))
		}
		return ids
	}
	assert.Equal(t, []uint{mine}, list(s.clientToken))
	assert.Equal(t, []uint{theirs}, list(other))
	assert.ElementsMatch(t, []uint{mine, theirs, adminOrder}, list(s.adminToken))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/"+itoa(mine), s.clientToken, nil).Code)
	for _, id := range []uint{theirs, adminOrder} {
		w := s.do(http.MethodGet, "/api/orders/"+itoa(id), s.clientToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "OrderNotFound", decode(t, w)["kind"])
	}
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/orders/"+itoa(theirs), s.adminToken, nil).Code)
}

func TestOrders_CancelledIsFinal(t *testing.T) {
	s := newServer(t, nil)
	a := s.simple("A", 10, "5")

	w := s.do(http.MethodPost, "/api/orders/place", s.clientToken, order(line(a, 4)))
	id := uint(decode(t, w)["_id"].(float64))
	path := "/api/orders/" + itoa(id)

	require.Equal(t, http.StatusOK, s.do(http.MethodPut, path, s.adminToken, gin.H{"status": "Cancelled"}).Code)
	assert.Equal(t, 10, s.stock(a))

	w = s.do(http.MethodPut, path, s.adminToken, gin.H{"status": "Pending"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InvalidStatusTransition", decode(t, w)["kind"])

	w = s.do(http.MethodGet, "/api/orders", s.clientToken, nil)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestLowStock_ReportAlertAndExport(t *testing.T) {
	s := newServer(t, nil)
	five := 5
	low, err := s.catalog.CreateProduct(context.Background(), catalog.ProductInput{
		Name: "Tape", SKU: "TAPE", Stock: 5, Price: decimal.NewFromInt(1), LowStockThreshold: &five,
	})
	require.NoError(t, err)
	_, err = s.catalog.CreateProduct(context.Background(), catalog.ProductInput{
		Name: "Rope", SKU: "ROPE", Stock: 6, Price: decimal.NewFromInt(1), LowStockThreshold: &five,
	})
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/api/reports/low-stock", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "TAPE", items[0]["sku"])

	w = s.do(http.MethodPost, "/api/reports/low-stock/alert/"+itoa(low.ID), s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, s.notifier.sent, 1)
	assert.Equal(t, "ops@example.com", s.notifier.sent[0].Recipient)

	s.notifier.err = errors.New("provider down")
	w = s.do(http.MethodPost, "/api/reports/low-stock/alert/"+itoa(low.ID), s.adminToken, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "AlertDispatchFailed", decode(t, w)["kind"])

	w = s.do(http.MethodGet, "/api/reports/low-stock/export", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Low Stock")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReports_SalesAndValuation(t *testing.T) {
	s := newServer(t, nil)
	cat, err := s.catalog.CreateCategory(context.Background(), catalog.CategoryInput{Name: "Tools"})
	require.NoError(t, err)
	hammer, err := s.catalog.CreateProduct(context.Background(), catalog.ProductInput{
		Name: "Hammer", SKU: "HAM", Stock: 10, Price: decimal.RequireFromString("7.50"), CategoryID: &cat.ID,
	})
	require.NoError(t, err)
	s.simple("NAIL", 100, "0.10")
	s.bundle("SET", catalog.ComponentInput{ProductID: hammer.ID, Quantity: 1})

	w := s.do(http.MethodPost, "/api/orders/place", s.clientToken, order(line(hammer.ID, 2)))
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodPost, "/api/orders/place", s.clientToken, order(line(hammer.ID, 1)))
	cancelled := uint(decode(t, w)["_id"].(float64))
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/orders/"+itoa(cancelled), s.adminToken, gin.H{"status": "Cancelled"}).Code)

	w = s.do(http.MethodGet, "/api/reports", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	assert.Equal(t, float64(15), report["totalRevenue"])
	assert.Equal(t, float64(1), report["totalOrders"])
	top := report["topSelling"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, float64(2), top[0].(map[string]any)["sold"])

	w = s.do(http.MethodGet, "/api/reports?from=bad", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/reports/valuation", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	val := decode(t, w)
	// Hammer 8 x 7.50 + Nail 100 x 0.10; the bundle holds no stock.
	assert.Equal(t, float64(70), val["grandTotal"])
	groups := val["categories"].([]any)
	require.Len(t, groups, 2)
	assert.Equal(t, "Tools", groups[0].(map[string]any)["categoryName"])
	assert.Equal(t, "Uncategorized", groups[1].(map[string]any)["categoryName"])
}

func TestUsers_RegisterLoginAndNotifications(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodPost, "/register", "", gin.H{"username": "carol", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/register", "", gin.H{"username": "carol", "password": "long enough", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "PasswordHash")

	w = s.do(http.MethodPost, "/register", "", gin.H{"username": "carol", "password": "long enough"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/login", "", gin.H{"username": "carol", "password": "wrong pass"}).Code)

	w = s.do(http.MethodPost, "/login", "", gin.H{"username": "carol", "password": "long enough"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode(t, w)
	assert.Equal(t, "admin", login["role"])
	token := login["token"].(string)

	w = s.do(http.MethodPut, "/api/users/me/notifications", token, gin.H{"notificationEmail": "not-an-email", "lowStockAlerts": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/users/me/notifications", token, gin.H{"notificationEmail": "carol@example.com", "lowStockAlerts": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/users/me", token, nil)
	me := decode(t, w)
	assert.Equal(t, "carol@example.com", me["notificationEmail"])
	assert.Equal(t, true, me["lowStockAlerts"])
}

func TestCategories_CallerBecomesOwner(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodPost, "/api/categories", s.adminToken, gin.H{"name": "Paint", "defaultLowStockThreshold": 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(s.adminID), decode(t, w)["owner"])

	w = s.do(http.MethodPost, "/api/suppliers", s.adminToken, gin.H{"name": "Acme", "contactEmail": "sales@acme.test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/suppliers", s.clientToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAskAI(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/ask", s.adminToken, gin.H{"message": "hi"}).Code)

	s = newServer(t, stubAssistant{reply: "echo"})
	w := s.do(http.MethodPost, "/api/ask", s.adminToken, gin.H{"message": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "echo: hi", decode(t, w)["reply"])

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/ask", s.clientToken, gin.H{"message": "hi"}).Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
