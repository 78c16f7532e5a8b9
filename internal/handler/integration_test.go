//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pronto-pizza/api/internal/config"
	"github.com/pronto-pizza/api/internal/database"
	"github.com/pronto-pizza/api/internal/enum"
	"github.com/pronto-pizza/api/internal/router"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full API lifecycle against a real
// PostgreSQL database: registration, login, detail CRUD, order lifecycle,
// the status sub-resource, and the status transition guard.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	queries := database.New(pool)
	r := router.New(cfg, queries, pool)

	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Register a customer and log in ---
	registerUser(t, server, "mario@pronto.pizza", "password123", "Mario")
	token := login(t, server, "mario@pronto.pizza", "password123")

	// --- 2. Create details ---
	detail1 := createDetail(t, server, token, map[string]interface{}{
		"flavour": enum.FlavourMargarita, "size": enum.SizeLarge, "quantity": 2,
	})
	detail2 := createDetail(t, server, token, map[string]interface{}{
		"flavour": enum.FlavourSalami,
	})

	// --- 3. Create an order attaching both details ---
	status, orderResp := doJSON(t, server, "POST", "/order", map[string]interface{}{
		"phone":   "555-0101",
		"address": "1 Via Roma",
		"detail":  []int64{detail1, detail2},
	}, token)
	if status != http.StatusCreated {
		t.Fatalf("create order: status %d, body %v", status, orderResp)
	}
	orderID := int64(orderResp["id"].(float64))
	if orderResp["status"] != float64(enum.StatusReceived) {
		t.Fatalf("new order status: got %v, want received", orderResp["status"])
	}

	// --- 4. Assigned-only detail filter sees only attached details ---
	detail3 := createDetail(t, server, token, map[string]interface{}{
		"flavour": enum.FlavourMarinara,
	})
	assigned := listJSON(t, server, "/detail?assigned_only=1", token)
	if len(assigned) != 2 {
		t.Fatalf("assigned details: got %d, want 2", len(assigned))
	}

	// A second order referencing an already-attached detail must not
	// duplicate it in the assigned listing.
	status, secondResp := doJSON(t, server, "POST", "/order", map[string]interface{}{
		"phone":   "555-0102",
		"address": "2 Via Roma",
		"detail":  []int64{detail2},
	}, token)
	if status != http.StatusCreated {
		t.Fatalf("create second order: status %d, body %v", status, secondResp)
	}
	assigned = listJSON(t, server, "/detail?assigned_only=1", token)
	if len(assigned) != 2 {
		t.Fatalf("assigned details after second order: got %d, want 2", len(assigned))
	}
	seen := map[int64]int{}
	for _, d := range assigned {
		seen[int64(d["id"].(float64))]++
	}
	if seen[detail1] != 1 || seen[detail2] != 1 {
		t.Fatalf("assigned detail multiplicity: got %v, want each once", seen)
	}
	all := listJSON(t, server, "/detail", token)
	if len(all) != 3 {
		t.Fatalf("all details: got %d, want 3", len(all))
	}

	// --- 5. Order list filtered by detail IDs ---
	orders := listJSON(t, server, fmt.Sprintf("/order?detail=%d", detail1), token)
	if len(orders) != 1 || int64(orders[0]["id"].(float64)) != orderID {
		t.Fatalf("order filter by detail: got %v", orders)
	}
	orders = listJSON(t, server, fmt.Sprintf("/order?detail=%d", detail3), token)
	if len(orders) != 0 {
		t.Fatalf("order filter by unattached detail: got %v", orders)
	}

	// --- 6. Deleting a referenced detail is refused ---
	status, _ = doJSON(t, server, "DELETE", fmt.Sprintf("/detail/%d", detail1), nil, token)
	if status != http.StatusConflict {
		t.Fatalf("delete referenced detail: status %d, want 409", status)
	}

	// --- 7. Patch replaces the detail set when the key is supplied ---
	status, patched := doJSON(t, server, "PATCH", fmt.Sprintf("/order/%d", orderID), map[string]interface{}{
		"detail": []int64{detail3},
	}, token)
	if status != http.StatusOK {
		t.Fatalf("patch order: status %d, body %v", status, patched)
	}
	detailIDs := patched["detail"].([]interface{})
	if len(detailIDs) != 1 || int64(detailIDs[0].(float64)) != detail3 {
		t.Fatalf("patched detail set: got %v, want [%d]", detailIDs, detail3)
	}

	// detail1 is no longer referenced and may now be deleted.
	status, _ = doJSON(t, server, "DELETE", fmt.Sprintf("/detail/%d", detail1), nil, token)
	if status != http.StatusNoContent {
		t.Fatalf("delete detached detail: status %d, want 204", status)
	}

	// --- 8. Staff moves the order out for delivery via the sub-resource ---
	seedStaffUser(t, ctx, pool, "courier@pronto.pizza", "password123")
	staffToken := login(t, server, "courier@pronto.pizza", "password123")

	status, statusResp := doJSON(t, server, "PUT", fmt.Sprintf("/order/%d/status", orderID), map[string]interface{}{
		"status": enum.StatusOutForDelivery,
	}, staffToken)
	if status != http.StatusOK {
		t.Fatalf("update status: status %d, body %v", status, statusResp)
	}
	if statusResp["status_display"] != "Out For Delivery" {
		t.Fatalf("status_display: got %v", statusResp["status_display"])
	}

	// --- 9. The guard now freezes the order, for owner and staff alike ---
	status, lockedResp := doJSON(t, server, "PATCH", fmt.Sprintf("/order/%d", orderID), map[string]interface{}{
		"phone": "555-0202",
	}, token)
	if status != http.StatusBadRequest {
		t.Fatalf("patch locked order: status %d, want 400", status)
	}
	wantMsg := "This order is `Out For Delivery` and cannot be updated at this moment"
	if lockedResp["status_locked"] != wantMsg {
		t.Fatalf("status_locked: got %v, want %q", lockedResp["status_locked"], wantMsg)
	}

	status, _ = doJSON(t, server, "PUT", fmt.Sprintf("/order/%d/status", orderID), map[string]interface{}{
		"status": enum.StatusReceived,
	}, staffToken)
	if status != http.StatusBadRequest {
		t.Fatalf("status update on locked order: status %d, want 400", status)
	}

	// The owner can still read the status.
	status, statusResp = doJSON(t, server, "GET", fmt.Sprintf("/order/%d/status", orderID), nil, token)
	if status != http.StatusOK || statusResp["status"] != float64(enum.StatusOutForDelivery) {
		t.Fatalf("get status: status %d, body %v", status, statusResp)
	}

	// --- 10. Another customer cannot see the order at all ---
	registerUser(t, server, "luigi@pronto.pizza", "password123", "Luigi")
	otherToken := login(t, server, "luigi@pronto.pizza", "password123")

	status, _ = doJSON(t, server, "GET", fmt.Sprintf("/order/%d", orderID), nil, otherToken)
	if status != http.StatusNotFound {
		t.Fatalf("foreign order read: status %d, want 404", status)
	}
	status, _ = doJSON(t, server, "GET", fmt.Sprintf("/order/%d/status", orderID), nil, otherToken)
	if status != http.StatusNotFound {
		t.Fatalf("foreign order status read: status %d, want 404", status)
	}
	if got := listJSON(t, server, "/order", otherToken); len(got) != 0 {
		t.Fatalf("foreign order list: got %v, want empty", got)
	}
	// A foreign referenced detail reads as missing, never as conflicted.
	status, _ = doJSON(t, server, "DELETE", fmt.Sprintf("/detail/%d", detail2), nil, otherToken)
	if status != http.StatusNotFound {
		t.Fatalf("foreign referenced detail delete: status %d, want 404", status)
	}
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pizza_test"),
		tcpostgres.WithUsername("pizza"),
		tcpostgres.WithPassword("pizza"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

// seedStaffUser inserts a staff account directly. Registration never grants
// the staff flag, so staff actors are bootstrapped at the database level.
func seedStaffUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email, password string) uuid.UUID {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (email, name, hashed_password, is_active, is_staff)
		 VALUES ($1, $2, $3, true, true)
		 RETURNING id`,
		email, "Courier", string(hashed),
	).Scan(&id)
	if err != nil {
		t.Fatalf("create staff user: %v", err)
	}
	return id
}

// --- API call helpers ---

func registerUser(t *testing.T, server *httptest.Server, email, password, name string) {
	t.Helper()
	status, resp := doJSON(t, server, "POST", "/auth/register", map[string]interface{}{
		"email":    email,
		"password": password,
		"name":     name,
	}, "")
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %v", email, status, resp)
	}
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	status, resp := doJSON(t, server, "POST", "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d, body %v", email, status, resp)
	}
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func createDetail(t *testing.T, server *httptest.Server, token string, body map[string]interface{}) int64 {
	t.Helper()
	status, resp := doJSON(t, server, "POST", "/detail", body, token)
	if status != http.StatusCreated {
		t.Fatalf("create detail: status %d, body %v", status, resp)
	}
	return int64(resp["id"].(float64))
}

// --- HTTP helpers ---

func doJSON(t *testing.T, server *httptest.Server, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

func listJSON(t *testing.T, server *httptest.Server, path, token string) []map[string]interface{} {
	t.Helper()

	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
