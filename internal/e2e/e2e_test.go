package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/migration"
	"github.com/smallbiznis/quoteflow/internal/observability"
	"github.com/smallbiznis/quoteflow/internal/scheduler"
	"github.com/smallbiznis/quoteflow/internal/server"
	"github.com/smallbiznis/quoteflow/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Set QUOTEFLOW_E2E=1 with DATABASE_* pointing at a disposable postgres.
const enableEnv = "QUOTEFLOW_E2E"

const ownerID = "1001"

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	baseURL   string
	scheduler *scheduler.Scheduler
	httpSrv   *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	if os.Getenv(enableEnv) == "" {
		fmt.Fprintf(os.Stderr, "skipping e2e tests, %s not set\n", enableEnv)
		os.Exit(0)
	}
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_QuoteToDepositThroughCheckout(t *testing.T) {
	resetDatabase(t, env.db)

	quote := createQuote(t)
	if quote.TotalTTC != "240" || quote.DepositAmount != "72" {
		t.Fatalf("unexpected totals: ttc=%s deposit=%s", quote.TotalTTC, quote.DepositAmount)
	}
	quote = postQuote(t, quote.ID, "send", nil, http.StatusOK)
	quote = signQuote(t, quote.ID)
	if quote.Status != "signed" {
		t.Fatalf("expected signed, got %s", quote.Status)
	}

	checkout := requestCheckout(t, quote.ID)
	if checkout.Provider != "placeholder" || checkout.SessionID == "" {
		t.Fatalf("unexpected checkout: %+v", checkout)
	}
	again := requestCheckout(t, quote.ID)
	if !again.Reused || again.SessionID != checkout.SessionID {
		t.Fatalf("expected the open session to be reused, got %+v", again)
	}

	completeURL := env.baseURL + "/dev/payments/placeholder/" + checkout.SessionID + "/complete"
	for i := 0; i < 2; i++ {
		resp, body := doJSON(t, http.MethodPost, completeURL, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("completion %d: expected 200, got %d: %s", i, resp.StatusCode, string(body))
		}
	}

	quote = getQuote(t, quote.ID)
	if quote.Status != "deposit_paid" || quote.DepositStatus != "paid" {
		t.Fatalf("expected deposit_paid/paid, got %s/%s", quote.Status, quote.DepositStatus)
	}
	if got := countRows(t, env.db, "payment_events", "provider_event_id = ?", "evt_"+checkout.SessionID); got != 1 {
		t.Fatalf("expected one event row, got %d", got)
	}
	if got := countRows(t, env.db, "payment_records", "quote_id = ? AND status = ?", mustParseID(t, quote.ID), "succeeded"); got != 1 {
		t.Fatalf("expected one succeeded record, got %d", got)
	}

	resp, _ := doJSON(t, http.MethodPost, quoteURL(quote.ID, "checkout"), nil, ownerHeaders())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected checkout on a paid quote to be rejected, got %d", resp.StatusCode)
	}
}

func TestE2E_ManualDepositSkipsProcessor(t *testing.T) {
	resetDatabase(t, env.db)

	quote := createQuote(t)
	postQuote(t, quote.ID, "send", nil, http.StatusOK)
	signQuote(t, quote.ID)
	quote = postQuote(t, quote.ID, "deposit", map[string]any{"method": "bank_transfer"}, http.StatusOK)
	if quote.Status != "deposit_paid" || quote.DepositStatus != "paid" {
		t.Fatalf("expected deposit_paid/paid, got %s/%s", quote.Status, quote.DepositStatus)
	}
	if got := countRows(t, env.db, "payment_records", "quote_id = ?", mustParseID(t, quote.ID)); got != 0 {
		t.Fatalf("manual settlement must not create processor records, got %d", got)
	}

	postQuote(t, quote.ID, "deposit", map[string]any{"method": "cash"}, http.StatusBadRequest)
	quote = postQuote(t, quote.ID, "complete", nil, http.StatusOK)
	if quote.Status != "completed" {
		t.Fatalf("expected completed, got %s", quote.Status)
	}
}

func TestE2E_WebhookRejectsBadSignature(t *testing.T) {
	resetDatabase(t, env.db)

	payload := []byte(`{"id":"evt_forged","type":"checkout.session.completed","data":{"object":{"id":"cs_forged"}}}`)
	req, err := http.NewRequest(http.MethodPost, env.baseURL+"/api/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := countRows(t, env.db, "payment_events", "1 = 1"); got != 0 {
		t.Fatalf("forged delivery must not be recorded, got %d", got)
	}
}

func TestE2E_SchedulerRunsAgainstSchema(t *testing.T) {
	resetDatabase(t, env.db)

	if err := env.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("scheduler run failed: %v", err)
	}
}

type quoteView struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	TotalTTC      string `json:"total_ttc"`
	DepositAmount string `json:"deposit_amount"`
	DepositStatus string `json:"deposit_status"`
}

type checkoutView struct {
	PaymentURL string `json:"payment_url"`
	SessionID  string `json:"session_id"`
	Provider   string `json:"provider"`
	Reused     bool   `json:"reused"`
}

func createQuote(t *testing.T) quoteView {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/quotes", map[string]any{
		"client_id":    "2002",
		"client_name":  "Atelier Durand",
		"client_email": "durand@example.com",
		"title":        "Kitchen renovation",
		"lines": []map[string]any{
			{"description": "Cabinet install", "quantity": "2", "unit_price_ht": "100", "vat_rate": "20"},
		},
	}, ownerHeaders())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create quote: expected 201, got %d: %s", resp.StatusCode, string(body))
	}
	return decodeData[quoteView](t, body)
}

func signQuote(t *testing.T, id string) quoteView {
	t.Helper()
	strokes := []byte(`{"strokes":[[[0,0],[10,12],[20,8]]]}`)
	return postQuote(t, id, "sign", map[string]any{
		"signer_name":  "Claire Durand",
		"content_type": "application/json",
		"content":      base64.StdEncoding.EncodeToString(strokes),
	}, http.StatusOK)
}

func requestCheckout(t *testing.T, id string) checkoutView {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, quoteURL(id, "checkout"), nil, ownerHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d: %s", resp.StatusCode, string(body))
	}
	return decodeData[checkoutView](t, body)
}

func getQuote(t *testing.T, id string) quoteView {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/quotes/"+id, nil, ownerHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get quote: expected 200, got %d: %s", resp.StatusCode, string(body))
	}
	return decodeData[quoteView](t, body)
}

func postQuote(t *testing.T, id, action string, payload any, wantStatus int) quoteView {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, quoteURL(id, action), payload, ownerHeaders())
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: expected %d, got %d: %s", action, wantStatus, resp.StatusCode, string(body))
	}
	if wantStatus != http.StatusOK {
		return quoteView{}
	}
	return decodeData[quoteView](t, body)
}

func quoteURL(id, action string) string {
	return env.baseURL + "/api/quotes/" + id + "/" + action
}

func ownerHeaders() map[string]string {
	return map[string]string{server.HeaderOwner: ownerID}
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
	return envelope.Data
}

func startEnv() (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		cfg         config.Config
		schedulerSv *scheduler.Scheduler
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Populate(&srv, &dbConn, &cfg, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	if strings.ToLower(strings.TrimSpace(cfg.DBType)) != "postgres" {
		_ = app.Stop(context.Background())
		return nil, fmt.Errorf("expected postgres db, got %s", cfg.DBType)
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		db:        dbConn,
		baseURL:   httpSrv.URL,
		scheduler: schedulerSv,
		httpSrv:   httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("DATABASE_AUTO_MIGRATE", "true")
	setEnvIfEmpty("STRIPE_WEBHOOK_SECRET", "whsec_e2e")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	// the running scheduler would race the assertions
	setEnvIfEmpty("SCHEDULER_ENABLED", "false")
	os.Setenv("STRIPE_SECRET_KEY", "")
	os.Setenv("REDIS_ADDR", "")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	if err := truncateAllTables(dbConn); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func truncateAllTables(dbConn *gorm.DB) error {
	type tableRow struct {
		Name string `gorm:"column:tablename"`
	}
	var rows []tableRow
	if err := dbConn.Raw(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'quoteflow_schema_migrations'`,
	).Scan(&rows).Error; err != nil {
		return err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Name) == "" {
			continue
		}
		tables = append(tables, `"`+row.Name+`"`)
	}
	if len(tables) == 0 {
		return nil
	}

	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	return dbConn.Exec(stmt).Error
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(value)
	if err != nil {
		t.Fatalf("parse id %q: %v", value, err)
	}
	return id
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
