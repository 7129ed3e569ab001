package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("from", "draft"),
		attribute.String("quote_id", "456"),
		attribute.String("to", "signed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "quote_id" {
			t.Fatalf("expected quote_id to be dropped")
		}
	}
}

func TestReconcileMetricsCountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewReconcileMetrics(registry, Config{ServiceName: "quoteflow", Environment: "test"})

	m.IncEvent("stripe", "checkout_completed", ReconcileOutcomeApplied)
	m.IncEvent("stripe", "checkout_completed", ReconcileOutcomeDuplicate)
	m.IncEvent("stripe", "checkout_completed", ReconcileOutcomeDuplicate)
	m.IncProcessingError("stripe", "payment_failed")

	if got := testutil.ToFloat64(m.events.WithLabelValues("stripe", "checkout_completed", ReconcileOutcomeDuplicate)); got != 2 {
		t.Fatalf("expected 2 duplicates, got %v", got)
	}

	var metric dto.Metric
	if err := m.processingErrors.WithLabelValues("stripe", "payment_failed").Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Fatalf("expected 1 processing error, got %v", metric.GetCounter().GetValue())
	}
}

func TestNilReconcileMetricsIsSafe(t *testing.T) {
	var m *ReconcileMetrics
	m.IncEvent("stripe", "unhandled", ReconcileOutcomeIgnored)
	m.IncProcessingError("stripe", "unhandled")
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry, Config{})

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/api/quotes/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/quotes/123", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/quotes/:id", "404")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: SchedulerJobReasonUnknown},
		{name: "deadline", err: fmt.Errorf("sweep: %w", context.DeadlineExceeded), want: SchedulerJobReasonDeadlineExceeded},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), want: SchedulerJobReasonSerializationFailure},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "invalid db", err: gorm.ErrInvalidDB, want: SchedulerJobReasonDB},
		{name: "other", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSchedulerMetricsAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "quoteflow", Environment: "test"})

	m.AddBatchProcessed("expire_checkouts", "payment_records", 3)
	m.AddBatchProcessed("expire_checkouts", "payment_records", 0)
	m.AddBatchProcessed("expire_checkouts", "payment_records", 2)

	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("expire_checkouts", "payment_records")); got != 5 {
		t.Fatalf("expected 5 processed, got %v", got)
	}

	var nilMetrics *SchedulerMetrics
	nilMetrics.IncJobRun("noop")
	nilMetrics.ObserveRunLoopLag(-time.Second)
}
