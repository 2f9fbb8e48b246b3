package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/infrastructure/database"
	"ticketrecon/internal/infrastructure/lock"
	"ticketrecon/internal/model"
	"ticketrecon/internal/platform"
	"ticketrecon/internal/reconcile"
	"ticketrecon/internal/service"
	"ticketrecon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	db      *gorm.DB
	router  *gin.Engine
	adapter *platform.MemoryAdapter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	adapter := platform.NewMemoryAdapter("humanitix")
	policy := config.NewPolicyStore(config.DefaultReconciliationConfig())
	store := service.NewEngineStore(db, config.TopicConfig{Alert: "recon.alert", Report: "recon.report"})
	orch := reconcile.NewOrchestrator(reconcile.Deps{
		Sales: store, Reports: store, Audit: store, Alerts: store,
		Adapters: platform.NewRegistry(adapter),
		Policy:   policy,
		Locker:   lock.NewLocalLocker(),
	})
	h := NewHandler(
		service.NewReconcileService(db, orch, policy),
		service.NewDiscrepancyService(db),
		service.NewAdjustmentService(db),
		service.NewAlertService(db),
	)
	return &testServer{db: db, router: SetupRouter(h, nil), adapter: adapter}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: http status %d", method, path, w.Code)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response: %v (%s)", method, path, err, w.Body.String())
	}
	return env
}

func TestReconciliationFlow(t *testing.T) {
	s := newTestServer(t)

	env := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]interface{}{
		"event_id": "ev1", "platform": "humanitix", "external_event_id": "hx-1", "is_primary": true,
	})
	if env.Code != response.CodeSuccess {
		t.Fatalf("link: %+v", env)
	}

	s.adapter.SetSales("ev1", &model.PlatformSaleRecord{
		OrderID: "H-1", CustomerEmail: "a@example.com", Quantity: 1, TotalAmount: 8000, Currency: "AUD",
		PurchasedAt: time.Now(),
	})

	env = s.do(t, http.MethodPost, "/api/v1/reconciliation/run", map[string]string{"event_id": "ev1", "platform": "humanitix"})
	if env.Code != response.CodeSuccess {
		t.Fatalf("run: %+v", env)
	}
	var report model.ReconciliationReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.DiscrepanciesFound != 1 || report.DiscrepanciesResolved != 0 {
		t.Fatalf("report found/resolved = %d/%d", report.DiscrepanciesFound, report.DiscrepanciesResolved)
	}

	env = s.do(t, http.MethodGet, "/api/v1/reconciliation/discrepancies/pending?event_id=ev1", nil)
	var pending []model.ReconciliationDiscrepancy
	if err := json.Unmarshal(env.Data, &pending); err != nil || len(pending) != 1 {
		t.Fatalf("pending = %s (%v)", env.Data, err)
	}

	env = s.do(t, http.MethodPost, "/api/v1/reconciliation/discrepancies/"+pending[0].ID+"/resolve",
		map[string]string{"resolution": "platform_updated", "notes": "平台已退款", "user_id": "ops1"})
	if env.Code != response.CodeSuccess {
		t.Fatalf("resolve: %+v", env)
	}

	env = s.do(t, http.MethodGet, "/api/v1/reconciliation/reports/"+report.ID, nil)
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report detail: %v", err)
	}
	if report.DiscrepanciesResolved != 1 || len(report.Discrepancies) != 1 {
		t.Fatalf("report detail resolved=%d details=%d", report.DiscrepanciesResolved, len(report.Discrepancies))
	}

	env = s.do(t, http.MethodGet, "/api/v1/reconciliation/stats?event_id=ev1", nil)
	var stats reconcile.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalReports != 1 || stats.ResolutionRate != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	env = s.do(t, http.MethodGet, "/api/v1/reconciliation/audit?event_id=ev1", nil)
	var audits []model.AuditLogEntry
	if err := json.Unmarshal(env.Data, &audits); err != nil || len(audits) != 1 {
		t.Fatalf("audits = %s (%v)", env.Data, err)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"缺少活动", http.MethodPost, "/api/v1/reconciliation/run", map[string]string{}, response.CodeParamError},
		{"平台未启用", http.MethodPost, "/api/v1/reconciliation/run", map[string]string{"event_id": "ev1", "platform": "ticketek"}, response.CodePlatformUnavailable},
		{"活动无关联", http.MethodPost, "/api/v1/reconciliation/run", map[string]string{"event_id": "ev1"}, response.CodeNoLinkedPlatforms},
		{"报告不存在", http.MethodGet, "/api/v1/reconciliation/reports/nope", nil, response.CodeReportNotFound},
		{"差异不存在", http.MethodPost, "/api/v1/reconciliation/discrepancies/nope/resolve", map[string]string{"resolution": "ignored", "user_id": "ops1"}, response.CodeDiscrepancyNotFound},
		{"非法处理结果", http.MethodPost, "/api/v1/reconciliation/discrepancies/nope/resolve", map[string]string{"resolution": "auto_corrected", "user_id": "ops1"}, response.CodeParamError},
		{"告警不存在", http.MethodPost, "/api/v1/alerts/nope/ack", map[string]string{"user_id": "ops1"}, response.CodeAlertNotFound},
		{"非法策略", http.MethodPut, "/api/v1/reconciliation/policy", map[string]int{"schedule_interval": 0}, response.CodeParamError},
		{"调整记录不存在", http.MethodPost, "/api/v1/reconciliation/adjustments", map[string]interface{}{
			"event_id": "ev1", "platform": "humanitix", "type": "remove_sale", "sale_id": 42, "reason": "x", "user_id": "ops1",
		}, response.CodeSaleNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := s.do(t, tc.method, tc.path, tc.body)
			if env.Code != tc.want {
				t.Fatalf("code = %d (%s), want %d", env.Code, env.Message, tc.want)
			}
		})
	}
}

func TestRunFailureReturnsReport(t *testing.T) {
	s := newTestServer(t)
	s.adapter.FailWith(platform.ErrMalformedPayload)

	env := s.do(t, http.MethodPost, "/api/v1/reconciliation/run", map[string]string{"event_id": "ev1", "platform": "humanitix"})
	if env.Code != response.CodeRunFailed {
		t.Fatalf("code = %d, want %d", env.Code, response.CodeRunFailed)
	}
	var report model.ReconciliationReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != model.ReportStatusFailed {
		t.Fatalf("status = %s", report.Status)
	}

	env = s.do(t, http.MethodGet, "/api/v1/alerts?event_id=ev1&unacknowledged=true", nil)
	var alerts []model.ReconciliationAlert
	if err := json.Unmarshal(env.Data, &alerts); err != nil || len(alerts) != 1 {
		t.Fatalf("alerts = %s (%v)", env.Data, err)
	}
	for i := 0; i < 2; i++ {
		env = s.do(t, http.MethodPost, "/api/v1/alerts/"+alerts[0].ID+"/ack", map[string]string{"user_id": "ops1"})
		if env.Code != response.CodeSuccess {
			t.Fatalf("ack #%d: %+v", i, env)
		}
	}
}
