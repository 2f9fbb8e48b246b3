package handler

import (
	"errors"
	"strconv"

	"ticketrecon/internal/platform"
	"ticketrecon/internal/reconcile"
	"ticketrecon/internal/repository"
	"ticketrecon/internal/service"
	"ticketrecon/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	reconcileService   *service.ReconcileService
	discrepancyService *service.DiscrepancyService
	adjustmentService  *service.AdjustmentService
	alertService       *service.AlertService
}

func NewHandler(
	reconcileService *service.ReconcileService,
	discrepancyService *service.DiscrepancyService,
	adjustmentService *service.AdjustmentService,
	alertService *service.AlertService,
) *Handler {
	return &Handler{
		reconcileService:   reconcileService,
		discrepancyService: discrepancyService,
		adjustmentService:  adjustmentService,
		alertService:       alertService,
	}
}

// ============================================================
// 对账
// ============================================================

type RunRequest struct {
	EventID  string `json:"event_id" binding:"required"`
	Platform string `json:"platform"` // 为空时对活动关联的全部平台对账
}

type runResultView struct {
	Platform string      `json:"platform"`
	Report   interface{} `json:"report,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Run 立即对账
// POST /api/v1/reconciliation/run
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	if req.Platform != "" {
		report, err := h.reconcileService.Run(ctx, req.EventID, req.Platform)
		if err != nil {
			if report != nil {
				_ = c.Error(err)
				response.ErrorWithData(c, response.CodeRunFailed, err.Error(), report)
				return
			}
			h.fail(c, err)
			return
		}
		response.Success(c, report)
		return
	}

	results, err := h.reconcileService.RunEvent(ctx, req.EventID)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]runResultView, 0, len(results))
	for _, r := range results {
		v := runResultView{Platform: r.Platform}
		if r.Report != nil {
			v.Report = r.Report
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		views = append(views, v)
	}
	response.Success(c, gin.H{"event_id": req.EventID, "results": views})
}

// ListReports 报告列表
// GET /api/v1/reconciliation/reports?event_id=xxx&page=1&page_size=20
func (h *Handler) ListReports(c *gin.Context) {
	page, pageSize := pagination(c)
	reports, err := h.reconcileService.Reports(c.Request.Context(), c.Query("event_id"), pageSize, (page-1)*pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      reports,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetReport 报告详情，包含全部差异
// GET /api/v1/reconciliation/reports/:id
func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.reconcileService.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, report)
}

// GetStats 对账统计
// GET /api/v1/reconciliation/stats?event_id=xxx&limit=100
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.reconcileService.Stats(c.Request.Context(), c.Query("event_id"), queryInt(c, "limit", 100))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, stats)
}

// GetPolicy GET /api/v1/reconciliation/policy
func (h *Handler) GetPolicy(c *gin.Context) {
	response.Success(c, h.reconcileService.Policy())
}

// UpdatePolicy 未传的字段保持当前值
// PUT /api/v1/reconciliation/policy
func (h *Handler) UpdatePolicy(c *gin.Context) {
	next := h.reconcileService.Policy()
	if err := c.ShouldBindJSON(&next); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	updated, err := h.reconcileService.UpdatePolicy(next)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, updated)
}

// ListAudit 审计日志
// GET /api/v1/reconciliation/audit?event_id=xxx&limit=50
func (h *Handler) ListAudit(c *gin.Context) {
	eventID := c.Query("event_id")
	if eventID == "" {
		response.ParamError(c, "event_id 参数不能为空")
		return
	}
	entries, err := h.reconcileService.AuditTrail(c.Request.Context(), eventID, queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, entries)
}

// LinkPlatform 关联活动与票务平台
// POST /api/v1/reconciliation/links
func (h *Handler) LinkPlatform(c *gin.Context) {
	var req service.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	link, err := h.reconcileService.LinkPlatform(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, link)
}

// ListLinks GET /api/v1/reconciliation/links?event_id=xxx
func (h *Handler) ListLinks(c *gin.Context) {
	eventID := c.Query("event_id")
	if eventID == "" {
		response.ParamError(c, "event_id 参数不能为空")
		return
	}
	links, err := h.reconcileService.Links(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, links)
}

// ============================================================
// 差异与人工调整
// ============================================================

// ListPendingDiscrepancies 待人工处理的差异
// GET /api/v1/reconciliation/discrepancies/pending?event_id=xxx&limit=50
func (h *Handler) ListPendingDiscrepancies(c *gin.Context) {
	ds, err := h.discrepancyService.PendingReview(c.Request.Context(), c.Query("event_id"), queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, ds)
}

// ResolveDiscrepancy 人工处理差异
// POST /api/v1/reconciliation/discrepancies/:id/resolve
func (h *Handler) ResolveDiscrepancy(c *gin.Context) {
	var req service.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.DiscrepancyID = c.Param("id")

	d, err := h.discrepancyService.Resolve(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, d)
}

// CreateAdjustment 人工调整售票数据
// POST /api/v1/reconciliation/adjustments
func (h *Handler) CreateAdjustment(c *gin.Context) {
	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	adj, err := h.adjustmentService.Apply(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, adj)
}

// ListAdjustments GET /api/v1/reconciliation/adjustments?event_id=xxx
func (h *Handler) ListAdjustments(c *gin.Context) {
	eventID := c.Query("event_id")
	if eventID == "" {
		response.ParamError(c, "event_id 参数不能为空")
		return
	}
	list, err := h.adjustmentService.ListByEvent(c.Request.Context(), eventID, queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// 告警
// ============================================================

// ListAlerts GET /api/v1/alerts?event_id=xxx&unacknowledged=true
func (h *Handler) ListAlerts(c *gin.Context) {
	onlyOpen := c.Query("unacknowledged") == "true"
	alerts, err := h.alertService.List(c.Request.Context(), c.Query("event_id"), onlyOpen, queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, alerts)
}

// AcknowledgeAlert 重复确认返回成功
// POST /api/v1/alerts/:id/ack
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	alert, err := h.alertService.Acknowledge(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, alert)
}

// fail 领域错误映射为业务码
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		response.ParamError(c, msg)
	case errors.Is(err, repository.ErrReportNotFound):
		response.NotFound(c, response.CodeReportNotFound, msg)
	case errors.Is(err, repository.ErrDiscrepancyNotFound):
		response.NotFound(c, response.CodeDiscrepancyNotFound, msg)
	case errors.Is(err, repository.ErrAlertNotFound):
		response.NotFound(c, response.CodeAlertNotFound, msg)
	case errors.Is(err, repository.ErrSaleNotFound):
		response.NotFound(c, response.CodeSaleNotFound, msg)
	case errors.Is(err, reconcile.ErrRunInProgress):
		response.BusinessError(c, response.CodeRunInProgress, msg)
	case errors.Is(err, reconcile.ErrPlatformDisabled),
		errors.Is(err, platform.ErrUnknownPlatform),
		errors.Is(err, platform.ErrEventNotLinked):
		response.BusinessError(c, response.CodePlatformUnavailable, msg)
	case errors.Is(err, service.ErrNoLinkedPlatforms):
		response.BusinessError(c, response.CodeNoLinkedPlatforms, msg)
	case errors.Is(err, service.ErrDiscrepancyFinal),
		errors.Is(err, repository.ErrDiscrepancyChanged):
		response.BusinessError(c, response.CodeResolutionConflict, msg)
	case errors.Is(err, repository.ErrSaleStale):
		response.BusinessError(c, response.CodeSaleStale, msg)
	default:
		response.ServerError(c, msg)
	}
}

func pagination(c *gin.Context) (int, int) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
