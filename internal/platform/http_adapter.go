package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/pkg/money"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// EventLinkResolver 本地活动ID -> 平台活动ID
type EventLinkResolver interface {
	ExternalEventID(ctx context.Context, eventID, platform string) (string, error)
}

// HTTPAdapter 通用的 JSON 分页订单接口适配器，按配置实例化给各个平台
type HTTPAdapter struct {
	name       string
	baseURL    string
	apiKey     string
	apiKeyHdr  string
	ordersPath string
	pageSize   int
	http       *http.Client
	limiter    *rate.Limiter
	links      EventLinkResolver
}

func NewHTTPAdapter(name string, cfg config.PlatformConfig, links EventLinkResolver) (*HTTPAdapter, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("平台 %s 缺少 base_url", name)
	}
	hdr := cfg.APIKeyHeader
	if hdr == "" {
		hdr = "X-API-Key"
	}
	path := cfg.OrdersPath
	if path == "" {
		path = "/events/{event_id}/orders"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	a := &HTTPAdapter{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiKeyHdr:  hdr,
		ordersPath: path,
		pageSize:   pageSize,
		http:       &http.Client{Timeout: timeout},
		links:      links,
	}
	if cfg.RateLimitPerMin > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMin)), 1)
	}
	return a, nil
}

func (a *HTTPAdapter) Name() string {
	return a.name
}

type ordersPage struct {
	Orders     []orderDTO `json:"orders"`
	Data       []orderDTO `json:"data"`
	NextCursor string     `json:"next_cursor"`
	HasMore    *bool      `json:"has_more"`
}

type orderDTO struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	TicketType    string `json:"ticket_type"`
	Quantity      int    `json:"quantity"`
	Total         string `json:"total"`
	Currency      string `json:"currency"`
	CreatedAt     string `json:"created_at"`
}

// FetchSales 拉取活动在平台上的全部有效订单
func (a *HTTPAdapter) FetchSales(ctx context.Context, eventID string) ([]*model.PlatformSaleRecord, error) {
	externalID := eventID
	if a.links != nil {
		id, err := a.links.ExternalEventID(ctx, eventID, a.name)
		if err != nil {
			return nil, err
		}
		externalID = id
	}

	var out []*model.PlatformSaleRecord
	cursor := ""
	for {
		page, err := a.getPage(ctx, externalID, cursor)
		if err != nil {
			return nil, err
		}
		items := page.Orders
		if len(items) == 0 {
			items = page.Data
		}
		for _, dto := range items {
			rec, ok, err := a.toRecord(eventID, dto)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, rec)
			}
		}
		more := page.NextCursor != ""
		if page.HasMore != nil {
			more = *page.HasMore && page.NextCursor != ""
		}
		if !more {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func (a *HTTPAdapter) getPage(ctx context.Context, externalID, cursor string) (ordersPage, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// 等到下一个令牌会超过截止时间
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return ordersPage{}, a.wrapCtxErr(err)
		}
	}

	endpoint := a.baseURL + strings.ReplaceAll(a.ordersPath, "{event_id}", url.PathEscape(externalID))
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(a.pageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return ordersPage{}, err
	}
	if a.apiKey != "" {
		req.Header.Set(a.apiKeyHdr, a.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return ordersPage{}, a.wrapCtxErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return ordersPage{}, a.wrapCtxErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ordersPage{}, fmt.Errorf("%s 返回 HTTP %d: %s", a.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page ordersPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ordersPage{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, a.name, err)
	}
	return page, nil
}

func (a *HTTPAdapter) wrapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrAdapterTimeout, a.name, err)
	}
	return fmt.Errorf("请求 %s 失败: %w", a.name, err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// toRecord 已取消/已退款的订单不参与对账
func (a *HTTPAdapter) toRecord(eventID string, dto orderDTO) (*model.PlatformSaleRecord, bool, error) {
	switch strings.ToLower(dto.Status) {
	case "cancelled", "canceled", "refunded", "deleted":
		return nil, false, nil
	}
	orderID := dto.OrderID
	if orderID == "" {
		orderID = dto.ID
	}
	if orderID == "" {
		return nil, false, fmt.Errorf("%w: %s 订单缺少ID", ErrMalformedPayload, a.name)
	}
	currency := money.NormalizeCurrency(dto.Currency)
	amount := decimal.Zero
	if strings.TrimSpace(dto.Total) != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(dto.Total))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s 订单 %s 金额 %q", ErrMalformedPayload, a.name, orderID, dto.Total)
		}
		amount = d
	}
	var purchasedAt time.Time
	if dto.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, dto.CreatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s 订单 %s 时间 %q", ErrMalformedPayload, a.name, orderID, dto.CreatedAt)
		}
		purchasedAt = t
	}
	qty := dto.Quantity
	if qty <= 0 {
		qty = 1
	}
	return &model.PlatformSaleRecord{
		OrderID:       orderID,
		EventID:       eventID,
		Platform:      a.name,
		CustomerName:  dto.CustomerName,
		CustomerEmail: dto.CustomerEmail,
		TicketType:    dto.TicketType,
		Quantity:      qty,
		TotalAmount:   money.ToMinor(amount, currency),
		Currency:      currency,
		PurchasedAt:   purchasedAt,
	}, true, nil
}
