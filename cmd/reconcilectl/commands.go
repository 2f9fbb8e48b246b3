package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"ticketrecon/internal/model"
	"ticketrecon/internal/reconcile"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

type runResultView struct {
	Platform string                      `json:"platform"`
	Report   *model.ReconciliationReport `json:"report,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

func newRunCommand(opts *cliOptions) *cobra.Command {
	var platformName string
	cmd := &cobra.Command{
		Use:   "run <event_id>",
		Short: "立即对账，未指定平台时对活动关联的全部平台对账",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"event_id": args[0], "platform": platformName}
			client := opts.client()

			if platformName != "" {
				var report model.ReconciliationReport
				err := client.do(cmd.Context(), http.MethodPost, "/api/v1/reconciliation/run", nil, body, &report)
				var apiErr *apiError
				if err != nil && !(errors.As(err, &apiErr) && report.ID != "") {
					return err
				}
				if opts.json {
					if jerr := writeJSON(cmd, report); jerr != nil {
						return jerr
					}
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderReports([]*model.ReconciliationReport{&report}))
				return err
			}

			var out struct {
				EventID string          `json:"event_id"`
				Results []runResultView `json:"results"`
			}
			if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/reconciliation/run", nil, body, &out); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, out)
			}
			rows := make([][]string, 0, len(out.Results))
			failed := 0
			for _, r := range out.Results {
				row := []string{r.Platform, "-", "-", "-", "-", r.Error}
				if r.Report != nil {
					row[1] = r.Report.Status
					row[2] = strconv.Itoa(r.Report.DiscrepanciesFound)
					row[3] = strconv.Itoa(r.Report.DiscrepanciesResolved)
					row[4] = r.Report.SyncHealth
				}
				if r.Error != "" {
					failed++
				}
				rows = append(rows, row)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Platform", "Status", "Found", "Resolved", "Health", "Error"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}))
			if failed > 0 {
				return fmt.Errorf("%d 个平台对账失败", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&platformName, "platform", "p", "", "票务平台")
	return cmd
}

func newReportsCommand(opts *cliOptions) *cobra.Command {
	var eventID string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "列出对账报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if eventID != "" {
				q.Set("event_id", eventID)
			}
			q.Set("page", strconv.Itoa(page))
			q.Set("page_size", strconv.Itoa(pageSize))

			var out struct {
				List []*model.ReconciliationReport `json:"list"`
			}
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/reconciliation/reports", q, nil, &out); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, out.List)
			}
			if len(out.List) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "没有对账报告")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderReports(out.List))
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventID, "event", "e", "", "活动ID")
	cmd.Flags().IntVar(&page, "page", 1, "页码")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "每页条数")
	return cmd
}

func renderReports(reports []*model.ReconciliationReport) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.ID,
			r.EventID,
			r.Platform,
			r.Status,
			strconv.Itoa(r.TotalLocalSales),
			strconv.Itoa(r.TotalPlatformSales),
			strconv.Itoa(r.DiscrepanciesFound),
			strconv.Itoa(r.DiscrepanciesResolved),
			r.SyncHealth,
			r.StartTime.Local().Format(timeLayout),
		})
	}
	return renderTable(
		[]string{"ID", "Event", "Platform", "Status", "Local", "Remote", "Found", "Resolved", "Health", "Started"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft})
}

func newStatsCommand(opts *cliOptions) *cobra.Command {
	var eventID string
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "对账统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if eventID != "" {
				q.Set("event_id", eventID)
			}
			q.Set("limit", strconv.Itoa(limit))

			var stats reconcile.Stats
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/reconciliation/stats", q, nil, &stats); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, stats)
			}

			w := cmd.OutOrStdout()
			fmt.Fprint(w, renderTable([]string{"Metric", "Value"}, [][]string{
				{"Reports", strconv.Itoa(stats.TotalReports)},
				{"Avg discrepancies", strconv.FormatFloat(stats.AverageDiscrepancies, 'f', 2, 64)},
				{"Resolution rate", strconv.FormatFloat(stats.ResolutionRate*100, 'f', 1, 64) + "%"},
			}, []columnAlignment{alignLeft, alignRight}))

			names := make([]string, 0, len(stats.PlatformBreakdown))
			for name := range stats.PlatformBreakdown {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				p := stats.PlatformBreakdown[name]
				rows = append(rows, []string{name, strconv.Itoa(p.Reports), strconv.Itoa(p.Discrepancies), strconv.Itoa(p.Resolved)})
			}
			if len(rows) > 0 {
				fmt.Fprint(w, renderTable([]string{"Platform", "Reports", "Found", "Resolved"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventID, "event", "e", "", "活动ID，为空时统计全部")
	cmd.Flags().IntVar(&limit, "limit", 100, "统计最近的报告数")
	return cmd
}

func newPendingCommand(opts *cliOptions) *cobra.Command {
	var eventID string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "待人工处理的差异",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if eventID != "" {
				q.Set("event_id", eventID)
			}
			var ds []*model.ReconciliationDiscrepancy
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/reconciliation/discrepancies/pending", q, nil, &ds); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, ds)
			}
			if len(ds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "没有待处理的差异")
				return nil
			}
			rows := make([][]string, 0, len(ds))
			for _, d := range ds {
				rows = append(rows, []string{
					d.ID, d.Platform, d.Type, d.Severity, d.OrderID,
					strconv.FormatInt(d.Impact, 10), d.DetectedAt.Local().Format(timeLayout),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Platform", "Type", "Severity", "Order", "Impact", "Detected"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventID, "event", "e", "", "活动ID")
	return cmd
}

func newResolveCommand(opts *cliOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "resolve <discrepancy_id> <ignored|platform_updated|manual_review>",
		Short: "人工处理差异",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"resolution": args[1], "notes": notes, "user_id": opts.user}
			var d model.ReconciliationDiscrepancy
			path := "/api/v1/reconciliation/discrepancies/" + url.PathEscape(args[0]) + "/resolve"
			if err := opts.client().do(cmd.Context(), http.MethodPost, path, nil, body, &d); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "差异 %s 已标记为 %s\n", d.ID, d.Resolution)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "处理说明")
	return cmd
}

func newAlertsCommand(opts *cliOptions) *cobra.Command {
	var eventID string
	var all bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "列出告警，默认只显示未确认的",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if eventID != "" {
				q.Set("event_id", eventID)
			}
			if !all {
				q.Set("unacknowledged", "true")
			}
			var alerts []*model.ReconciliationAlert
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/alerts", q, nil, &alerts); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, alerts)
			}
			if len(alerts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "没有告警")
				return nil
			}
			rows := make([][]string, 0, len(alerts))
			for _, a := range alerts {
				acked := "-"
				if a.Acknowledged {
					acked = a.AcknowledgedBy
				}
				rows = append(rows, []string{
					a.ID, a.EventID, a.Platform, a.Type, a.Severity, acked,
					a.CreatedAt.Local().Format(timeLayout), a.Message,
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Event", "Platform", "Type", "Severity", "Acked by", "Raised", "Message"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventID, "event", "e", "", "活动ID")
	cmd.Flags().BoolVar(&all, "all", false, "包含已确认的告警")
	return cmd
}

func newAckCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <alert_id>",
		Short: "确认告警",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a model.ReconciliationAlert
			path := "/api/v1/alerts/" + url.PathEscape(args[0]) + "/ack"
			if err := opts.client().do(cmd.Context(), http.MethodPost, path, nil, map[string]string{"user_id": opts.user}, &a); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, a)
			}
			at := "-"
			if a.AcknowledgedAt != nil {
				at = a.AcknowledgedAt.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "告警 %s 已由 %s 确认 (%s)\n", a.ID, a.AcknowledgedBy, at)
			return nil
		},
	}
}
