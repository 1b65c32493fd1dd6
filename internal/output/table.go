package output

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/namelens/guildrest/internal/core"
	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/core/store"
)

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

// RoutesTable lists catalog routes.
func RoutesTable(routes []route.Route) string {
	t := newTable(table.Row{"Name", "Method", "Template", "Major"})
	for _, r := range routes {
		t.AppendRow(table.Row{r.Name, r.Method, r.Template, dash(r.Major)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d routes", len(routes)), ""})
	return t.Render()
}

// BucketsTable lists live bucket snapshots and the global lock.
func BucketsTable(buckets []core.BucketSnapshot, global core.GlobalLockSnapshot) string {
	t := newTable(table.Row{"Bucket", "Phase", "Remaining", "Reset", "In Flight", "Queued"})
	for _, b := range buckets {
		t.AppendRow(table.Row{
			b.Key,
			string(b.Phase),
			fmt.Sprintf("%d/%d", b.Remaining, b.Limit),
			formatTime(b.ResetAt),
			b.InFlight,
			b.Queued,
		})
	}

	lock := "global: open"
	if global.Locked {
		lock = "global: locked until " + formatTime(global.ResumeAt)
	}
	t.AppendFooter(table.Row{lock, "", "", "", "", ""})
	return t.Render()
}

// StoredBucketsTable lists persisted bucket state.
func StoredBucketsTable(entries []store.BucketEntry, now time.Time) string {
	if len(entries) == 0 {
		return "(no stored bucket state)"
	}

	t := newTable(table.Row{"Bucket", "Remaining", "Reset", "Last 429", "Updated"})
	for _, e := range entries {
		reset := formatTime(&e.State.ResetAt)
		if e.State.Exhausted(now) {
			reset += " (exhausted)"
		}
		t.AppendRow(table.Row{
			e.Key,
			fmt.Sprintf("%d/%d", e.State.Remaining, e.State.Limit),
			reset,
			formatTime(e.State.Last429At),
			formatTime(&e.State.UpdatedAt),
		})
	}
	return t.Render()
}

// ResultTable summarizes one dispatched call.
func ResultTable(name string, res engine.Result) string {
	t := newTable(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Route", name})

	status := "-"
	if res.StatusCode > 0 {
		status = fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	t.AppendRow(table.Row{"Status", status})
	t.AppendRow(table.Row{"Rate Limited", res.RateLimited})

	for _, name := range []string{engine.HeaderBucket, engine.HeaderLimit, engine.HeaderRemaining, engine.HeaderResetAfter} {
		if value := res.Header.Get(name); value != "" {
			t.AppendRow(table.Row{name, value})
		}
	}
	if res.Err != nil {
		t.AppendRow(table.Row{"Error", res.Err.Error()})
	}
	if body := strings.TrimSpace(string(res.Body)); body != "" {
		t.AppendRow(table.Row{"Body", truncate(body, 400)})
	}
	return t.Render()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "…"
}
