package backtest

import (
	"bytes"
	"io"
	"os"
	"text/template"
	"time"
)

var reportOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

// WriteOrg renders the run as an org-mode report.
func (r Run) WriteOrg(w io.Writer) error {
	t, err := template.New("run").Funcs(reportOrgFuncs).Parse(runOrgTemplate)
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, r); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// WriteOrgFile renders the run to path.
func (r Run) WriteOrgFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.WriteOrg(f)
}

// WriteOrg renders the sweep as an org-mode report, completed runs first and
// failed windows at the end.
func (r *RollingReport) WriteOrg(w io.Writer) error {
	t, err := template.New("rolling").Funcs(reportOrgFuncs).Parse(rollingOrgTemplate)
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, r); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// WriteOrgFile renders the sweep to path.
func (r *RollingReport) WriteOrgFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.WriteOrg(f)
}

const runOrgTemplate = `
* BACKTEST: {{.Strategy}} {{.Symbol}}
:PROPERTIES:
:RUN_ID:        {{.RunID}}
:STRATEGY:      {{.Strategy}}
:SYMBOL:        {{.Symbol}}
:START_DATE:    {{.WindowStart.Format "2006-01-02"}}
:END_DATE:      {{.WindowEnd.Format "2006-01-02"}}
:START_BAL:     {{printf "%.2f" .InitialBalance}}
:END_BAL:       {{printf "%.2f" .Metrics.FinalBalance}}
:RETURN_PCT:    {{printf "%.2f" .Metrics.TotalReturnPct}}
:MAX_DD_PCT:    {{printf "%.2f" .Metrics.MDDPct}}
:WIN_RATE:      {{printf "%.2f" .Metrics.WinRatePct}}
:TRADES:        {{.Metrics.TotalTrades}}
:LIQUIDATIONS:  {{.Metrics.TotalLiquidations}}
:END:

** Performance Summary
- Return:        *{{printf "%.2f" .Metrics.TotalReturnPct}}%*
- Market Return: *{{printf "%.2f" .Metrics.MarketReturnPct}}%*
- Max Drawdown:  *{{printf "%.2f" .Metrics.MDDPct}}%*
- Win Rate:      *{{printf "%.2f" .Metrics.WinRatePct}}%*
- Trades:        *{{.Metrics.TotalTrades}}*
- Liquidations:  *{{.Metrics.TotalLiquidations}}*

** Trades
| Entry | Exit | Side | Px In | Px Out | P/L | Forced |
|-------+------+------+-------+--------+-----+--------|
{{- range .Trades }}
| {{.EntryTime.Format "2006-01-02 15:04"}} | {{.ExitTime.Format "2006-01-02 15:04"}} | {{.Side}} | {{printf "%.2f" .EntryPrice}} | {{printf "%.2f" .ExitPrice}} | {{printf "%.2f" .RealizedPL}} | {{if .Forced}}yes{{else}}no{{end}} |
{{- end }}
`

const rollingOrgTemplate = `
* ROLLING BACKTEST: {{.Strategy}} {{.Symbol}}
:PROPERTIES:
:STRATEGY:   {{.Strategy}}
:SYMBOL:     {{.Symbol}}
:RUNS:       {{len .Runs}}
:FAILED:     {{len .Failed}}
:END:

** Aggregate
| Metric            |      Min |      P25 |   Median |      P75 |      Max |
|-------------------+----------+----------+----------+----------+----------|
| final_balance     | {{printf "%8.2f" .Aggregate.FinalBalance.Min}} | {{printf "%8.2f" .Aggregate.FinalBalance.P25}} | {{printf "%8.2f" .Aggregate.FinalBalance.Median}} | {{printf "%8.2f" .Aggregate.FinalBalance.P75}} | {{printf "%8.2f" .Aggregate.FinalBalance.Max}} |
| total_return_pct  | {{printf "%8.2f" .Aggregate.TotalReturnPct.Min}} | {{printf "%8.2f" .Aggregate.TotalReturnPct.P25}} | {{printf "%8.2f" .Aggregate.TotalReturnPct.Median}} | {{printf "%8.2f" .Aggregate.TotalReturnPct.P75}} | {{printf "%8.2f" .Aggregate.TotalReturnPct.Max}} |
| mdd_pct           | {{printf "%8.2f" .Aggregate.MDDPct.Min}} | {{printf "%8.2f" .Aggregate.MDDPct.P25}} | {{printf "%8.2f" .Aggregate.MDDPct.Median}} | {{printf "%8.2f" .Aggregate.MDDPct.P75}} | {{printf "%8.2f" .Aggregate.MDDPct.Max}} |
| win_rate_pct      | {{printf "%8.2f" .Aggregate.WinRatePct.Min}} | {{printf "%8.2f" .Aggregate.WinRatePct.P25}} | {{printf "%8.2f" .Aggregate.WinRatePct.Median}} | {{printf "%8.2f" .Aggregate.WinRatePct.P75}} | {{printf "%8.2f" .Aggregate.WinRatePct.Max}} |
| total_trades      | {{printf "%8.2f" .Aggregate.TotalTrades.Min}} | {{printf "%8.2f" .Aggregate.TotalTrades.P25}} | {{printf "%8.2f" .Aggregate.TotalTrades.Median}} | {{printf "%8.2f" .Aggregate.TotalTrades.P75}} | {{printf "%8.2f" .Aggregate.TotalTrades.Max}} |
| total_liq         | {{printf "%8.2f" .Aggregate.TotalLiquidations.Min}} | {{printf "%8.2f" .Aggregate.TotalLiquidations.P25}} | {{printf "%8.2f" .Aggregate.TotalLiquidations.Median}} | {{printf "%8.2f" .Aggregate.TotalLiquidations.P75}} | {{printf "%8.2f" .Aggregate.TotalLiquidations.Max}} |
| market_return_pct | {{printf "%8.2f" .Aggregate.MarketReturnPct.Min}} | {{printf "%8.2f" .Aggregate.MarketReturnPct.P25}} | {{printf "%8.2f" .Aggregate.MarketReturnPct.Median}} | {{printf "%8.2f" .Aggregate.MarketReturnPct.P75}} | {{printf "%8.2f" .Aggregate.MarketReturnPct.Max}} |

** Windows
| Start | End | Return % | MDD % | Trades | Liq |
|-------+-----+----------+-------+--------+-----|
{{- range .Runs }}
| {{.WindowStart.Format "2006-01-02"}} | {{.WindowEnd.Format "2006-01-02"}} | {{printf "%.2f" .Metrics.TotalReturnPct}} | {{printf "%.2f" .Metrics.MDDPct}} | {{.Metrics.TotalTrades}} | {{.Metrics.TotalLiquidations}} |
{{- end }}

{{- if .Failed }}

** Failed Windows
{{- range .Failed }}
- {{.Window.Start.Format "2006-01-02"}} .. {{.Window.End.Format "2006-01-02"}}: {{.Err}}
{{- end }}
{{- end }}
`
