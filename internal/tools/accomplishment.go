package tools

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// AccomplishmentItem is one activity line of the report.
type AccomplishmentItem struct {
	Activity     string  `json:"activity" validate:"required,max=200"`
	Unit         string  `json:"unit" validate:"required,max=32"`
	Target       float64 `json:"target" validate:"gte=0"`
	Accomplished float64 `json:"accomplished" validate:"gte=0"`
	Remarks      string  `json:"remarks" validate:"max=500"`
}

// AccomplishmentRequest is the input of the accomplishment report.
type AccomplishmentRequest struct {
	Office      string               `json:"office" validate:"required,max=120"`
	PeriodStart string               `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string               `json:"period_end" validate:"required,datetime=2006-01-02"`
	PreparedBy  string               `json:"prepared_by" validate:"required,max=120"`
	Format      string               `json:"format" validate:"omitempty,oneof=csv pdf"`
	Items       []AccomplishmentItem `json:"items" validate:"required,min=1,max=200,dive"`
}

// Period returns the parsed reporting period.
func (r AccomplishmentRequest) Period() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, r.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(dateLayout, r.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("period end before start")
	}
	return start, end, nil
}

// Filename is the suggested download name, before sanitizing.
func (r AccomplishmentRequest) Filename(ext string) string {
	return fmt.Sprintf("Accomplishment Report %s %s to %s.%s", r.Office, r.PeriodStart, r.PeriodEnd, ext)
}

// Percent returns accomplished over target, or zero when there is no target.
func (i AccomplishmentItem) Percent() float64 {
	if i.Target <= 0 {
		return 0
	}
	return i.Accomplished / i.Target * 100
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AccomplishmentCSV renders the report as CSV.
func AccomplishmentCSV(req AccomplishmentRequest, generated time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"Accomplishment Report"},
		{"Office", req.Office},
		{"Period", req.PeriodStart + " to " + req.PeriodEnd},
		{"Prepared by", req.PreparedBy},
		{"Generated", generated.UTC().Format(time.RFC3339)},
		{},
		{"No.", "Activity", "Unit", "Target", "Accomplished", "% Accomplishment", "Remarks"},
	}
	for i, item := range req.Items {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			csvSafe(item.Activity),
			csvSafe(item.Unit),
			formatNumber(item.Target),
			formatNumber(item.Accomplished),
			strconv.FormatFloat(item.Percent(), 'f', 2, 64),
			csvSafe(item.Remarks),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvSafe neutralises values a spreadsheet would evaluate as formulas.
func csvSafe(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

var accomplishmentHTML = template.Must(template.New("accomplishment").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"num": formatNumber,
	"pct": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Accomplishment Report</title>
<style>body{font-family:sans-serif;font-size:11px}table{border-collapse:collapse;width:100%}td,th{border:1px solid #444;padding:4px}</style>
</head><body>
<h1>Accomplishment Report</h1>
<p>{{.Req.Office}}<br>{{.Req.PeriodStart}} to {{.Req.PeriodEnd}}</p>
<table><thead><tr><th>No.</th><th>Activity</th><th>Unit</th><th>Target</th><th>Accomplished</th><th>%</th><th>Remarks</th></tr></thead>
<tbody>{{range $i, $it := .Req.Items}}<tr><td>{{inc $i}}</td><td>{{$it.Activity}}</td><td>{{$it.Unit}}</td><td>{{num $it.Target}}</td><td>{{num $it.Accomplished}}</td><td>{{pct $it.Percent}}</td><td>{{$it.Remarks}}</td></tr>{{end}}</tbody>
</table>
<p>Prepared by: {{.Req.PreparedBy}}</p>
<p>Generated {{.Generated}}</p>
</body></html>`))

// AccomplishmentHTML renders the report as printable HTML for PDF conversion.
func AccomplishmentHTML(req AccomplishmentRequest, generated time.Time) (string, error) {
	var buf bytes.Buffer
	err := accomplishmentHTML.Execute(&buf, map[string]any{
		"Req":       req,
		"Generated": generated.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
