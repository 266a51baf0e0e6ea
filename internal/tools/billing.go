package tools

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ErrBillingInput marks a billing sheet that cannot be consolidated.
var ErrBillingInput = errors.New("tools: invalid billing sheet")

// BillingSheet is one uploaded billing file.
type BillingSheet struct {
	Name    string
	Content []byte
}

// BillingLine is the consolidated total for one account.
type BillingLine struct {
	AccountNo string
	Name      string
	Area      float64
	Amount    float64
	Sheets    int
}

var columnAliases = map[string]string{
	"account_no":     "account_no",
	"account no":     "account_no",
	"account number": "account_no",
	"account":        "account_no",
	"name":           "name",
	"farmer":         "name",
	"account name":   "name",
	"area":           "area",
	"area (ha)":      "area",
	"area_ha":        "area",
	"amount":         "amount",
	"amount due":     "amount",
	"isf":            "amount",
}

// ConsolidateBilling groups rows from every sheet by account number, summing
// area and amount. Lines come back sorted by account number.
func ConsolidateBilling(sheets []BillingSheet) ([]BillingLine, error) {
	byAccount := make(map[string]*BillingLine)
	for _, sheet := range sheets {
		seen := make(map[string]bool)
		if err := readSheet(sheet, func(row billingRow) {
			line, ok := byAccount[row.account]
			if !ok {
				line = &BillingLine{AccountNo: row.account}
				byAccount[row.account] = line
			}
			if line.Name == "" {
				line.Name = row.name
			}
			line.Area += row.area
			line.Amount += row.amount
			if !seen[row.account] {
				seen[row.account] = true
				line.Sheets++
			}
		}); err != nil {
			return nil, err
		}
	}
	lines := make([]BillingLine, 0, len(byAccount))
	for _, l := range byAccount {
		l.Amount = math.Round(l.Amount*100) / 100
		lines = append(lines, *l)
	}
	slices.SortFunc(lines, func(a, b BillingLine) int { return strings.Compare(a.AccountNo, b.AccountNo) })
	return lines, nil
}

type billingRow struct {
	account string
	name    string
	area    float64
	amount  float64
}

func readSheet(sheet BillingSheet, emit func(billingRow)) error {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(sheet.Content, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%w: %s: missing header", ErrBillingInput, sheet.Name)
	}
	cols := make(map[string]int)
	for i, h := range header {
		if key, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	for _, required := range []string{"account_no", "amount"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("%w: %s: missing column %s", ErrBillingInput, sheet.Name, required)
		}
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%w: %s: line %d: %v", ErrBillingInput, sheet.Name, line, err)
		}
		field := func(key string) string {
			i, ok := cols[key]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		account := field("account_no")
		if account == "" {
			continue
		}
		amount, err := parseAmount(field("amount"))
		if err != nil {
			return fmt.Errorf("%w: %s: line %d: amount %q", ErrBillingInput, sheet.Name, line, field("amount"))
		}
		area, err := parseAmount(field("area"))
		if err != nil {
			return fmt.Errorf("%w: %s: line %d: area %q", ErrBillingInput, sheet.Name, line, field("area"))
		}
		emit(billingRow{account: account, name: field("name"), area: area, amount: amount})
	}
}

func parseAmount(raw string) (float64, error) {
	raw = strings.NewReplacer(",", "", "₱", "", "PHP", "", " ", "").Replace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// BillingCSV renders consolidated lines with a closing total row.
func BillingCSV(lines []BillingLine) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Account No.", "Name", "Area (ha)", "Amount", "Sheets"}); err != nil {
		return nil, err
	}
	var area, amount float64
	for _, l := range lines {
		area += l.Area
		amount += l.Amount
		rec := []string{
			csvSafe(l.AccountNo),
			csvSafe(l.Name),
			strconv.FormatFloat(l.Area, 'f', 4, 64),
			strconv.FormatFloat(l.Amount, 'f', 2, 64),
			strconv.Itoa(l.Sheets),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	if err := w.Write([]string{"TOTAL", "", strconv.FormatFloat(area, 'f', 4, 64), strconv.FormatFloat(amount, 'f', 2, 64), ""}); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
