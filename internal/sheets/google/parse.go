package google

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"costalloc/internal/core"
)

// Column headers of the financials sheet. Every other column is a direct
// cost category, matched by normalized label.
const (
	colYear    = "Year"
	colQuarter = "Quarter"
	colProject = "Project"
	colRevenue = "Revenue"
	colType    = "Type"
	colAmount  = "Amount"
)

// parseFinancials converts the financials sheet into project financials
// grouped by period key. Rows with an unreadable period or no project ID are
// skipped.
func parseFinancials(values [][]interface{}) (map[string]map[string]core.ProjectFinancials, error) {
	out := make(map[string]map[string]core.ProjectFinancials)
	if len(values) == 0 {
		return out, nil
	}
	headers := toStrings(values[0])
	cYear, cQuarter := indexOf(headers, colYear), indexOf(headers, colQuarter)
	cProject, cRevenue := indexOf(headers, colProject), indexOf(headers, colRevenue)
	if missing := missingColumns(map[string]int{
		colYear: cYear, colQuarter: cQuarter, colProject: cProject, colRevenue: cRevenue,
	}); missing != "" {
		return nil, fmt.Errorf("unexpected financials header: missing %s; got headers=%v", missing, headers)
	}

	costCols := make(map[int]string)
	for i, h := range headers {
		if i == cYear || i == cQuarter || i == cProject || i == cRevenue || h == "" {
			continue
		}
		costCols[i] = core.NormalizeLabel(h)
	}

	for i := 1; i < len(values); i++ {
		row := values[i]
		p, ok := parsePeriodCells(cell(row, cYear), cell(row, cQuarter))
		if !ok {
			continue
		}
		projectID := strings.TrimSpace(numberString(cell(row, cProject)))
		if projectID == "" {
			continue
		}
		revenue, _ := parseAmountCell(cell(row, cRevenue))
		f := core.ProjectFinancials{
			ProjectID:            projectID,
			Period:               p,
			Revenue:              revenue,
			DirectCostByCategory: make(map[string]decimal.Decimal),
		}
		for col, label := range costCols {
			if v, ok := parseAmountCell(cell(row, col)); ok {
				f.DirectCostByCategory[label] = f.DirectCostByCategory[label].Add(v)
			}
		}
		if out[p.Key()] == nil {
			out[p.Key()] = make(map[string]core.ProjectFinancials)
		}
		out[p.Key()][projectID] = f
	}
	return out, nil
}

// parseFixedCosts reads Year, Quarter, Type, Amount rows. Repeated keys sum.
func parseFixedCosts(values [][]interface{}) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if len(values) == 0 {
		return out, nil
	}
	headers := toStrings(values[0])
	cYear, cQuarter := indexOf(headers, colYear), indexOf(headers, colQuarter)
	cType, cAmount := indexOf(headers, colType), indexOf(headers, colAmount)
	if missing := missingColumns(map[string]int{
		colYear: cYear, colQuarter: cQuarter, colType: cType, colAmount: cAmount,
	}); missing != "" {
		return nil, fmt.Errorf("unexpected fixed costs header: missing %s; got headers=%v", missing, headers)
	}

	for i := 1; i < len(values); i++ {
		row := values[i]
		p, ok := parsePeriodCells(cell(row, cYear), cell(row, cQuarter))
		if !ok {
			continue
		}
		t, err := core.ParseProjectType(fmt.Sprint(cell(row, cType)))
		if err != nil {
			continue
		}
		amount, ok := parseAmountCell(cell(row, cAmount))
		if !ok {
			continue
		}
		k := fixedKey(p, t)
		out[k] = out[k].Add(amount)
	}
	return out, nil
}

func fixedKey(p core.Period, t core.ProjectType) string {
	return p.Key() + "/" + string(t)
}

func missingColumns(cols map[string]int) string {
	var missing []string
	for _, name := range []string{colYear, colQuarter, colProject, colRevenue, colType, colAmount} {
		if idx, ok := cols[name]; ok && idx == -1 {
			missing = append(missing, name)
		}
	}
	return strings.Join(missing, ",")
}

// parsePeriodCells accepts a quarter as 1-4 or Q1-Q4.
func parsePeriodCells(year, quarter interface{}) (core.Period, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(numberString(year)))
	if err != nil {
		return core.Period{}, false
	}
	qs := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(numberString(quarter))), "Q")
	q, err := strconv.Atoi(qs)
	if err != nil {
		return core.Period{}, false
	}
	p, err := core.NewPeriod(y, q)
	if err != nil {
		return core.Period{}, false
	}
	return p, true
}

// parseAmountCell reads an unformatted number or a formatted amount string
// such as "€ 1.234,50" or "1,234.50". Empty cells report false.
func parseAmountCell(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	s = strings.NewReplacer("€", "", "$", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" || s == "-" {
		return decimal.Zero, false
	}
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma && lastComma != -1:
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// numberString renders float cells without a fractional part when whole.
func numberString(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func cell(row []interface{}, idx int) interface{} {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
