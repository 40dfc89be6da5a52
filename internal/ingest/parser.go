// Package ingest turns uploaded PO worklists into supplier batches on
// the dispatch queue.
package ingest

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/common/metrics"
)

// Row is one PO line from an uploaded worklist.
type Row struct {
	PONumber       string
	POLine         string
	SupplierNumber string
	SupplierName   string
	ContactName    string
	Phone          string
	Email          string
	DueDate        time.Time
	Recommended    *time.Time
	ValueCents     int64
}

// RowParser extracts PO rows from an uploaded file
type RowParser interface {
	// Parse reads the file and returns its valid rows. Rows missing
	// required fields are dropped, not fatal.
	Parse(r io.Reader) ([]Row, error)
}

// XLSXParser reads Excel workbooks. The first sheet is assumed to hold
// the worklist with a header row.
type XLSXParser struct{}

// NewXLSXParser creates an Excel worklist parser
func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

// Column headers are matched case-insensitively with spaces and
// underscores stripped, so "PO Number", "po_number" and "PONumber"
// all resolve to the same field.
var headerAliases = map[string]string{
	"ponumber":           "poNumber",
	"purchaseorder":      "poNumber",
	"poline":             "poLine",
	"line":               "poLine",
	"suppliernumber":     "supplierNumber",
	"vendornumber":       "supplierNumber",
	"suppliername":       "supplierName",
	"vendorname":         "supplierName",
	"contactname":        "contactName",
	"contact":            "contactName",
	"phone":              "phone",
	"phonenumber":        "phone",
	"email":              "email",
	"duedate":            "dueDate",
	"needbydate":         "dueDate",
	"recommendeddate":    "recommended",
	"recommendedduedate": "recommended",
	"totalvalue":         "value",
	"value":              "value",
	"amount":             "value",
}

// Parse reads the workbook's first sheet into rows
func (p *XLSXParser) Parse(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, "file is not a readable workbook").WithCause(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, "workbook has no sheets")
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidFormat, "failed to read worksheet").WithCause(err)
	}
	if len(raw) < 2 {
		return nil, apperr.Validation(apperr.CodeInvalidValue, "worksheet has no data rows")
	}

	columns := mapHeader(raw[0])
	if columns["poNumber"] < 0 || columns["supplierNumber"] < 0 || columns["dueDate"] < 0 || columns["value"] < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidFormat,
			"worksheet is missing required columns (po number, supplier number, due date, total value)")
	}

	rows := make([]Row, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row, ok := parseRow(cells, columns)
		if !ok {
			metrics.UploadRowsTotal.WithLabelValues("invalid").Inc()
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// mapHeader maps canonical field names to column indexes, -1 when the
// column is absent.
func mapHeader(header []string) map[string]int {
	columns := map[string]int{
		"poNumber": -1, "poLine": -1, "supplierNumber": -1, "supplierName": -1,
		"contactName": -1, "phone": -1, "email": -1,
		"dueDate": -1, "recommended": -1, "value": -1,
	}
	for i, cell := range header {
		key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(cell)))
		if field, ok := headerAliases[key]; ok && columns[field] < 0 {
			columns[field] = i
		}
	}
	return columns
}

func parseRow(cells []string, columns map[string]int) (Row, bool) {
	cell := func(field string) string {
		idx := columns[field]
		if idx < 0 || idx >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[idx])
	}

	row := Row{
		PONumber:       cell("poNumber"),
		POLine:         cell("poLine"),
		SupplierNumber: cell("supplierNumber"),
		SupplierName:   cell("supplierName"),
		ContactName:    cell("contactName"),
		Phone:          cell("phone"),
		Email:          cell("email"),
	}
	if row.PONumber == "" || row.SupplierNumber == "" {
		return Row{}, false
	}
	if row.POLine == "" {
		row.POLine = "1"
	}
	if row.SupplierName == "" {
		row.SupplierName = row.SupplierNumber
	}

	due, err := parseDate(cell("dueDate"))
	if err != nil {
		return Row{}, false
	}
	row.DueDate = due

	if raw := cell("recommended"); raw != "" {
		rec, err := parseDate(raw)
		if err != nil {
			return Row{}, false
		}
		row.Recommended = &rec
	}

	cents, err := parseCents(cell("value"))
	if err != nil || cents < 0 {
		return Row{}, false
	}
	row.ValueCents = cents

	return row, true
}

// dateLayouts covers the formats spreadsheets commonly hand back after
// cell formatting.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
	"2006-01-02T15:04:05Z07:00",
	"Jan 2, 2006",
	"02 Jan 2006",
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseCents parses a decimal money string into integer cents without
// routing through binary floating point. Currency symbols and
// thousands separators are tolerated; more than two decimal places are
// rejected.
func parseCents(s string) (int64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, apperr.Validation(apperr.CodeRequired, "value is empty")
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, apperr.Validation(apperr.CodeInvalidValue, "value has more than two decimal places")
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, apperr.Validation(apperr.CodeInvalidValue, "value is not a number").WithCause(err)
	}
	fracCents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, apperr.Validation(apperr.CodeInvalidValue, "value is not a number").WithCause(err)
	}

	cents := dollars*100 + fracCents
	if negative {
		cents = -cents
	}
	return cents, nil
}
