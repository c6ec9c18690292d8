package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	dateLayout       = "2006-01-02 15:04"
	descriptionWidth = 41
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// TaxBucket accumulates the tax and taxable sums of one tax-rate code.
type TaxBucket struct {
	Code        string
	Description string
	TaxSum      decimal.Decimal
	TaxableSum  decimal.Decimal
}

// Expand merges rows into the template. Unknown placeholders are left
// as they are so partially filled templates keep working.
func Expand(rows []InvoiceRow, tmpl string, kind OutputKind) (string, error) {
	ns, err := Namespace(rows)
	if err != nil {
		return "", err
	}

	doc := substitute(tmpl, ns)
	if kind == OutputEscPos {
		doc = collapseNewlines(doc)
	}
	return doc, nil
}

// Namespace builds the substitution values. Header fields come from the
// first row only.
func Namespace(rows []InvoiceRow) (map[string]string, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInvoiceData
	}

	first := rows[0]
	return map[string]string{
		"articles":        Articles(rows),
		"invoiceNumber":   fmt.Sprintf("%d", first.InvoiceNumber),
		"date":            first.Date.Format(dateLayout),
		"total":           FormatMoney(first.InvoiceTotal),
		"taxes":           TaxSummary(TaxBuckets(rows)),
		"tischCode":       first.TableCode,
		"kellnerKurzName": first.StaffID,
		"kasseid":         first.RegisterID,
		"barumsatzNummer": first.CashNumber,
		"qrCode":          first.QRPayload,
		"vorname":         optional(first.FirstName),
		"nachname":        optional(first.LastName),
		"strasse":         optional(first.Street),
		"plz":             optional(first.ZipCode),
		"ort":             optional(first.City),
		"firma":           optional(first.Company),
	}, nil
}

func Articles(rows []InvoiceRow) string {
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%-3dx %s %7s %s<br />",
			row.Quantity, fitDescription(row.Description), FormatMoney(row.Amount), row.TaxCode)
	}
	return b.String()
}

// TaxBuckets groups rows by tax-rate code in first-seen order.
func TaxBuckets(rows []InvoiceRow) []*TaxBucket {
	var buckets []*TaxBucket
	index := make(map[string]*TaxBucket)
	for _, row := range rows {
		bucket, ok := index[row.TaxCode]
		if !ok {
			bucket = &TaxBucket{Code: row.TaxCode, Description: row.TaxDescription}
			index[row.TaxCode] = bucket
			buckets = append(buckets, bucket)
		}
		bucket.TaxSum = bucket.TaxSum.Add(row.TaxAmount)
		bucket.TaxableSum = bucket.TaxableSum.Add(row.Amount)
	}
	return buckets
}

func TaxSummary(buckets []*TaxBucket) string {
	var b strings.Builder
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "%s: %s MwSt. von %s = %s<br />",
			bucket.Code, bucket.Description, FormatMoney(bucket.TaxableSum), FormatMoney(bucket.TaxSum))
	}
	return b.String()
}

// FormatMoney renders an amount with two decimals using half-to-even
// rounding.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixedBank(2)
}

func substitute(tmpl string, ns map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := ns[name]; ok {
			return value
		}
		return match
	})
}

func collapseNewlines(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func fitDescription(s string) string {
	n := utf8.RuneCountInString(s)
	if n > descriptionWidth {
		return string([]rune(s)[:descriptionWidth])
	}
	return s + strings.Repeat(" ", descriptionWidth-n)
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
