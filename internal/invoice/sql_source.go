package invoice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
)

// DefaultQuery returns one row per invoice line. Column order is fixed and
// must be kept by custom queries: number, date, quantity, line amount,
// description, invoice total, tax code, tax amount, tax description, table,
// staff, register, cash number, QR payload, then the six address fields.
const DefaultQuery = `
	SELECT i.invoice_nr, i.created_at, l.quantity,
		l.price * l.quantity, l.text,
		(SELECT SUM(x.quantity * x.price) FROM invoice_lines x WHERE x.invoice_id = i.id) AS total,
		CASE t.rate WHEN 10 THEN 'A' WHEN 20 THEN 'B' WHEN 5 THEN 'C' END AS tax_code,
		(l.price * l.quantity) / (100 + t.rate) * t.rate AS tax,
		t.description, i.table_code, i.staff_id,
		i.register_id, i.cash_nr, i.qr_payload,
		a.first_name, a.last_name, a.street, a.zip_code, a.city, a.company
	FROM invoices i
	JOIN invoice_lines l ON l.invoice_id = i.id
	JOIN tax_groups t ON t.id = l.tax_group_id
	LEFT JOIN invoice_addresses a ON a.id = i.address_id
	WHERE i.id = ?
	ORDER BY l.id
`

// SQLSource reads invoice rows from the point-of-sale database.
type SQLSource struct {
	db    *sql.DB
	query string
}

func Open(cfg config.InvoicesConfig) (*SQLSource, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open invoice database: %w", err)
	}
	return NewSQLSource(db, cfg.Driver, cfg.Query), nil
}

// NewSQLSource uses DefaultQuery when query is empty. Placeholders are
// written as ? and rebound for drivers that need numbered ones.
func NewSQLSource(db *sql.DB, driver, query string) *SQLSource {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	return &SQLSource{db: db, query: rebind(driver, query)}
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) FetchInvoiceRows(ctx context.Context, invoiceID int64) ([]core.InvoiceRow, error) {
	rows, err := s.db.QueryContext(ctx, s.query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []core.InvoiceRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice %d: %w", invoiceID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invoice %d: %w", invoiceID, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("invoice %d: %w", invoiceID, core.ErrDataNotFound)
	}
	return out, nil
}

// scanRow fails on NULL in any column other than the six address fields.
func scanRow(rows *sql.Rows) (core.InvoiceRow, error) {
	var (
		r       core.InvoiceRow
		date    timestamp
		address [6]sql.NullString
	)

	err := rows.Scan(
		&r.InvoiceNumber, &date, &r.Quantity,
		&r.Amount, &r.Description,
		&r.InvoiceTotal,
		&r.TaxCode,
		&r.TaxAmount,
		&r.TaxDescription, &r.TableCode, &r.StaffID,
		&r.RegisterID, &r.CashNumber, &r.QRPayload,
		&address[0], &address[1], &address[2], &address[3], &address[4], &address[5],
	)
	if err != nil {
		return r, err
	}

	r.Date = date.Time
	r.FirstName = nullable(address[0])
	r.LastName = nullable(address[1])
	r.Street = nullable(address[2])
	r.ZipCode = nullable(address[3])
	r.City = nullable(address[4])
	r.Company = nullable(address[5])
	return r, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// timestamp accepts native time values and the text forms sqlite and mysql
// without parseTime hand back.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
		return nil
	case nil:
		return errors.New("invoice date is NULL")
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
