package invoice

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"coachbook/internal/domain/payment"
)

// Party is a name and address printed on the document.
type Party struct {
	Name  string
	Email string
}

type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

type Renderer interface {
	Render(inv *Invoice, coach, client Party) (*Document, error)
}

const invoiceHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Invoice {{.Invoice.InvoiceNumber}}</title></head>
<body>
<h1>Invoice {{.Invoice.InvoiceNumber}}</h1>
<p>From: {{.Coach.Name}} &lt;{{.Coach.Email}}&gt;<br>
To: {{.Client.Name}} &lt;{{.Client.Email}}&gt;</p>
<p>Issued {{date .Invoice.IssueDate}}, due {{date .Invoice.DueDate}}</p>
<table>
<tr><th>Description</th><th>Qty</th><th>Unit price</th><th>Discount</th><th>Amount</th></tr>
{{- range .Invoice.Items}}
<tr><td>{{.Description}}</td><td>{{.Quantity.String}}</td><td>{{money .UnitPriceCents}}</td><td>{{money .DiscountCents}}</td><td>{{money .AmountCents}}</td></tr>
{{- end}}
</table>
<p>Subtotal: {{money .Invoice.SubtotalCents}} {{.Invoice.Currency}}<br>
Tax: {{money .Invoice.TaxAmountCents}} {{.Invoice.Currency}}<br>
Discount: {{money .Invoice.DiscountCents}} {{.Invoice.Currency}}<br>
<strong>Total: {{money .Invoice.TotalCents}} {{.Invoice.Currency}}</strong><br>
Paid: {{money .Invoice.AmountPaidCents}} {{.Invoice.Currency}}<br>
<strong>Balance due: {{money .Invoice.BalanceDueCents}} {{.Invoice.Currency}}</strong></p>
{{- if .Invoice.Notes}}
<p>{{.Invoice.Notes}}</p>
{{- end}}
{{- if .Invoice.Terms}}
<p><small>{{.Invoice.Terms}}</small></p>
{{- end}}
</body>
</html>
`

type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"money": payment.FormatAmount,
		"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	}
	return &HTMLRenderer{tmpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTML))}
}

func (r *HTMLRenderer) Render(inv *Invoice, coach, client Party) (*Document, error) {
	var buf bytes.Buffer
	data := struct {
		Invoice *Invoice
		Coach   Party
		Client  Party
	}{inv, coach, client}
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return &Document{
		Filename:    inv.InvoiceNumber + ".html",
		ContentType: "text/html; charset=utf-8",
		Body:        buf.Bytes(),
	}, nil
}
