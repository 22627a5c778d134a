package payroll

import (
	"context"
	"errors"
	"html/template"
	"sync"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/printing"
	"go.uber.org/zap"
)

const payslipTemplate = `<!DOCTYPE html>
<html lang="tr">
<head>
<meta charset="UTF-8">
<title>Maaş Bordrosu</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { width: 100%; border-collapse: collapse; }
td { padding: 4px 8px; border-bottom: 1px solid #ddd; }
td.amount { text-align: right; }
tr.total td { font-weight: bold; border-top: 2px solid #000; }
</style>
</head>
<body>
<h1>{{upper "Maaş Bordrosu"}}</h1>
<p><strong>{{title .Name}}</strong>{{if .Title}} - {{.Title}}{{end}}</p>
<p>{{default "-" .Department}}</p>
<p>Dönem: {{formatMonth .PeriodStart}} ({{formatDate .PeriodStart}} - {{formatDate .PeriodEnd}})</p>
<table>
<tr><td>Brüt Maaş</td><td class="amount">{{formatMoney .Gross}}</td></tr>
<tr><td>Gelir Vergisi ({{formatPercent .EffectiveTaxRate}})</td><td class="amount">{{formatMoney .IncomeTax}}</td></tr>
<tr><td>SGK Primi</td><td class="amount">{{formatMoney .SGKPremium}}</td></tr>
<tr><td>İşsizlik Sigortası</td><td class="amount">{{formatMoney .UnemploymentPremium}}</td></tr>
<tr><td>Toplam Kesinti</td><td class="amount">{{formatMoney .TotalDeductions}}</td></tr>
<tr class="total"><td>Net Maaş</td><td class="amount">{{formatMoney .Net}}</td></tr>
</table>
<p>Durum: {{.Status}}</p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
</body>
</html>`

// Payslip is a rendered payslip document
type Payslip struct {
	FileName    string
	ContentType string
	Data        []byte
}

// PayslipService renders payslips as HTML or PDF
type PayslipService struct {
	payrolls payroll.PayrollRepository
	engine   *printing.TemplateEngine
	renderer printing.PDFRenderer
	logger   *zap.Logger

	once sync.Once
	tmpl *template.Template
	err  error
}

// NewPayslipService creates a new payslip service
func NewPayslipService(
	payrolls payroll.PayrollRepository,
	engine *printing.TemplateEngine,
	renderer printing.PDFRenderer,
	logger *zap.Logger,
) *PayslipService {
	return &PayslipService{
		payrolls: payrolls,
		engine:   engine,
		renderer: renderer,
		logger:   logger,
	}
}

// HTML renders the payslip page
func (s *PayslipService) HTML(ctx context.Context, actor Actor, id uuid.UUID) (*Payslip, error) {
	p, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	html, err := s.render(p)
	if err != nil {
		return nil, err
	}
	return &Payslip{
		FileName:    fileName(p, "html"),
		ContentType: "text/html; charset=utf-8",
		Data:        []byte(html),
	}, nil
}

// PDF renders the payslip through the configured PDF renderer
func (s *PayslipService) PDF(ctx context.Context, actor Actor, id uuid.UUID) (*Payslip, error) {
	p, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	html, err := s.render(p)
	if err != nil {
		return nil, err
	}

	result, err := s.renderer.Render(ctx, &printing.RenderRequest{
		HTML:      html,
		PaperSize: printing.PaperSizeA4,
		Title:     "Maaş Bordrosu",
	})
	if err != nil {
		if errors.Is(err, printing.ErrDisabled) {
			return nil, shared.NewDomainError("UPSTREAM_UNAVAILABLE", "PDF rendering is disabled")
		}
		s.logger.Error("Payslip PDF rendering failed",
			zap.String("payroll_id", id.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("UPSTREAM", "Failed to render payslip PDF")
	}
	return &Payslip{
		FileName:    fileName(p, "pdf"),
		ContentType: "application/pdf",
		Data:        result.Data,
	}, nil
}

func (s *PayslipService) load(ctx context.Context, actor Actor, id uuid.UUID) (*payroll.Payroll, error) {
	p, err := s.payrolls.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Payroll")
		}
		return nil, err
	}
	if p.Employee == nil {
		return nil, shared.NewNotFoundError("Employee")
	}
	if !actor.IsAdmin && !p.Employee.BelongsTo(actor.UserID) {
		return nil, shared.NewForbiddenError("You can only view your own payslips")
	}
	return p, nil
}

func (s *PayslipService) render(p *payroll.Payroll) (string, error) {
	s.once.Do(func() {
		s.tmpl, s.err = s.engine.Parse("payslip", payslipTemplate)
	})
	if s.err != nil {
		return "", s.err
	}
	return s.engine.Execute(s.tmpl, map[string]any{
		"Name":                p.Employee.FullName(),
		"Title":               p.Employee.Title,
		"Department":          p.Employee.Department,
		"PeriodStart":         p.PeriodStart,
		"PeriodEnd":           p.PeriodEnd,
		"Gross":               p.GrossSalary,
		"IncomeTax":           p.IncomeTax,
		"EffectiveTaxRate":    p.EffectiveTaxRate,
		"SGKPremium":          p.SGKPremium,
		"UnemploymentPremium": p.UnemploymentPremium,
		"TotalDeductions":     p.TotalDeductions,
		"Net":                 p.NetSalary,
		"Status":              string(p.Status),
		"Notes":               p.Notes,
	})
}

func fileName(p *payroll.Payroll, ext string) string {
	return "payslip-" + p.PeriodStart.Format("2006-01") + "-" + p.ID.String()[:8] + "." + ext
}
