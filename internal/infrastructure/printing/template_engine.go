package printing

import (
	"bytes"
	"fmt"
	"html/template"
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateEngine renders HTML templates with Turkish number, date and name
// formatting helpers.
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		funcMap: template.FuncMap{
			"formatMoney":   FormatMoney,
			"formatDecimal": formatDecimal,
			"formatPercent": formatPercent,
			"formatDate":    formatDate,
			"formatMonth":   formatMonth,
			"title":         TitleName,
			"upper":         upperTR,
			"default":       defaultString,
		},
	}
}

// Parse compiles a named template with the engine's functions
func (e *TemplateEngine) Parse(name, content string) (*template.Template, error) {
	if content == "" {
		return nil, ErrEmptyHTML
	}
	tmpl, err := template.New(name).Funcs(e.funcMap).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// Execute renders a parsed template with data
func (e *TemplateEngine) Execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// RenderString parses and renders content in one step
func (e *TemplateEngine) RenderString(name, content string, data any) (string, error) {
	tmpl, err := e.Parse(name, content)
	if err != nil {
		return "", err
	}
	return e.Execute(tmpl, data)
}

// FuncMap returns a copy of the template function map
func (e *TemplateEngine) FuncMap() template.FuncMap {
	funcMap := make(template.FuncMap, len(e.funcMap))
	maps.Copy(funcMap, e.funcMap)
	return funcMap
}

var (
	titleCaser = cases.Title(language.Turkish)
	upperCaser = cases.Upper(language.Turkish)
)

// TitleName title-cases a person's name with Turkish casing rules
// (e.g. "iLKAY İŞCAN" -> "İlkay İşcan")
func TitleName(s string) string {
	return titleCaser.String(strings.Join(strings.Fields(s), " "))
}

func upperTR(s string) string {
	return upperCaser.String(s)
}

// FormatMoney formats an amount the Turkish way: 1.234,56 TL
func FormatMoney(d decimal.Decimal) string {
	return formatDecimal(d) + " TL"
}

// formatDecimal uses "." for thousands and "," for decimals
func formatDecimal(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	intPart, decPart, _ := strings.Cut(d.StringFixed(2), ".")
	var result strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			result.WriteRune('.')
		}
		result.WriteRune(c)
	}
	return sign + result.String() + "," + decPart
}

// formatPercent prints a rate already expressed in percent, e.g. 15 -> "%15,00"
func formatPercent(d decimal.Decimal) string {
	return "%" + strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}

var turkishMonths = [...]string{"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
	"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"}

// formatMonth prints "Ocak 2025"
func formatMonth(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return turkishMonths[t.Month()-1] + " " + t.Format("2006")
}

func defaultString(def, v string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
