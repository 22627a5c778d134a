package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	cemeteryapp "github.com/municipal/backoffice/internal/application/cemetery"
	payrollapp "github.com/municipal/backoffice/internal/application/payroll"
	workflowapp "github.com/municipal/backoffice/internal/application/workflow"
	"github.com/municipal/backoffice/internal/domain/cemetery"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/domain/workflow"
	"github.com/municipal/backoffice/internal/infrastructure/event"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
)

// seedFile is the YAML reference data loaded by `migrate seed`
type seedFile struct {
	FinancialSettings []settingsSeed `yaml:"financial_settings"`
	WorkflowTemplates []templateSeed `yaml:"workflow_templates"`
	Cemeteries        []cemeterySeed `yaml:"cemeteries"`
}

type settingsSeed struct {
	Year                     int           `yaml:"year"`
	EffectiveDate            string        `yaml:"effective_date"`
	MinimumWage              string        `yaml:"minimum_wage"`
	SGKEmployeeRate          string        `yaml:"sgk_employee_rate"`
	SGKEmployerRate          string        `yaml:"sgk_employer_rate"`
	UnemploymentEmployeeRate string        `yaml:"unemployment_employee_rate"`
	UnemploymentEmployerRate string        `yaml:"unemployment_employer_rate"`
	StampTaxRate             string        `yaml:"stamp_tax_rate"`
	Brackets                 []bracketSeed `yaml:"brackets"`
}

type bracketSeed struct {
	Min  string `yaml:"min"`
	Max  string `yaml:"max"`
	Rate string `yaml:"rate"`
}

type templateSeed struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []stepSeed `yaml:"steps"`
}

type stepSeed struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Role         string `yaml:"role"`
	Department   string `yaml:"department"`
	DeadlineDays int    `yaml:"deadline_days"`
	Optional     bool   `yaml:"optional"`
}

type cemeterySeed struct {
	Name      string      `yaml:"name"`
	Address   string      `yaml:"address"`
	Province  string      `yaml:"province"`
	District  string      `yaml:"district"`
	Capacity  int         `yaml:"capacity"`
	Latitude  *float64    `yaml:"latitude"`
	Longitude *float64    `yaml:"longitude"`
	Blocks    []blockSeed `yaml:"blocks"`
}

type blockSeed struct {
	Number    string `yaml:"number"`
	Capacity  int    `yaml:"capacity"`
	Graves    int    `yaml:"graves"`
	GraveType string `yaml:"grave_type"`
}

type seedResult struct {
	Settings   int
	Templates  int
	Cemeteries int
	Graves     int
	Skipped    int
}

func loadSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &f, nil
}

// seeder loads reference data through the application services so the
// same validation applies as for API requests. Existing rows are skipped.
type seeder struct {
	settings   *payrollapp.SettingsService
	workflows  *workflowapp.Service
	cemeteries *cemeteryapp.Service
	log        *zap.Logger
}

func newSeeder(db *gorm.DB, log *zap.Logger) *seeder {
	bus := event.NewInMemoryEventBus(log)
	return &seeder{
		settings: payrollapp.NewSettingsService(persistence.NewGormSettingsRepository(db),
			payroll.NewCalculator(payroll.DefaultFallbackRates()), payroll.DefaultMinimumWage, bus, log),
		workflows: workflowapp.NewService(
			persistence.NewGormWorkflowTemplateRepository(db),
			persistence.NewGormWorkflowRepository(db),
			persistence.NewGormWorkflowActionRepository(db),
			nil, nil, nil, log),
		cemeteries: cemeteryapp.NewService(cemeteryapp.Repositories{
			Cemeteries: persistence.NewGormCemeteryRepository(db),
			Blocks:     persistence.NewGormBlockRepository(db),
			Graves:     persistence.NewGormGraveRepository(db),
			Burials:    persistence.NewGormBurialRepository(db),
			Visitors:   persistence.NewGormVisitorRepository(db),
		}, nil, log),
		log: log,
	}
}

func (s *seeder) apply(ctx context.Context, f *seedFile) (seedResult, error) {
	var res seedResult
	for _, in := range f.FinancialSettings {
		created, err := s.seedSettings(ctx, in)
		if err != nil {
			return res, fmt.Errorf("financial settings %d: %w", in.Year, err)
		}
		count(&res.Settings, &res.Skipped, created)
	}
	for _, in := range f.WorkflowTemplates {
		created, err := s.seedTemplate(ctx, in)
		if err != nil {
			return res, fmt.Errorf("workflow template %q: %w", in.Name, err)
		}
		count(&res.Templates, &res.Skipped, created)
	}
	for _, in := range f.Cemeteries {
		graves, created, err := s.seedCemetery(ctx, in)
		if err != nil {
			return res, fmt.Errorf("cemetery %q: %w", in.Name, err)
		}
		count(&res.Cemeteries, &res.Skipped, created)
		res.Graves += graves
	}
	return res, nil
}

func count(created, skipped *int, ok bool) {
	if ok {
		*created++
	} else {
		*skipped++
	}
}

func (s *seeder) seedSettings(ctx context.Context, in settingsSeed) (bool, error) {
	existing, err := s.settings.List(ctx, in.Year)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		s.log.Info("Financial settings already present", zap.Int("year", in.Year))
		return false, nil
	}

	var p decimalParser
	input := payrollapp.SettingsInput{
		EffectiveYear:            in.Year,
		MinimumWage:              p.parse("minimum_wage", in.MinimumWage),
		SGKEmployeeRate:          p.parse("sgk_employee_rate", in.SGKEmployeeRate),
		SGKEmployerRate:          p.parse("sgk_employer_rate", in.SGKEmployerRate),
		UnemploymentEmployeeRate: p.parse("unemployment_employee_rate", in.UnemploymentEmployeeRate),
		UnemploymentEmployerRate: p.parse("unemployment_employer_rate", in.UnemploymentEmployerRate),
		StampTaxRate:             p.parse("stamp_tax_rate", in.StampTaxRate),
	}
	for i, b := range in.Brackets {
		bracket := payrollapp.BracketInput{
			MinAmount: p.parse("brackets["+strconv.Itoa(i)+"].min", b.Min),
			Rate:      p.parse("brackets["+strconv.Itoa(i)+"].rate", b.Rate),
		}
		if b.Max != "" {
			upper := p.parse("brackets["+strconv.Itoa(i)+"].max", b.Max)
			bracket.MaxAmount = &upper
		}
		input.Brackets = append(input.Brackets, bracket)
	}
	if p.err != nil {
		return false, p.err
	}

	input.EffectiveDate = time.Date(in.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if in.EffectiveDate != "" {
		d, err := time.Parse(time.DateOnly, in.EffectiveDate)
		if err != nil {
			return false, fmt.Errorf("effective_date: %w", err)
		}
		input.EffectiveDate = d
	}

	if _, err := s.settings.Create(ctx, input, uuid.Nil); err != nil {
		return false, err
	}
	s.log.Info("Financial settings seeded", zap.Int("year", in.Year))
	return true, nil
}

func (s *seeder) seedTemplate(ctx context.Context, in templateSeed) (bool, error) {
	steps := make([]workflow.StepInput, len(in.Steps))
	for i, st := range in.Steps {
		steps[i] = workflow.StepInput{
			Name:               st.Name,
			Order:              i + 1,
			Type:               workflow.StepType(st.Type),
			AssignedRole:       st.Role,
			AssignedDepartment: st.Department,
			DeadlineDays:       st.DeadlineDays,
			IsOptional:         st.Optional,
		}
	}
	_, err := s.workflows.CreateTemplate(ctx, workflowapp.TemplateInput{
		Name:        in.Name,
		Description: in.Description,
		Steps:       steps,
	})
	if shared.CodeOf(err) == shared.CodeAlreadyExists {
		s.log.Info("Workflow template already present", zap.String("name", in.Name))
		return false, nil
	}
	return err == nil, err
}

func (s *seeder) seedCemetery(ctx context.Context, in cemeterySeed) (int, bool, error) {
	page, err := s.cemeteries.ListCemeteries(ctx, cemetery.CemeteryFilter{
		Filter:          shared.Filter{Page: 1, PageSize: 100, Search: in.Name},
		IncludeInactive: true,
	})
	if err != nil {
		return 0, false, err
	}
	for _, c := range page.Items {
		if strings.EqualFold(c.Name, strings.TrimSpace(in.Name)) {
			s.log.Info("Cemetery already present", zap.String("name", in.Name))
			return 0, false, nil
		}
	}

	c, err := s.cemeteries.CreateCemetery(ctx, cemetery.CemeteryDetails{
		Name:          in.Name,
		Address:       in.Address,
		Province:      in.Province,
		District:      in.District,
		TotalCapacity: in.Capacity,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
	})
	if err != nil {
		return 0, false, err
	}

	graves := 0
	for _, b := range in.Blocks {
		block, err := s.cemeteries.CreateBlock(ctx, c.ID, b.Number, b.Capacity)
		if err != nil {
			return graves, true, fmt.Errorf("block %s: %w", b.Number, err)
		}
		for n := 1; n <= b.Graves; n++ {
			if _, err := s.cemeteries.CreateGrave(ctx, cemeteryapp.GraveInput{
				BlockID:   block.ID,
				Number:    strconv.Itoa(n),
				GraveType: b.GraveType,
			}); err != nil {
				return graves, true, fmt.Errorf("block %s grave %d: %w", b.Number, n, err)
			}
			graves++
		}
	}
	s.log.Info("Cemetery seeded", zap.String("name", c.Name), zap.Int("blocks", len(in.Blocks)), zap.Int("graves", graves))
	return graves, true, nil
}

// decimalParser keeps the first parse error so a whole record can be
// converted before checking
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(field, value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid decimal %q", field, value)
	}
	return d
}

func newSeedCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load financial settings, workflow templates and cemeteries from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSeedFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}
			db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{Logger: c.log, LogLevel: "warn"})
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := newSeeder(db.DB, c.log).apply(cmd.Context(), f)
			if err != nil {
				return err
			}
			c.log.Info("Seed completed",
				zap.Int("financial_settings", res.Settings),
				zap.Int("workflow_templates", res.Templates),
				zap.Int("cemeteries", res.Cemeteries),
				zap.Int("graves", res.Graves),
				zap.Int("skipped", res.Skipped),
			)
			return nil
		},
	}
}
