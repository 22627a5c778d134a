// Package cemetery implements the cemetery registry: layout of cemeteries,
// blocks and graves, burial recording, the visitor desk and occupancy reports.
package cemetery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/cemetery"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/printing"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const metricsModule = "cemetery"

// Repositories groups the cemetery persistence ports
type Repositories struct {
	Cemeteries cemetery.CemeteryRepository
	Blocks     cemetery.BlockRepository
	Graves     cemetery.GraveRepository
	Burials    cemetery.BurialRepository
	Visitors   cemetery.VisitorRepository
}

// GraveInput lays out a new grave
type GraveInput struct {
	BlockID   uuid.UUID
	Number    string
	GraveType string
	Latitude  *float64
	Longitude *float64
}

// VisitInput is a visitor desk entry
type VisitInput struct {
	CemeteryID  uuid.UUID
	VisitorName string
	Phone       string
	SoughtName  string
	Purpose     string
	GraveID     *uuid.UUID
}

// CemeteryOccupancy is the fill level of one cemetery
type CemeteryOccupancy struct {
	CemeteryID    uuid.UUID `json:"cemetery_id"`
	Name          string    `json:"name"`
	TotalCapacity int       `json:"total_capacity"`
	Occupied      int       `json:"occupied"`
	Available     int       `json:"available"`
	OccupancyRate float64   `json:"occupancy_rate"`
}

// StatusReport is the overall state of the active cemeteries
type StatusReport struct {
	Cemeteries     int                            `json:"cemeteries"`
	TotalCapacity  int64                          `json:"total_capacity"`
	Occupied       int64                          `json:"occupied"`
	Available      int64                          `json:"available"`
	OccupancyRate  float64                        `json:"occupancy_rate"`
	TotalGraves    int64                          `json:"total_graves"`
	GravesByStatus map[cemetery.GraveStatus]int64 `json:"graves_by_status"`
	ByCemetery     []CemeteryOccupancy            `json:"by_cemetery"`
}

// MonthlyBurials is the number of burials in one month
type MonthlyBurials struct {
	Month int   `json:"month"`
	Count int64 `json:"count"`
}

// BurialReport summarises burials of a year. ThisMonth always refers to the
// current calendar month.
type BurialReport struct {
	Year      int              `json:"year"`
	ThisMonth int64            `json:"this_month"`
	ThisYear  int64            `json:"this_year"`
	Monthly   []MonthlyBurials `json:"monthly"`
}

// BlockOccupancy is the fill level of one block
type BlockOccupancy struct {
	BlockID       uuid.UUID `json:"block_id"`
	BlockNumber   string    `json:"block_number"`
	Capacity      int       `json:"capacity"`
	Occupied      int       `json:"occupied"`
	Empty         int       `json:"empty"`
	OccupancyRate float64   `json:"occupancy_rate"`
}

// OccupancyReport is the fill level of a cemetery, block by block
type OccupancyReport struct {
	CemeteryOccupancy
	Blocks []BlockOccupancy `json:"blocks"`
}

// Service manages the cemetery registry
type Service struct {
	repos   Repositories
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a cemetery service; metrics may be nil
func NewService(repos Repositories, metrics *telemetry.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repos:   repos,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateCemetery registers a cemetery
func (s *Service) CreateCemetery(ctx context.Context, d cemetery.CemeteryDetails) (*cemetery.Cemetery, error) {
	c, err := cemetery.NewCemetery(d)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Cemeteries.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("Cemetery registered", zap.String("cemetery_id", c.ID.String()), zap.String("name", c.Name))
	return c, nil
}

// GetCemetery returns a cemetery
func (s *Service) GetCemetery(ctx context.Context, id uuid.UUID) (*cemetery.Cemetery, error) {
	return s.cemetery(ctx, id)
}

// ListCemeteries returns a page of cemeteries
func (s *Service) ListCemeteries(ctx context.Context, filter cemetery.CemeteryFilter) (shared.Paginated[cemetery.Cemetery], error) {
	items, total, err := s.repos.Cemeteries.List(ctx, filter)
	if err != nil {
		return shared.Paginated[cemetery.Cemetery]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// UpdateCemetery edits a cemetery
func (s *Service) UpdateCemetery(ctx context.Context, id uuid.UUID, d cemetery.CemeteryDetails) (*cemetery.Cemetery, error) {
	c, err := s.cemetery(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Update(d); err != nil {
		return nil, err
	}
	if err := s.repos.Cemeteries.Update(ctx, c); err != nil {
		return nil, notFoundAs(err, "Cemetery")
	}
	return c, nil
}

// DeleteCemetery deactivates a cemetery; its records are kept
func (s *Service) DeleteCemetery(ctx context.Context, id uuid.UUID) error {
	c, err := s.cemetery(ctx, id)
	if err != nil {
		return err
	}
	c.Deactivate()
	if err := s.repos.Cemeteries.Update(ctx, c); err != nil {
		return notFoundAs(err, "Cemetery")
	}
	s.logger.Info("Cemetery deactivated", zap.String("cemetery_id", id.String()))
	return nil
}

// CreateBlock adds a block to a cemetery
func (s *Service) CreateBlock(ctx context.Context, cemeteryID uuid.UUID, number string, capacity int) (*cemetery.Block, error) {
	c, err := s.cemetery(ctx, cemeteryID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, shared.NewStateError("Cemetery is not active")
	}
	b, err := cemetery.NewBlock(cemeteryID, number, capacity)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Blocks.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBlocks returns the blocks of a cemetery
func (s *Service) ListBlocks(ctx context.Context, cemeteryID uuid.UUID) ([]cemetery.Block, error) {
	if _, err := s.cemetery(ctx, cemeteryID); err != nil {
		return nil, err
	}
	return s.repos.Blocks.ListByCemetery(ctx, cemeteryID)
}

// CreateGrave lays out a grave in a block. A block with a capacity cannot
// hold more graves than that.
func (s *Service) CreateGrave(ctx context.Context, in GraveInput) (*cemetery.Grave, error) {
	b, err := s.block(ctx, in.BlockID)
	if err != nil {
		return nil, err
	}
	if b.Capacity > 0 {
		count, err := s.repos.Graves.CountByBlock(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if count >= int64(b.Capacity) {
			return nil, shared.NewBusinessRuleError("Block has no room for another grave")
		}
	}
	g, err := cemetery.NewGrave(b.ID, in.Number, in.GraveType, in.Latitude, in.Longitude)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Graves.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGrave returns a grave
func (s *Service) GetGrave(ctx context.Context, id uuid.UUID) (*cemetery.Grave, error) {
	return s.grave(ctx, id)
}

// ListGraves returns a page of graves
func (s *Service) ListGraves(ctx context.Context, filter cemetery.GraveFilter) (shared.Paginated[cemetery.Grave], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return shared.Paginated[cemetery.Grave]{}, shared.NewValidationError("Unknown grave status")
	}
	items, total, err := s.repos.Graves.List(ctx, filter)
	if err != nil {
		return shared.Paginated[cemetery.Grave]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// ReserveGrave holds an empty grave
func (s *Service) ReserveGrave(ctx context.Context, id uuid.UUID) (*cemetery.Grave, error) {
	return s.changeGrave(ctx, id, (*cemetery.Grave).Reserve, "Grave reserved")
}

// ReleaseGrave frees a reserved grave
func (s *Service) ReleaseGrave(ctx context.Context, id uuid.UUID) (*cemetery.Grave, error) {
	return s.changeGrave(ctx, id, (*cemetery.Grave).Release, "Grave released")
}

func (s *Service) changeGrave(ctx context.Context, id uuid.UUID, change func(*cemetery.Grave) error, message string) (*cemetery.Grave, error) {
	g, err := s.grave(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := change(g); err != nil {
		return nil, err
	}
	if err := s.repos.Graves.Update(ctx, g); err != nil {
		return nil, notFoundAs(err, "Grave")
	}
	s.logger.Info(message, zap.String("grave_id", id.String()))
	return g, nil
}

// RecordBurial records an interment into a grave that is not occupied yet.
// Names are stored title-cased.
func (s *Service) RecordBurial(ctx context.Context, userID, graveID uuid.UUID, d cemetery.BurialDetails) (b *cemetery.Burial, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "burial", started, err)
	}(time.Now())

	g, err := s.grave(ctx, graveID)
	if err != nil {
		return nil, err
	}
	b, err = cemetery.NewBurial(g, titleNames(d), userID)
	if err != nil {
		return nil, err
	}
	if err = s.repos.Burials.Record(ctx, b); err != nil {
		return nil, notFoundAs(err, "Grave")
	}
	s.logger.Info("Burial recorded",
		zap.String("burial_id", b.ID.String()),
		zap.String("grave_id", graveID.String()),
		zap.String("recorded_by", userID.String()))
	return b, nil
}

// UpdateBurial corrects a burial record
func (s *Service) UpdateBurial(ctx context.Context, id uuid.UUID, d cemetery.BurialDetails) (*cemetery.Burial, error) {
	b, err := s.burial(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.Update(titleNames(d)); err != nil {
		return nil, err
	}
	if err := s.repos.Burials.Update(ctx, b); err != nil {
		return nil, notFoundAs(err, "Burial record")
	}
	return b, nil
}

// GetBurial returns a burial record
func (s *Service) GetBurial(ctx context.Context, id uuid.UUID) (*cemetery.Burial, error) {
	return s.burial(ctx, id)
}

// ListBurials returns a page of burial records
func (s *Service) ListBurials(ctx context.Context, filter cemetery.BurialFilter) (shared.Paginated[cemetery.Burial], error) {
	items, total, err := s.repos.Burials.List(ctx, filter)
	if err != nil {
		return shared.Paginated[cemetery.Burial]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// SearchBurials finds burials by name or national ID. The query is required.
func (s *Service) SearchBurials(ctx context.Context, filter cemetery.BurialFilter) (shared.Paginated[cemetery.Burial], error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Search == "" {
		return shared.Paginated[cemetery.Burial]{}, shared.NewValidationError("Search text is required")
	}
	return s.ListBurials(ctx, filter)
}

// LogVisit writes a visitor desk entry. A grave given must lie in the
// visited cemetery.
func (s *Service) LogVisit(ctx context.Context, in VisitInput) (*cemetery.VisitorLog, error) {
	if _, err := s.cemetery(ctx, in.CemeteryID); err != nil {
		return nil, err
	}
	if in.GraveID != nil {
		g, err := s.grave(ctx, *in.GraveID)
		if err != nil {
			return nil, err
		}
		b, err := s.block(ctx, g.BlockID)
		if err != nil {
			return nil, err
		}
		if b.CemeteryID != in.CemeteryID {
			return nil, shared.NewValidationError("Grave is not in this cemetery")
		}
	}
	log, err := cemetery.NewVisitorLog(in.CemeteryID, in.VisitorName, in.Phone, printing.TitleName(in.SoughtName), in.Purpose, in.GraveID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repos.Visitors.Create(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// ListVisits returns a page of visitor log entries
func (s *Service) ListVisits(ctx context.Context, filter cemetery.VisitorFilter) (shared.Paginated[cemetery.VisitorLog], error) {
	items, total, err := s.repos.Visitors.List(ctx, filter)
	if err != nil {
		return shared.Paginated[cemetery.VisitorLog]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// StatusReport sums capacity and occupancy over the active cemeteries
func (s *Service) StatusReport(ctx context.Context) (*StatusReport, error) {
	cemeteries, err := s.activeCemeteries(ctx)
	if err != nil {
		return nil, err
	}
	graves, err := s.repos.Graves.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Cemeteries:     len(cemeteries),
		GravesByStatus: graves,
		ByCemetery:     make([]CemeteryOccupancy, 0, len(cemeteries)),
	}
	for _, count := range graves {
		report.TotalGraves += count
	}
	for i := range cemeteries {
		c := &cemeteries[i]
		report.TotalCapacity += int64(c.TotalCapacity)
		report.Occupied += int64(c.Occupied)
		report.ByCemetery = append(report.ByCemetery, occupancyOf(c))
	}
	report.Available = max(report.TotalCapacity-report.Occupied, 0)
	report.OccupancyRate = cemetery.OccupancyRate(report.Occupied, report.TotalCapacity)
	return report, nil
}

// BurialReport counts burials per month of year; zero means the current year
func (s *Service) BurialReport(ctx context.Context, year int) (*BurialReport, error) {
	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	if year < 1900 || year > now.Year()+1 {
		return nil, shared.NewValidationError("Year is out of range")
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	dates, err := s.repos.Burials.BurialDates(ctx, from, from.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}
	report := &BurialReport{Year: year, ThisYear: int64(len(dates)), Monthly: make([]MonthlyBurials, 12)}
	for i := range report.Monthly {
		report.Monthly[i].Month = i + 1
	}
	for _, d := range dates {
		report.Monthly[d.Month()-1].Count++
	}

	if year == now.Year() {
		report.ThisMonth = report.Monthly[now.Month()-1].Count
	} else {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		current, err := s.repos.Burials.BurialDates(ctx, monthStart, monthStart.AddDate(0, 1, 0))
		if err != nil {
			return nil, err
		}
		report.ThisMonth = int64(len(current))
	}
	return report, nil
}

// OccupancyReport breaks the occupancy of a cemetery down by block
func (s *Service) OccupancyReport(ctx context.Context, cemeteryID uuid.UUID) (*OccupancyReport, error) {
	c, err := s.cemetery(ctx, cemeteryID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.repos.Blocks.ListByCemetery(ctx, cemeteryID)
	if err != nil {
		return nil, err
	}
	report := &OccupancyReport{CemeteryOccupancy: occupancyOf(c), Blocks: make([]BlockOccupancy, 0, len(blocks))}
	for _, b := range blocks {
		report.Blocks = append(report.Blocks, BlockOccupancy{
			BlockID:       b.ID,
			BlockNumber:   b.BlockNumber,
			Capacity:      b.Capacity,
			Occupied:      b.Occupied,
			Empty:         max(b.Capacity-b.Occupied, 0),
			OccupancyRate: cemetery.OccupancyRate(int64(b.Occupied), int64(b.Capacity)),
		})
	}
	return report, nil
}

func (s *Service) activeCemeteries(ctx context.Context) ([]cemetery.Cemetery, error) {
	var all []cemetery.Cemetery
	filter := cemetery.CemeteryFilter{Filter: shared.Filter{Page: 1, PageSize: 100}}
	for {
		page, total, err := s.repos.Cemeteries.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			return all, nil
		}
		filter.Page++
	}
}

func occupancyOf(c *cemetery.Cemetery) CemeteryOccupancy {
	return CemeteryOccupancy{
		CemeteryID:    c.ID,
		Name:          c.Name,
		TotalCapacity: c.TotalCapacity,
		Occupied:      c.Occupied,
		Available:     c.Available(),
		OccupancyRate: cemetery.OccupancyRate(int64(c.Occupied), int64(c.TotalCapacity)),
	}
}

func titleNames(d cemetery.BurialDetails) cemetery.BurialDetails {
	d.DeceasedName = printing.TitleName(d.DeceasedName)
	d.FatherName = printing.TitleName(d.FatherName)
	d.MotherName = printing.TitleName(d.MotherName)
	d.RelativeName = printing.TitleName(d.RelativeName)
	return d
}

func (s *Service) cemetery(ctx context.Context, id uuid.UUID) (*cemetery.Cemetery, error) {
	c, err := s.repos.Cemeteries.FindByID(ctx, id)
	return c, notFoundAs(err, "Cemetery")
}

func (s *Service) block(ctx context.Context, id uuid.UUID) (*cemetery.Block, error) {
	b, err := s.repos.Blocks.FindByID(ctx, id)
	return b, notFoundAs(err, "Block")
}

func (s *Service) grave(ctx context.Context, id uuid.UUID) (*cemetery.Grave, error) {
	g, err := s.repos.Graves.FindByID(ctx, id)
	return g, notFoundAs(err, "Grave")
}

func (s *Service) burial(ctx context.Context, id uuid.UUID) (*cemetery.Burial, error) {
	b, err := s.repos.Burials.FindByID(ctx, id)
	return b, notFoundAs(err, "Burial record")
}

func notFoundAs(err error, resource string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(resource)
	}
	return err
}
