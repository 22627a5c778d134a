package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/cemetery"
	"github.com/municipal/backoffice/internal/domain/shared"
	"gorm.io/gorm"
)

// CemeterySortFields contains allowed sort fields for cemeteries
var CemeterySortFields = map[string]bool{
	"created_at":     true,
	"name":           true,
	"province":       true,
	"total_capacity": true,
	"occupied":       true,
}

// GraveSortFields contains allowed sort fields for graves
var GraveSortFields = map[string]bool{
	"created_at":   true,
	"grave_number": true,
	"status":       true,
}

// BurialSortFields contains allowed sort fields for burial records
var BurialSortFields = map[string]bool{
	"created_at":    true,
	"burial_date":   true,
	"death_date":    true,
	"deceased_name": true,
}

const blocksOfCemetery = "SELECT id FROM cemetery_blocks WHERE cemetery_id = ?"

// GormCemeteryRepository implements cemetery.CemeteryRepository using GORM
type GormCemeteryRepository struct {
	db *gorm.DB
}

// NewGormCemeteryRepository creates a new GormCemeteryRepository
func NewGormCemeteryRepository(db *gorm.DB) *GormCemeteryRepository {
	return &GormCemeteryRepository{db: db}
}

// Create saves a new cemetery
func (r *GormCemeteryRepository) Create(ctx context.Context, c *cemetery.Cemetery) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// Update saves the editable columns of a cemetery. Occupied is left to
// burial recording.
func (r *GormCemeteryRepository) Update(ctx context.Context, c *cemetery.Cemetery) error {
	result := r.db.WithContext(ctx).Model(c).
		Select("name", "address", "province", "district", "total_capacity", "latitude", "longitude", "is_active", "updated_at").
		Updates(c)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a cemetery by ID
func (r *GormCemeteryRepository) FindByID(ctx context.Context, id uuid.UUID) (*cemetery.Cemetery, error) {
	var c cemetery.Cemetery
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// List returns a filtered page of cemeteries, by name unless asked otherwise
func (r *GormCemeteryRepository) List(ctx context.Context, filter cemetery.CemeteryFilter) ([]cemetery.Cemetery, int64, error) {
	if filter.OrderBy == "" && filter.OrderDir == "" {
		filter.OrderDir = "asc"
	}
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&cemetery.Cemetery{})

	if !filter.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if filter.Province != "" {
		query = query.Where("province = ?", filter.Province)
	}
	if filter.District != "" {
		query = query.Where("district = ?", filter.District)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(filter.Search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cemeteries []cemetery.Cemetery
	query = orderBy(query, filter.Filter, CemeterySortFields, "name")
	if err := paginate(query, filter.Filter).Find(&cemeteries).Error; err != nil {
		return nil, 0, err
	}
	return cemeteries, total, nil
}

// GormBlockRepository implements cemetery.BlockRepository using GORM
type GormBlockRepository struct {
	db *gorm.DB
}

// NewGormBlockRepository creates a new GormBlockRepository
func NewGormBlockRepository(db *gorm.DB) *GormBlockRepository {
	return &GormBlockRepository{db: db}
}

// Create saves a new block
func (r *GormBlockRepository) Create(ctx context.Context, block *cemetery.Block) error {
	return translateWriteError(r.db.WithContext(ctx).Create(block).Error, "This cemetery already has a block with this number")
}

// FindByID finds a block by ID
func (r *GormBlockRepository) FindByID(ctx context.Context, id uuid.UUID) (*cemetery.Block, error) {
	var b cemetery.Block
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// ListByCemetery returns the blocks of a cemetery ordered by number
func (r *GormBlockRepository) ListByCemetery(ctx context.Context, cemeteryID uuid.UUID) ([]cemetery.Block, error) {
	var blocks []cemetery.Block
	err := r.db.WithContext(ctx).Where("cemetery_id = ?", cemeteryID).Order("block_number").Find(&blocks).Error
	return blocks, err
}

// GormGraveRepository implements cemetery.GraveRepository using GORM
type GormGraveRepository struct {
	db *gorm.DB
}

// NewGormGraveRepository creates a new GormGraveRepository
func NewGormGraveRepository(db *gorm.DB) *GormGraveRepository {
	return &GormGraveRepository{db: db}
}

// Create saves a new grave
func (r *GormGraveRepository) Create(ctx context.Context, grave *cemetery.Grave) error {
	return translateWriteError(r.db.WithContext(ctx).Create(grave).Error, "This block already has a grave with this number")
}

// Update saves changes to a grave
func (r *GormGraveRepository) Update(ctx context.Context, grave *cemetery.Grave) error {
	result := r.db.WithContext(ctx).Save(grave)
	if result.Error != nil {
		return translateWriteError(result.Error, "This block already has a grave with this number")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a grave by ID
func (r *GormGraveRepository) FindByID(ctx context.Context, id uuid.UUID) (*cemetery.Grave, error) {
	var g cemetery.Grave
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// List returns a filtered page of graves, by number unless asked otherwise
func (r *GormGraveRepository) List(ctx context.Context, filter cemetery.GraveFilter) ([]cemetery.Grave, int64, error) {
	if filter.OrderBy == "" && filter.OrderDir == "" {
		filter.OrderDir = "asc"
	}
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&cemetery.Grave{})

	if filter.BlockID != nil {
		query = query.Where("block_id = ?", *filter.BlockID)
	}
	if filter.CemeteryID != nil {
		query = query.Where("block_id IN ("+blocksOfCemetery+")", *filter.CemeteryID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var graves []cemetery.Grave
	query = orderBy(query, filter.Filter, GraveSortFields, "grave_number")
	if err := paginate(query, filter.Filter).Find(&graves).Error; err != nil {
		return nil, 0, err
	}
	return graves, total, nil
}

// CountByBlock counts the graves laid out in a block
func (r *GormGraveRepository) CountByBlock(ctx context.Context, blockID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&cemetery.Grave{}).Where("block_id = ?", blockID).Count(&count).Error
	return count, err
}

// CountByStatus counts graves per status, optionally of one cemetery
func (r *GormGraveRepository) CountByStatus(ctx context.Context, cemeteryID *uuid.UUID) (map[cemetery.GraveStatus]int64, error) {
	var rows []struct {
		Status cemetery.GraveStatus
		Count  int64
	}
	query := r.db.WithContext(ctx).Model(&cemetery.Grave{}).Select("status, COUNT(*) AS count")
	if cemeteryID != nil {
		query = query.Where("block_id IN ("+blocksOfCemetery+")", *cemeteryID)
	}
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[cemetery.GraveStatus]int64, len(cemetery.GraveStatuses))
	for _, s := range cemetery.GraveStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// GormBurialRepository implements cemetery.BurialRepository using GORM
type GormBurialRepository struct {
	db *gorm.DB
}

// NewGormBurialRepository creates a new GormBurialRepository
func NewGormBurialRepository(db *gorm.DB) *GormBurialRepository {
	return &GormBurialRepository{db: db}
}

// Record inserts a burial and updates the grave, block and cemetery counts
// in one transaction. The grave update is conditional so that two clerks
// recording into the same grave cannot both succeed.
func (r *GormBurialRepository) Record(ctx context.Context, burial *cemetery.Burial) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var grave cemetery.Grave
		if err := tx.Where("id = ?", burial.GraveID).First(&grave).Error; err != nil {
			return notFound(err)
		}

		result := tx.Model(&cemetery.Grave{}).
			Where("id = ? AND status <> ?", grave.ID, cemetery.GraveOccupied).
			Updates(map[string]any{"status": cemetery.GraveOccupied, "updated_at": burial.CreatedAt})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewBusinessRuleError("Grave is already occupied")
		}

		var block cemetery.Block
		if err := tx.Where("id = ?", grave.BlockID).First(&block).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&cemetery.Block{}).Where("id = ?", block.ID).
			UpdateColumn("occupied", gorm.Expr("occupied + ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&cemetery.Cemetery{}).Where("id = ?", block.CemeteryID).
			UpdateColumn("occupied", gorm.Expr("occupied + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Create(burial).Error
	})
}

// Update saves changes to a burial record
func (r *GormBurialRepository) Update(ctx context.Context, burial *cemetery.Burial) error {
	result := r.db.WithContext(ctx).Save(burial)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a burial record by ID
func (r *GormBurialRepository) FindByID(ctx context.Context, id uuid.UUID) (*cemetery.Burial, error) {
	var b cemetery.Burial
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// List returns a filtered page of burial records, newest burial first
func (r *GormBurialRepository) List(ctx context.Context, filter cemetery.BurialFilter) ([]cemetery.Burial, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&cemetery.Burial{})

	if filter.GraveID != nil {
		query = query.Where("grave_id = ?", *filter.GraveID)
	}
	if filter.CemeteryID != nil {
		query = query.Where("grave_id IN (SELECT id FROM cemetery_graves WHERE block_id IN ("+blocksOfCemetery+"))", *filter.CemeteryID)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(deceased_name) LIKE ? OR national_id = ?", likePattern(filter.Search), filter.Search)
	}
	if filter.FatherName != "" {
		query = query.Where("LOWER(father_name) LIKE ?", likePattern(filter.FatherName))
	}
	if filter.MotherName != "" {
		query = query.Where("LOWER(mother_name) LIKE ?", likePattern(filter.MotherName))
	}
	if filter.DateFrom != nil {
		query = query.Where("burial_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("burial_date <= ?", *filter.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var burials []cemetery.Burial
	query = orderBy(query, filter.Filter, BurialSortFields, "burial_date")
	if err := paginate(query, filter.Filter).Find(&burials).Error; err != nil {
		return nil, 0, err
	}
	return burials, total, nil
}

// BurialDates returns the burial dates in [from, to). Grouping by month is
// done by the caller so the query stays portable between postgres and sqlite.
func (r *GormBurialRepository) BurialDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var burials []cemetery.Burial
	if err := r.db.WithContext(ctx).Select("burial_date").
		Where("burial_date >= ? AND burial_date < ?", from, to).
		Find(&burials).Error; err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(burials))
	for i, b := range burials {
		dates[i] = b.BurialDate
	}
	return dates, nil
}

// GormVisitorRepository implements cemetery.VisitorRepository using GORM
type GormVisitorRepository struct {
	db *gorm.DB
}

// NewGormVisitorRepository creates a new GormVisitorRepository
func NewGormVisitorRepository(db *gorm.DB) *GormVisitorRepository {
	return &GormVisitorRepository{db: db}
}

// Create saves a visitor log entry
func (r *GormVisitorRepository) Create(ctx context.Context, log *cemetery.VisitorLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// List returns a filtered page of visitor log entries, latest first
func (r *GormVisitorRepository) List(ctx context.Context, filter cemetery.VisitorFilter) ([]cemetery.VisitorLog, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&cemetery.VisitorLog{})

	if filter.CemeteryID != nil {
		query = query.Where("cemetery_id = ?", *filter.CemeteryID)
	}
	if filter.DateFrom != nil {
		query = query.Where("visit_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("visit_date < ?", *filter.DateTo)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(visitor_name) LIKE ? OR LOWER(sought_name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []cemetery.VisitorLog
	if err := paginate(query.Order("visit_date DESC"), filter.Filter).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

var (
	_ cemetery.CemeteryRepository = (*GormCemeteryRepository)(nil)
	_ cemetery.BlockRepository    = (*GormBlockRepository)(nil)
	_ cemetery.GraveRepository    = (*GormGraveRepository)(nil)
	_ cemetery.BurialRepository   = (*GormBurialRepository)(nil)
	_ cemetery.VisitorRepository  = (*GormVisitorRepository)(nil)
)
