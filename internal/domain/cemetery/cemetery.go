// Package cemetery keeps the municipal cemetery registry: cemeteries split
// into blocks, the graves in each block, burial records and the visitor desk
// log.
package cemetery

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var nationalIDPattern = regexp.MustCompile(`^\d{11}$`)

// Cemetery is a municipal cemetery. Occupied counts recorded burials and is
// only changed by recording one. Deleting a cemetery only clears IsActive.
type Cemetery struct {
	shared.BaseEntity
	Name          string   `gorm:"size:200;not null" json:"name"`
	Address       string   `gorm:"type:text" json:"address"`
	Province      string   `gorm:"size:50;index" json:"province"`
	District      string   `gorm:"size:50;index" json:"district"`
	TotalCapacity int      `gorm:"not null;default:0" json:"total_capacity"`
	Occupied      int      `gorm:"not null;default:0" json:"occupied"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	IsActive      bool     `gorm:"not null;index" json:"is_active"`
}

// TableName returns the table name for GORM
func (Cemetery) TableName() string {
	return "cemeteries"
}

// CemeteryDetails are the editable attributes of a cemetery
type CemeteryDetails struct {
	Name          string
	Address       string
	Province      string
	District      string
	TotalCapacity int
	Latitude      *float64
	Longitude     *float64
}

func (d CemeteryDetails) normalize() (CemeteryDetails, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Province = strings.TrimSpace(d.Province)
	d.District = strings.TrimSpace(d.District)
	if d.Name == "" {
		return d, shared.NewValidationError("Cemetery name is required")
	}
	if d.TotalCapacity < 0 {
		return d, shared.NewValidationError("Capacity cannot be negative")
	}
	if err := validateCoordinates(d.Latitude, d.Longitude); err != nil {
		return d, err
	}
	return d, nil
}

// NewCemetery registers a cemetery
func NewCemetery(details CemeteryDetails) (*Cemetery, error) {
	details, err := details.normalize()
	if err != nil {
		return nil, err
	}
	c := &Cemetery{BaseEntity: shared.NewBaseEntity(), IsActive: true}
	c.apply(details)
	return c, nil
}

// Update replaces the editable attributes. Capacity cannot drop below the
// number of burials already recorded.
func (c *Cemetery) Update(details CemeteryDetails) error {
	details, err := details.normalize()
	if err != nil {
		return err
	}
	if details.TotalCapacity < c.Occupied {
		return shared.NewBusinessRuleError("Capacity cannot be lower than the occupied count")
	}
	c.apply(details)
	c.Touch()
	return nil
}

// Deactivate hides the cemetery from default listings
func (c *Cemetery) Deactivate() {
	c.IsActive = false
	c.Touch()
}

// Available is the remaining capacity, never negative
func (c *Cemetery) Available() int {
	return max(c.TotalCapacity-c.Occupied, 0)
}

func (c *Cemetery) apply(d CemeteryDetails) {
	c.Name = d.Name
	c.Address = d.Address
	c.Province = d.Province
	c.District = d.District
	c.TotalCapacity = d.TotalCapacity
	c.Latitude = d.Latitude
	c.Longitude = d.Longitude
}

// Block is a numbered section of a cemetery
type Block struct {
	shared.BaseEntity
	CemeteryID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_block_number" json:"cemetery_id"`
	BlockNumber string    `gorm:"size:20;not null;uniqueIndex:idx_block_number" json:"block_number"`
	Capacity    int       `gorm:"not null;default:0" json:"capacity"`
	Occupied    int       `gorm:"not null;default:0" json:"occupied"`
}

// TableName returns the table name for GORM
func (Block) TableName() string {
	return "cemetery_blocks"
}

// NewBlock adds a block to a cemetery
func NewBlock(cemeteryID uuid.UUID, number string, capacity int) (*Block, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, shared.NewValidationError("Block number is required")
	}
	if capacity < 0 {
		return nil, shared.NewValidationError("Capacity cannot be negative")
	}
	return &Block{
		BaseEntity:  shared.NewBaseEntity(),
		CemeteryID:  cemeteryID,
		BlockNumber: number,
		Capacity:    capacity,
	}, nil
}

// GraveStatus is the state of a grave
type GraveStatus string

const (
	GraveEmpty    GraveStatus = "empty"
	GraveOccupied GraveStatus = "occupied"
	GraveReserved GraveStatus = "reserved"
)

// IsValid reports whether s is a known grave status
func (s GraveStatus) IsValid() bool {
	switch s {
	case GraveEmpty, GraveOccupied, GraveReserved:
		return true
	}
	return false
}

// GraveStatuses lists every status, in report order
var GraveStatuses = []GraveStatus{GraveEmpty, GraveOccupied, GraveReserved}

// Grave is a single burial plot inside a block
type Grave struct {
	shared.BaseEntity
	BlockID     uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_grave_number" json:"block_id"`
	GraveNumber string      `gorm:"size:20;not null;uniqueIndex:idx_grave_number" json:"grave_number"`
	Status      GraveStatus `gorm:"size:20;not null;index" json:"status"`
	GraveType   string      `gorm:"size:30" json:"grave_type"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
}

// TableName returns the table name for GORM
func (Grave) TableName() string {
	return "cemetery_graves"
}

// NewGrave adds an empty grave to a block
func NewGrave(blockID uuid.UUID, number, graveType string, lat, lng *float64) (*Grave, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, shared.NewValidationError("Grave number is required")
	}
	if err := validateCoordinates(lat, lng); err != nil {
		return nil, err
	}
	return &Grave{
		BaseEntity:  shared.NewBaseEntity(),
		BlockID:     blockID,
		GraveNumber: number,
		Status:      GraveEmpty,
		GraveType:   strings.TrimSpace(graveType),
		Latitude:    lat,
		Longitude:   lng,
	}, nil
}

// Reserve holds an empty grave for a family
func (g *Grave) Reserve() error {
	if g.Status != GraveEmpty {
		return shared.NewStateError("Only an empty grave can be reserved")
	}
	g.Status = GraveReserved
	g.Touch()
	return nil
}

// Release frees a reserved grave
func (g *Grave) Release() error {
	if g.Status != GraveReserved {
		return shared.NewStateError("Only a reserved grave can be released")
	}
	g.Status = GraveEmpty
	g.Touch()
	return nil
}

// Occupy marks the grave used by a burial. Reserved graves may be occupied.
func (g *Grave) Occupy() error {
	if g.Status == GraveOccupied {
		return shared.NewBusinessRuleError("Grave is already occupied")
	}
	g.Status = GraveOccupied
	g.Touch()
	return nil
}

// Burial is the record of one interment
type Burial struct {
	shared.BaseEntity
	GraveID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"grave_id"`
	DeceasedName    string     `gorm:"size:200;not null;index" json:"deceased_name"`
	NationalID      string     `gorm:"size:11;index" json:"national_id"`
	FatherName      string     `gorm:"size:100" json:"father_name"`
	MotherName      string     `gorm:"size:100" json:"mother_name"`
	BirthDate       *time.Time `gorm:"type:date" json:"birth_date,omitempty"`
	DeathDate       time.Time  `gorm:"type:date;not null" json:"death_date"`
	BurialDate      time.Time  `gorm:"type:date;not null;index" json:"burial_date"`
	CauseOfDeath    string     `gorm:"size:200" json:"cause_of_death"`
	Hometown        string     `gorm:"size:100" json:"hometown"`
	RelativeName    string     `gorm:"size:200" json:"relative_name"`
	RelativePhone   string     `gorm:"size:20" json:"relative_phone"`
	RelativeAddress string     `gorm:"type:text" json:"relative_address"`
	Notes           string     `gorm:"type:text" json:"notes"`
	RecordedBy      uuid.UUID  `gorm:"type:uuid;not null" json:"recorded_by"`
}

// TableName returns the table name for GORM
func (Burial) TableName() string {
	return "cemetery_burials"
}

// BurialDetails are the personal attributes of a burial record. Names are
// expected to be normalized by the caller.
type BurialDetails struct {
	DeceasedName    string
	NationalID      string
	FatherName      string
	MotherName      string
	BirthDate       *time.Time
	DeathDate       time.Time
	BurialDate      time.Time
	CauseOfDeath    string
	Hometown        string
	RelativeName    string
	RelativePhone   string
	RelativeAddress string
	Notes           string
}

func (d BurialDetails) validate() error {
	if strings.TrimSpace(d.DeceasedName) == "" {
		return shared.NewValidationError("Name of the deceased is required")
	}
	if d.NationalID != "" && !nationalIDPattern.MatchString(d.NationalID) {
		return shared.NewValidationError("National ID must be 11 digits")
	}
	if d.DeathDate.IsZero() || d.BurialDate.IsZero() {
		return shared.NewValidationError("Death and burial dates are required")
	}
	if d.BurialDate.Before(d.DeathDate) {
		return shared.NewValidationError("Burial date cannot be before the date of death")
	}
	if d.BirthDate != nil && d.BirthDate.After(d.DeathDate) {
		return shared.NewValidationError("Birth date cannot be after the date of death")
	}
	return nil
}

// NewBurial records an interment into grave. The grave must accept it.
func NewBurial(grave *Grave, details BurialDetails, recordedBy uuid.UUID) (*Burial, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}
	if err := grave.Occupy(); err != nil {
		return nil, err
	}
	b := &Burial{BaseEntity: shared.NewBaseEntity(), GraveID: grave.ID, RecordedBy: recordedBy}
	b.apply(details)
	return b, nil
}

// Update corrects the personal attributes; the grave never changes
func (b *Burial) Update(details BurialDetails) error {
	if err := details.validate(); err != nil {
		return err
	}
	b.apply(details)
	b.Touch()
	return nil
}

func (b *Burial) apply(d BurialDetails) {
	b.DeceasedName = strings.TrimSpace(d.DeceasedName)
	b.NationalID = d.NationalID
	b.FatherName = strings.TrimSpace(d.FatherName)
	b.MotherName = strings.TrimSpace(d.MotherName)
	b.BirthDate = d.BirthDate
	b.DeathDate = d.DeathDate
	b.BurialDate = d.BurialDate
	b.CauseOfDeath = d.CauseOfDeath
	b.Hometown = d.Hometown
	b.RelativeName = d.RelativeName
	b.RelativePhone = d.RelativePhone
	b.RelativeAddress = d.RelativeAddress
	b.Notes = d.Notes
}

// VisitorLog is an entry of the visitor desk: who asked for whom, and the
// grave they were directed to if it was found.
type VisitorLog struct {
	shared.BaseEntity
	CemeteryID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"cemetery_id"`
	VisitorName string     `gorm:"size:200;not null" json:"visitor_name"`
	Phone       string     `gorm:"size:20" json:"phone"`
	SoughtName  string     `gorm:"size:200" json:"sought_name"`
	Purpose     string     `gorm:"size:200" json:"purpose"`
	VisitDate   time.Time  `gorm:"not null;index" json:"visit_date"`
	GraveID     *uuid.UUID `gorm:"type:uuid" json:"grave_id,omitempty"`
	Found       bool       `gorm:"not null" json:"found"`
}

// TableName returns the table name for GORM
func (VisitorLog) TableName() string {
	return "cemetery_visitor_logs"
}

// NewVisitorLog logs a visit at now
func NewVisitorLog(cemeteryID uuid.UUID, visitor, phone, sought, purpose string, graveID *uuid.UUID, now time.Time) (*VisitorLog, error) {
	visitor = strings.TrimSpace(visitor)
	if visitor == "" {
		return nil, shared.NewValidationError("Visitor name is required")
	}
	return &VisitorLog{
		BaseEntity:  shared.NewBaseEntity(),
		CemeteryID:  cemeteryID,
		VisitorName: visitor,
		Phone:       strings.TrimSpace(phone),
		SoughtName:  strings.TrimSpace(sought),
		Purpose:     strings.TrimSpace(purpose),
		VisitDate:   now,
		GraveID:     graveID,
		Found:       graveID != nil,
	}, nil
}

// OccupancyRate is occupied/capacity as a percentage rounded to two places.
// Zero capacity gives zero.
func OccupancyRate(occupied, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return decimal.NewFromInt(occupied).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(capacity), 2).
		InexactFloat64()
}

func validateCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return shared.NewValidationError("Latitude and longitude go together")
	}
	if lat != nil && (*lat < -90 || *lat > 90 || *lng < -180 || *lng > 180) {
		return shared.NewValidationError("Coordinates are out of range")
	}
	return nil
}
