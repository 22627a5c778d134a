package handler

import (
	"github.com/google/uuid"
	cemeteryapp "github.com/municipal/backoffice/internal/application/cemetery"
	"github.com/municipal/backoffice/internal/domain/cemetery"
)

// CemeteryRequest is the body of POST and PUT /cemetery/cemeteries
type CemeteryRequest struct {
	Name          string   `json:"name" binding:"required,max=200"`
	Address       string   `json:"address"`
	Province      string   `json:"province" binding:"max=50"`
	District      string   `json:"district" binding:"max=50"`
	TotalCapacity int      `json:"total_capacity" binding:"min=0"`
	Latitude      *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" binding:"omitempty,longitude"`
}

func (r CemeteryRequest) details() cemetery.CemeteryDetails {
	return cemetery.CemeteryDetails{
		Name:          r.Name,
		Address:       r.Address,
		Province:      r.Province,
		District:      r.District,
		TotalCapacity: r.TotalCapacity,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
	}
}

// CemeteryListRequest holds the cemetery list query
type CemeteryListRequest struct {
	Search          string `form:"search" binding:"max=100"`
	Province        string `form:"province" binding:"max=50"`
	District        string `form:"district" binding:"max=50"`
	IncludeInactive bool   `form:"include_inactive"`
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy         string `form:"order_by"`
	OrderDir        string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// BlockRequest is the body of POST /cemetery/cemeteries/{id}/blocks
type BlockRequest struct {
	BlockNumber string `json:"block_number" binding:"required,max=20"`
	Capacity    int    `json:"capacity" binding:"min=0"`
}

// GraveRequest is the body of POST /cemetery/graves
type GraveRequest struct {
	BlockID     uuid.UUID `json:"block_id" binding:"required"`
	GraveNumber string    `json:"grave_number" binding:"required,max=20"`
	GraveType   string    `json:"grave_type" binding:"max=30"`
	Latitude    *float64  `json:"latitude" binding:"omitempty,latitude"`
	Longitude   *float64  `json:"longitude" binding:"omitempty,longitude"`
}

func (r GraveRequest) input() cemeteryapp.GraveInput {
	return cemeteryapp.GraveInput{
		BlockID:   r.BlockID,
		Number:    r.GraveNumber,
		GraveType: r.GraveType,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

// GraveListRequest holds the grave list query
type GraveListRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=empty occupied reserved"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// BurialRequest is the body of POST and PUT /cemetery/burials. GraveID is
// ignored on update.
type BurialRequest struct {
	GraveID         uuid.UUID `json:"grave_id"`
	DeceasedName    string    `json:"deceased_name" binding:"required,max=200"`
	NationalID      string    `json:"national_id" binding:"omitempty,national_id"`
	FatherName      string    `json:"father_name" binding:"max=100"`
	MotherName      string    `json:"mother_name" binding:"max=100"`
	BirthDate       string    `json:"birth_date" binding:"omitempty,datetime=2006-01-02"`
	DeathDate       string    `json:"death_date" binding:"required,datetime=2006-01-02"`
	BurialDate      string    `json:"burial_date" binding:"required,datetime=2006-01-02"`
	CauseOfDeath    string    `json:"cause_of_death" binding:"max=200"`
	Hometown        string    `json:"hometown" binding:"max=100"`
	RelativeName    string    `json:"relative_name" binding:"max=200"`
	RelativePhone   string    `json:"relative_phone" binding:"max=20"`
	RelativeAddress string    `json:"relative_address"`
	Notes           string    `json:"notes"`
}

func (r BurialRequest) details() (cemetery.BurialDetails, error) {
	birth, err := parseOptionalDate(r.BirthDate)
	if err != nil {
		return cemetery.BurialDetails{}, err
	}
	death, err := parseDate(r.DeathDate)
	if err != nil {
		return cemetery.BurialDetails{}, err
	}
	burial, err := parseDate(r.BurialDate)
	if err != nil {
		return cemetery.BurialDetails{}, err
	}
	return cemetery.BurialDetails{
		DeceasedName:    r.DeceasedName,
		NationalID:      r.NationalID,
		FatherName:      r.FatherName,
		MotherName:      r.MotherName,
		BirthDate:       birth,
		DeathDate:       death,
		BurialDate:      burial,
		CauseOfDeath:    r.CauseOfDeath,
		Hometown:        r.Hometown,
		RelativeName:    r.RelativeName,
		RelativePhone:   r.RelativePhone,
		RelativeAddress: r.RelativeAddress,
		Notes:           r.Notes,
	}, nil
}

// BurialListRequest holds the burial list and search query; q is the name
// or national ID
type BurialListRequest struct {
	Query      string `form:"q" binding:"max=100"`
	FatherName string `form:"father_name" binding:"max=100"`
	MotherName string `form:"mother_name" binding:"max=100"`
	DateFrom   string `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo     string `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy    string `form:"order_by"`
	OrderDir   string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// VisitRequest is the body of POST /cemetery/visitors
type VisitRequest struct {
	CemeteryID  uuid.UUID  `json:"cemetery_id" binding:"required"`
	VisitorName string     `json:"visitor_name" binding:"required,max=200"`
	Phone       string     `json:"phone" binding:"max=20"`
	SoughtName  string     `json:"sought_name" binding:"max=200"`
	Purpose     string     `json:"purpose" binding:"max=200"`
	GraveID     *uuid.UUID `json:"grave_id"`
}

func (r VisitRequest) input() cemeteryapp.VisitInput {
	return cemeteryapp.VisitInput{
		CemeteryID:  r.CemeteryID,
		VisitorName: r.VisitorName,
		Phone:       r.Phone,
		SoughtName:  r.SoughtName,
		Purpose:     r.Purpose,
		GraveID:     r.GraveID,
	}
}

// VisitListRequest holds the visitor log query
type VisitListRequest struct {
	Search   string `form:"search" binding:"max=100"`
	DateFrom string `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo   string `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}
