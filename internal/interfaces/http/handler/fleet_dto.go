package handler

import (
	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/fleet"
	"github.com/shopspring/decimal"
)

// VehicleRequest is the body of POST and PUT /fleet/vehicles
type VehicleRequest struct {
	Plate            string `json:"plate" binding:"required,plate"`
	Brand            string `json:"brand" binding:"required,max=50"`
	Model            string `json:"model" binding:"required,max=50"`
	Year             int    `json:"year" binding:"required,min=1950,max=2100"`
	VehicleType      string `json:"vehicle_type" binding:"max=30"`
	FuelType         string `json:"fuel_type" binding:"max=20"`
	Department       string `json:"department" binding:"max=100"`
	Status           string `json:"status" binding:"omitempty,oneof=active maintenance out_of_service sold"`
	CurrentKm        int    `json:"current_km" binding:"min=0"`
	PurchaseDate     string `json:"purchase_date" binding:"omitempty,datetime=2006-01-02"`
	InsuranceExpiry  string `json:"insurance_expiry" binding:"omitempty,datetime=2006-01-02"`
	InspectionExpiry string `json:"inspection_expiry" binding:"omitempty,datetime=2006-01-02"`
}

func (r VehicleRequest) details() (fleet.VehicleDetails, error) {
	purchase, err := parseOptionalDate(r.PurchaseDate)
	if err != nil {
		return fleet.VehicleDetails{}, err
	}
	insurance, err := parseOptionalDate(r.InsuranceExpiry)
	if err != nil {
		return fleet.VehicleDetails{}, err
	}
	inspection, err := parseOptionalDate(r.InspectionExpiry)
	if err != nil {
		return fleet.VehicleDetails{}, err
	}
	return fleet.VehicleDetails{
		Plate:            r.Plate,
		Brand:            r.Brand,
		Model:            r.Model,
		Year:             r.Year,
		VehicleType:      r.VehicleType,
		FuelType:         r.FuelType,
		Department:       r.Department,
		Status:           fleet.VehicleStatus(r.Status),
		CurrentKm:        r.CurrentKm,
		PurchaseDate:     purchase,
		InsuranceExpiry:  insurance,
		InspectionExpiry: inspection,
	}, nil
}

// VehicleListRequest holds the vehicle list query
type VehicleListRequest struct {
	Status          string `form:"status" binding:"omitempty,oneof=active maintenance out_of_service sold"`
	Department      string `form:"department" binding:"max=100"`
	Search          string `form:"search" binding:"max=100"`
	IncludeInactive bool   `form:"include_inactive"`
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy         string `form:"order_by"`
	OrderDir        string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// DriverRequest is the body of POST and PUT /fleet/drivers
type DriverRequest struct {
	FirstName     string `json:"first_name" binding:"required,max=50"`
	LastName      string `json:"last_name" binding:"required,max=50"`
	NationalID    string `json:"national_id" binding:"required,national_id"`
	LicenseNumber string `json:"license_number" binding:"required,max=20"`
	LicenseClass  string `json:"license_class" binding:"max=10"`
	LicenseExpiry string `json:"license_expiry" binding:"omitempty,datetime=2006-01-02"`
	Phone         string `json:"phone" binding:"max=20"`
	Department    string `json:"department" binding:"max=100"`
}

func (r DriverRequest) details() (fleet.DriverDetails, error) {
	expiry, err := parseOptionalDate(r.LicenseExpiry)
	if err != nil {
		return fleet.DriverDetails{}, err
	}
	return fleet.DriverDetails{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		NationalID:    r.NationalID,
		LicenseNumber: r.LicenseNumber,
		LicenseClass:  r.LicenseClass,
		LicenseExpiry: expiry,
		Phone:         r.Phone,
		Department:    r.Department,
	}, nil
}

// DriverListRequest holds the driver list query
type DriverListRequest struct {
	Department string `form:"department" binding:"max=100"`
	IsActive   *bool  `form:"is_active"`
	Search     string `form:"search" binding:"max=100"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// AssignmentRequest is the body of POST /fleet/assignments
type AssignmentRequest struct {
	VehicleID uuid.UUID `json:"vehicle_id" binding:"required"`
	DriverID  uuid.UUID `json:"driver_id" binding:"required"`
	StartDate string    `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	Purpose   string    `json:"purpose" binding:"max=200"`
}

// EndAssignmentRequest is the optional body of POST /fleet/assignments/{id}/end
type EndAssignmentRequest struct {
	EndDate string `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

// MaintenanceRequest is the body of POST and PUT /fleet/maintenance
type MaintenanceRequest struct {
	VehicleID       uuid.UUID       `json:"vehicle_id"`
	Type            string          `json:"maintenance_type" binding:"required,max=50"`
	Description     string          `json:"description"`
	ServiceDate     string          `json:"service_date" binding:"required,datetime=2006-01-02"`
	NextServiceDate string          `json:"next_service_date" binding:"omitempty,datetime=2006-01-02"`
	Km              int             `json:"km" binding:"min=0"`
	Cost            decimal.Decimal `json:"cost"`
	ServiceProvider string          `json:"service_provider" binding:"max=100"`
}

func (r MaintenanceRequest) details() (fleet.MaintenanceDetails, error) {
	service, err := parseDate(r.ServiceDate)
	if err != nil {
		return fleet.MaintenanceDetails{}, err
	}
	next, err := parseOptionalDate(r.NextServiceDate)
	if err != nil {
		return fleet.MaintenanceDetails{}, err
	}
	return fleet.MaintenanceDetails{
		Type:            r.Type,
		Description:     r.Description,
		ServiceDate:     service,
		NextServiceDate: next,
		Km:              r.Km,
		Cost:            r.Cost,
		ServiceProvider: r.ServiceProvider,
	}, nil
}

// FuelRequest is the body of POST /fleet/fuel
type FuelRequest struct {
	VehicleID     uuid.UUID       `json:"vehicle_id" binding:"required"`
	DriverID      *uuid.UUID      `json:"driver_id"`
	FuelDate      string          `json:"fuel_date" binding:"omitempty,datetime=2006-01-02"`
	Liters        decimal.Decimal `json:"liters"`
	PricePerLiter decimal.Decimal `json:"price_per_liter"`
	KmAtFueling   int             `json:"km_at_fueling" binding:"min=0"`
	Station       string          `json:"station" binding:"max=100"`
}

// DateRangeRequest holds optional date_from and date_to query parameters
type DateRangeRequest struct {
	DateFrom string `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo   string `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
}
