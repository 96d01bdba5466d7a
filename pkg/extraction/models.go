package extraction

import (
	"time"

	"gorm.io/datatypes"
)

const StatusApproved = "approved"

type Episode struct {
	ID               string    `gorm:"primaryKey;column:id"`
	EpisodeNumber    string    `gorm:"column:episode_number"`
	Status           string    `gorm:"column:status"`
	ManufacturerName string    `gorm:"column:manufacturer_name"`
	PatientID        string    `gorm:"column:patient_id;index"`
	Patient          *Patient  `gorm:"foreignKey:PatientID"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

type Patient struct {
	ID              string     `gorm:"primaryKey;column:id"`
	FirstName       string     `gorm:"column:first_name"`
	LastName        string     `gorm:"column:last_name"`
	DateOfBirth     *time.Time `gorm:"column:date_of_birth;type:date"`
	Gender          string     `gorm:"column:gender"`
	Phone           string     `gorm:"column:phone"`
	Email           string     `gorm:"column:email"`
	AddressLine1    string     `gorm:"column:address_line1"`
	AddressLine2    string     `gorm:"column:address_line2"`
	City            string     `gorm:"column:city"`
	State           string     `gorm:"column:state"`
	ZipCode         string     `gorm:"column:zip_code"`
	PrimaryMemberID string     `gorm:"column:primary_member_id"`
	FHIRPatientID   string     `gorm:"column:fhir_patient_id"`
}

type Provider struct {
	ID                 string `gorm:"primaryKey;column:id"`
	FirstName          string `gorm:"column:first_name"`
	LastName           string `gorm:"column:last_name"`
	NPI                string `gorm:"column:npi"`
	Email              string `gorm:"column:email"`
	Phone              string `gorm:"column:phone"`
	Credentials        string `gorm:"column:credentials"`
	FHIRPractitionerID string `gorm:"column:fhir_practitioner_id"`
}

type Facility struct {
	ID                 string `gorm:"primaryKey;column:id"`
	Name               string `gorm:"column:name"`
	Address            string `gorm:"column:address"`
	City               string `gorm:"column:city"`
	State              string `gorm:"column:state"`
	ZipCode            string `gorm:"column:zip_code"`
	Phone              string `gorm:"column:phone"`
	Fax                string `gorm:"column:fax"`
	FHIROrganizationID string `gorm:"column:fhir_organization_id"`
}

type Product struct {
	ID             string `gorm:"primaryKey;column:id"`
	Name           string `gorm:"column:name"`
	Code           string `gorm:"column:code;index"`
	Manufacturer   string `gorm:"column:manufacturer"`
	ManufacturerID string `gorm:"column:manufacturer_id"`
	Category       string `gorm:"column:category"`
}

type ProductRequest struct {
	ID         string    `gorm:"primaryKey;column:id"`
	EpisodeID  string    `gorm:"column:episode_id;index"`
	Status     string    `gorm:"column:status;index"`
	ProviderID string    `gorm:"column:provider_id"`
	Provider   *Provider `gorm:"foreignKey:ProviderID"`
	FacilityID string    `gorm:"column:facility_id"`
	Facility   *Facility `gorm:"foreignKey:FacilityID"`
	ProductID  string    `gorm:"column:product_id"`
	Product    *Product  `gorm:"foreignKey:ProductID"`

	WoundType      string     `gorm:"column:wound_type"`
	WoundLocation  string     `gorm:"column:wound_location"`
	WoundLength    *float64   `gorm:"column:wound_length"`
	WoundWidth     *float64   `gorm:"column:wound_width"`
	WoundDepth     *float64   `gorm:"column:wound_depth"`
	WoundStartDate *time.Time `gorm:"column:wound_start_date;type:date"`
	WoundStatus    string     `gorm:"column:wound_status"`

	PrimaryDiagnosisCode   string     `gorm:"column:primary_diagnosis_code"`
	SecondaryDiagnosisCode string     `gorm:"column:secondary_diagnosis_code"`
	DiagnosisCode          string     `gorm:"column:diagnosis_code"`
	ExpectedServiceDate    *time.Time `gorm:"column:expected_service_date;type:date"`
	PlaceOfService         string     `gorm:"column:place_of_service"`

	PrimaryInsuranceName   string `gorm:"column:primary_insurance_name"`
	PrimaryMemberID        string `gorm:"column:primary_member_id"`
	PrimaryPlanType        string `gorm:"column:primary_plan_type"`
	SecondaryInsuranceName string `gorm:"column:secondary_insurance_name"`
	SecondaryMemberID      string `gorm:"column:secondary_member_id"`

	PriorApplications              *int   `gorm:"column:prior_applications"`
	PriorApplicationProduct        string `gorm:"column:prior_application_product"`
	PriorApplicationWithin12Months *bool  `gorm:"column:prior_application_within_12_months"`
	HospiceStatus                  *bool  `gorm:"column:hospice_status"`
	HospiceFamilyConsent           *bool  `gorm:"column:hospice_family_consent"`
	HospiceClinicallyNecessary     *bool  `gorm:"column:hospice_clinically_necessary"`

	ManufacturerFields datatypes.JSONMap           `gorm:"column:manufacturer_fields"`
	SelectedProducts   datatypes.JSONSlice[string] `gorm:"column:selected_products"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Episode) TableName() string {
	return "episodes"
}

func (Patient) TableName() string {
	return "patients"
}

func (Provider) TableName() string {
	return "providers"
}

func (Facility) TableName() string {
	return "facilities"
}

func (Product) TableName() string {
	return "products"
}

func (ProductRequest) TableName() string {
	return "product_requests"
}
