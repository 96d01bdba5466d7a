// Package extraction builds the flat fact map for one episode from the
// portal's own records and the external FHIR server.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/msc-platform/ivr/pkg/cache"
	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/fhir"
	"github.com/msc-platform/ivr/pkg/observability/metrics"
	"github.com/msc-platform/ivr/pkg/transform"
	"github.com/sirupsen/logrus"
)

const DefaultCacheTTL = 5 * time.Minute

// ClinicalSource is satisfied by *fhir.Client.
type ClinicalSource interface {
	GetPatient(ctx context.Context, id string) fhir.Result
	SearchCoverage(ctx context.Context, patientID string) fhir.Result
	GetPractitioner(ctx context.Context, id string) fhir.Result
	GetOrganization(ctx context.Context, id string) fhir.Result
}

type Extractor struct {
	store    EpisodeStore
	clinical ClinicalSource
	cache    cache.Cache
	ttl      time.Duration
	now      func() time.Time
}

// NewExtractor accepts a nil clinical source, which skips external lookups.
func NewExtractor(store EpisodeStore, clinical ClinicalSource, c cache.Cache, ttl time.Duration) *Extractor {
	if c == nil {
		c = cache.None{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Extractor{store: store, clinical: clinical, cache: c, ttl: ttl, now: time.Now}
}

func CacheKey(episodeID string) string {
	return "episode_data_" + episodeID
}

// ExtractEpisodeData returns the fact map for the episode, from cache when fresh.
func (e *Extractor) ExtractEpisodeData(ctx context.Context, episodeID string) (models.FactMap, error) {
	facts, err := e.cache.GetOrCompute(ctx, CacheKey(episodeID), e.ttl, func(ctx context.Context) (models.FactMap, error) {
		return e.extract(ctx, episodeID)
	})
	if err != nil {
		metrics.ExtractionFailed()
		logger.Log.WithError(err).WithField("episode_id", episodeID).Error("Failed to extract episode data")
		return nil, fmt.Errorf("extract episode %s: %w", episodeID, err)
	}
	return facts, nil
}

func (e *Extractor) ClearCache(ctx context.Context, episodeID string) error {
	if err := e.cache.Invalidate(ctx, CacheKey(episodeID)); err != nil {
		return fmt.Errorf("clear cache for episode %s: %w", episodeID, err)
	}
	logger.Log.WithField("episode_id", episodeID).Debug("Episode cache cleared")
	return nil
}

func (e *Extractor) extract(ctx context.Context, episodeID string) (models.FactMap, error) {
	episode, err := e.store.FindEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	request, err := e.store.LatestApprovedRequest(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	facts := models.FactMap{}
	put(facts, episodeFields(episode))
	put(facts, patientFields(episode.Patient))
	put(facts, requestFields(request))
	put(facts, providerFields(request.Provider))
	put(facts, facilityFields(request.Facility))
	put(facts, productFields(request.Product))
	if e.clinical != nil {
		e.mergeClinical(ctx, facts, episode, request)
	}
	put(facts, e.computed(episode, request))
	return facts, nil
}

// put flattens nested maps into "_"-joined keys and drops empty values.
func put(facts models.FactMap, fields map[string]interface{}) {
	flatten(facts, "", fields)
}

func flatten(facts models.FactMap, prefix string, fields map[string]interface{}) {
	for key, value := range fields {
		if prefix != "" {
			key = prefix + "_" + key
		}
		value = plain(value)
		if nested, ok := value.(map[string]interface{}); ok {
			flatten(facts, key, nested)
			continue
		}
		if models.IsEmpty(value) {
			continue
		}
		facts[key] = value
	}
}

// plain dereferences optional columns so fact values stay JSON scalars.
func plain(value interface{}) interface{} {
	switch v := value.(type) {
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.Format("2006-01-02")
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.UTC().Format(time.RFC3339)
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *int:
		if v == nil {
			return nil
		}
		return *v
	case *bool:
		if v == nil {
			return nil
		}
		return *v
	case models.FactMap:
		return map[string]interface{}(v)
	default:
		return value
	}
}

func episodeFields(ep *Episode) map[string]interface{} {
	return map[string]interface{}{
		"episode_id":        ep.ID,
		"episode_number":    ep.EpisodeNumber,
		"status":            ep.Status,
		"created_at":        ep.CreatedAt,
		"manufacturer_name": ep.ManufacturerName,
	}
}

func patientFields(p *Patient) map[string]interface{} {
	if p == nil {
		return nil
	}
	return map[string]interface{}{
		"patient_id":            p.ID,
		"patient_first_name":    p.FirstName,
		"patient_last_name":     p.LastName,
		"patient_dob":           p.DateOfBirth,
		"patient_gender":        p.Gender,
		"patient_phone":         p.Phone,
		"patient_email":         p.Email,
		"patient_address_line1": p.AddressLine1,
		"patient_address_line2": p.AddressLine2,
		"patient_city":          p.City,
		"patient_state":         p.State,
		"patient_zip":           p.ZipCode,
		"patient_member_id":     p.PrimaryMemberID,
		"patient_fhir_id":       p.FHIRPatientID,
	}
}

func requestFields(r *ProductRequest) map[string]interface{} {
	fields := map[string]interface{}{
		"product_request_id":                 r.ID,
		"wound_type":                         r.WoundType,
		"wound_location":                     r.WoundLocation,
		"wound_size_length":                  r.WoundLength,
		"wound_size_width":                   r.WoundWidth,
		"wound_size_depth":                   r.WoundDepth,
		"wound_start_date":                   r.WoundStartDate,
		"wound_status":                       r.WoundStatus,
		"primary_diagnosis_code":             r.PrimaryDiagnosisCode,
		"secondary_diagnosis_code":           r.SecondaryDiagnosisCode,
		"diagnosis_code":                     r.DiagnosisCode,
		"expected_service_date":              r.ExpectedServiceDate,
		"place_of_service":                   r.PlaceOfService,
		"primary_insurance_name":             r.PrimaryInsuranceName,
		"primary_member_id":                  r.PrimaryMemberID,
		"primary_plan_type":                  r.PrimaryPlanType,
		"secondary_insurance_name":           r.SecondaryInsuranceName,
		"secondary_member_id":                r.SecondaryMemberID,
		"prior_applications":                 r.PriorApplications,
		"prior_application_product":          r.PriorApplicationProduct,
		"prior_application_within_12_months": r.PriorApplicationWithin12Months,
		"hospice_status":                     r.HospiceStatus,
		"hospice_family_consent":             r.HospiceFamilyConsent,
		"hospice_clinically_necessary":       r.HospiceClinicallyNecessary,
	}
	if len(r.ManufacturerFields) > 0 {
		fields["manufacturer_fields"] = map[string]interface{}(r.ManufacturerFields)
	}
	if len(r.SelectedProducts) > 0 {
		products := make([]interface{}, 0, len(r.SelectedProducts))
		for _, p := range r.SelectedProducts {
			products = append(products, p)
		}
		fields["selected_products"] = products
	}
	return fields
}

func providerFields(p *Provider) map[string]interface{} {
	if p == nil {
		return nil
	}
	return map[string]interface{}{
		"provider_id":          p.ID,
		"provider_name":        joinName(p.FirstName, p.LastName),
		"provider_first_name":  p.FirstName,
		"provider_last_name":   p.LastName,
		"provider_npi":         p.NPI,
		"provider_email":       p.Email,
		"provider_phone":       p.Phone,
		"provider_credentials": p.Credentials,
		"provider_fhir_id":     p.FHIRPractitionerID,
	}
}

func facilityFields(f *Facility) map[string]interface{} {
	if f == nil {
		return nil
	}
	return map[string]interface{}{
		"facility_id":          f.ID,
		"facility_name":        f.Name,
		"facility_address":     f.Address,
		"facility_city":        f.City,
		"facility_state":       f.State,
		"facility_zip":         f.ZipCode,
		"facility_phone":       f.Phone,
		"facility_fax":         f.Fax,
		"facility_fhir_id":     f.FHIROrganizationID,
	}
}

func productFields(p *Product) map[string]interface{} {
	if p == nil {
		return nil
	}
	return map[string]interface{}{
		"product_id":              p.ID,
		"product_name":            p.Name,
		"product_code":            p.Code,
		"product_manufacturer":    p.Manufacturer,
		"product_manufacturer_id": p.ManufacturerID,
		"product_category":        p.Category,
	}
}

// mergeClinical adds fhir_* facts. Failed lookups are logged and skipped.
func (e *Extractor) mergeClinical(ctx context.Context, facts models.FactMap, episode *Episode, request *ProductRequest) {
	merge := func(section, externalID string, res fhir.Result) {
		if !res.Success {
			metrics.ClinicalLookupFailed()
			logger.Log.WithFields(logrus.Fields{
				"episode_id":  episode.ID,
				"resource":    section,
				"external_id": externalID,
				"reason":      res.Reason,
			}).Warn("Clinical lookup failed")
			return
		}
		flatten(facts, "fhir_"+section, res.Data)
	}

	if p := episode.Patient; p != nil && p.FHIRPatientID != "" {
		merge("patient", p.FHIRPatientID, e.clinical.GetPatient(ctx, p.FHIRPatientID))
		merge("coverage", p.FHIRPatientID, e.clinical.SearchCoverage(ctx, p.FHIRPatientID))
	}
	if p := request.Provider; p != nil && p.FHIRPractitionerID != "" {
		merge("practitioner", p.FHIRPractitionerID, e.clinical.GetPractitioner(ctx, p.FHIRPractitionerID))
	}
	if f := request.Facility; f != nil && f.FHIROrganizationID != "" {
		merge("organization", f.FHIROrganizationID, e.clinical.GetOrganization(ctx, f.FHIROrganizationID))
	}
}

func (e *Extractor) computed(episode *Episode, request *ProductRequest) map[string]interface{} {
	out := map[string]interface{}{}

	if request.WoundLength != nil && request.WoundWidth != nil && *request.WoundLength != 0 && *request.WoundWidth != 0 {
		out["wound_size_total"] = *request.WoundLength * *request.WoundWidth
	}

	if request.WoundStartDate != nil {
		now := e.now()
		years, months, _ := transform.CalendarDiff(*request.WoundStartDate, now)
		days := transform.TotalDays(*request.WoundStartDate, now)
		out["wound_duration_days"] = days
		out["wound_duration_weeks"] = days / 7
		out["wound_duration_months"] = months + years*12
		out["wound_duration_years"] = years
	}

	if p := episode.Patient; p != nil {
		out["patient_full_name"] = joinName(p.FirstName, p.LastName)
		out["patient_full_address"] = joinNonEmpty(", ", p.AddressLine1, p.AddressLine2, p.City, p.State, p.ZipCode)
	}
	if p := request.Provider; p != nil {
		out["provider_full_name"] = joinName(p.FirstName, p.LastName)
	}
	return out
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
