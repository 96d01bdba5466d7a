package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/msc-platform/ivr/pkg/cache"
	"github.com/msc-platform/ivr/pkg/common/models"
	"github.com/msc-platform/ivr/pkg/fhir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	episodes map[string]*Episode
	requests map[string]*ProductRequest
	loads    int
}

func (s *fakeStore) FindEpisode(_ context.Context, id string) (*Episode, error) {
	s.loads++
	ep, ok := s.episodes[id]
	if !ok {
		return nil, ErrEpisodeNotFound
	}
	return ep, nil
}

func (s *fakeStore) LatestApprovedRequest(_ context.Context, episodeID string) (*ProductRequest, error) {
	req, ok := s.requests[episodeID]
	if !ok {
		return nil, ErrNoApprovedRequest
	}
	return req, nil
}

type fakeClinical struct {
	patient          fhir.Result
	practitionerDown bool
	calls            int
}

func (f *fakeClinical) GetPatient(context.Context, string) fhir.Result {
	f.calls++
	return f.patient
}

func (f *fakeClinical) SearchCoverage(context.Context, string) fhir.Result {
	f.calls++
	return fhir.Result{Reason: "no active coverage"}
}

func (f *fakeClinical) GetPractitioner(context.Context, string) fhir.Result {
	f.calls++
	if f.practitionerDown {
		return fhir.Result{Reason: "connection refused"}
	}
	return fhir.Result{Success: true, Data: map[string]interface{}{"npi": "1234567893"}}
}

func (f *fakeClinical) GetOrganization(context.Context, string) fhir.Result {
	f.calls++
	return fhir.Result{Reason: "unused"}
}

func ptr[T any](v T) *T { return &v }

func newFixture() *fakeStore {
	dob := time.Date(1950, 4, 2, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &fakeStore{
		episodes: map[string]*Episode{
			"42": {
				ID:            "42",
				EpisodeNumber: "EP-0042",
				Status:        "ready_for_review",
				Patient: &Patient{
					ID:            "p-1",
					FirstName:     "Jane",
					LastName:      "Doe",
					DateOfBirth:   &dob,
					Phone:         "5551234567",
					AddressLine1:  "1 Elm St",
					City:          "Austin",
					State:         "TX",
					ZipCode:       "78701",
					FHIRPatientID: "fhir-p-1",
				},
			},
			"7": {ID: "7", Patient: &Patient{ID: "p-2", FirstName: "No", LastName: "Request"}},
		},
		requests: map[string]*ProductRequest{
			"42": {
				ID:                   "pr-1",
				EpisodeID:            "42",
				Status:               StatusApproved,
				WoundType:            "DFU",
				WoundLength:          ptr(5.2),
				WoundWidth:           ptr(3.1),
				WoundStartDate:       &start,
				PrimaryDiagnosisCode: "E11.621",
				PlaceOfService:       "11",
				HospiceStatus:        ptr(false),
				ManufacturerFields:   map[string]interface{}{"graft_size": "4x4"},
				SelectedProducts:     []string{"EMP001"},
				Provider:             &Provider{ID: "dr-1", FirstName: "Sam", LastName: "Lee", NPI: "1234567893", FHIRPractitionerID: "fhir-dr-1"},
				Facility:             &Facility{ID: "f-1", Name: "Austin Wound Center", FHIROrganizationID: "fhir-org-1"},
				Product:              &Product{ID: "prod-1", Code: "EMP001", Manufacturer: "ACZ"},
			},
		},
	}
}

func newTestExtractor(store EpisodeStore, clinical ClinicalSource) *Extractor {
	e := NewExtractor(store, clinical, cache.NewMemory(), time.Minute)
	e.now = func() time.Time { return time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestExtractEpisodeData(t *testing.T) {
	clinical := &fakeClinical{patient: fhir.Result{Success: true, Data: map[string]interface{}{
		"first_name": "Jane",
		"address":    map[string]interface{}{"city": "Austin"},
	}}}
	e := newTestExtractor(newFixture(), clinical)

	facts, err := e.ExtractEpisodeData(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "42", facts["episode_id"])
	assert.Equal(t, "Jane Doe", facts["patient_full_name"])
	assert.Equal(t, "Sam Lee", facts["provider_full_name"])
	assert.Equal(t, "Sam Lee", facts["provider_name"])
	assert.Equal(t, "1950-04-02", facts["patient_dob"])
	assert.Equal(t, "1 Elm St, Austin, TX, 78701", facts["patient_full_address"])
	assert.InDelta(t, 16.12, facts["wound_size_total"], 1e-9)
	assert.Equal(t, false, facts["hospice_status"])
	assert.Equal(t, "4x4", facts["manufacturer_fields_graft_size"])
	assert.Equal(t, []interface{}{"EMP001"}, facts["selected_products"])
	assert.Equal(t, "EMP001", facts["product_code"])

	assert.Equal(t, 30, facts["wound_duration_days"])
	assert.Equal(t, 4, facts["wound_duration_weeks"])
	assert.Equal(t, 0, facts["wound_duration_months"])
	assert.Equal(t, 0, facts["wound_duration_years"])

	assert.Equal(t, "Jane", facts["fhir_patient_first_name"])
	assert.Equal(t, "Austin", facts["fhir_patient_address_city"])
	assert.Equal(t, "1234567893", facts["fhir_practitioner_npi"])
	assert.NotContains(t, facts, "patient_address_line2")
	assert.NotContains(t, facts, "wound_size_depth")
}

func TestExtractEpisodeDataClinicalFailureMergesNothing(t *testing.T) {
	clinical := &fakeClinical{patient: fhir.Result{Reason: "server unavailable"}, practitionerDown: true}
	e := newTestExtractor(newFixture(), clinical)

	facts, err := e.ExtractEpisodeData(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 4, clinical.calls)

	for key := range facts {
		assert.False(t, strings.HasPrefix(key, "fhir_"), "unexpected clinical key %s", key)
	}
	assert.Equal(t, "fhir-p-1", facts["patient_fhir_id"])
	assert.Equal(t, "fhir-dr-1", facts["provider_fhir_id"])
	assert.Equal(t, "fhir-org-1", facts["facility_fhir_id"])
	assert.Equal(t, "Jane Doe", facts["patient_full_name"])
}

func TestExtractEpisodeDataWithoutClinicalSource(t *testing.T) {
	e := newTestExtractor(newFixture(), nil)

	facts, err := e.ExtractEpisodeData(context.Background(), "42")
	require.NoError(t, err)
	assert.NotContains(t, facts, "fhir_practitioner_npi")
}

func TestExtractEpisodeDataErrors(t *testing.T) {
	e := newTestExtractor(newFixture(), nil)

	_, err := e.ExtractEpisodeData(context.Background(), "7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoApprovedRequest))
	assert.Contains(t, err.Error(), "no approved product requests found")

	_, err = e.ExtractEpisodeData(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrEpisodeNotFound))
}

func TestExtractEpisodeDataIsCached(t *testing.T) {
	store := newFixture()
	clinical := &fakeClinical{patient: fhir.Result{Reason: "down"}}
	e := newTestExtractor(store, clinical)
	ctx := context.Background()

	first, err := e.ExtractEpisodeData(ctx, "42")
	require.NoError(t, err)
	second, err := e.ExtractEpisodeData(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.loads)

	require.NoError(t, e.ClearCache(ctx, "42"))
	_, err = e.ExtractEpisodeData(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}

func TestInvalidatorClearsOnChangeEvents(t *testing.T) {
	store := newFixture()
	e := newTestExtractor(store, nil)
	inv := NewInvalidator(e)
	ctx := context.Background()

	_, err := e.ExtractEpisodeData(ctx, "42")
	require.NoError(t, err)

	require.NoError(t, inv.Handle(ctx, models.Event{Type: "ivr.mapping.completed", Data: map[string]interface{}{"episode_id": "42"}}))
	_, _ = e.ExtractEpisodeData(ctx, "42")
	assert.Equal(t, 1, store.loads)

	require.NoError(t, inv.Handle(ctx, models.Event{Type: models.EventProductRequestUpdated, Data: map[string]interface{}{"episode_id": float64(42)}}))
	_, _ = e.ExtractEpisodeData(ctx, "42")
	assert.Equal(t, 2, store.loads)

	assert.NoError(t, inv.Handle(ctx, models.Event{Type: models.EventEpisodeUpdated}))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "episode_data_42", CacheKey("42"))
}
