package matching

import (
	"regexp"
	"sync"
)

// Abbreviated forms like patient_fname are left out on purpose: they should
// only match through the fuzzy stage.
var defaultAliases = map[string][]string{
	"patient_first_name":     {"first_name", "fname", "firstName", "given_name"},
	"patient_last_name":      {"last_name", "lname", "lastName", "family_name", "surname"},
	"patient_dob":            {"date_of_birth", "dob", "birth_date", "birthDate"},
	"patient_phone":          {"phone", "phone_number", "telephone", "contact_phone"},
	"patient_email":          {"email", "email_address", "contact_email"},
	"patient_gender":         {"gender", "sex"},
	"patient_zip":            {"zip", "zip_code", "postal_code"},
	"primary_insurance_name": {"insurance_name", "payer_name", "insurance_company", "primary_payer"},
	"primary_member_id":      {"member_id", "subscriber_id", "insurance_id", "policy_number"},
	"provider_npi":           {"npi", "provider_number", "npi_number", "physician_npi"},
	"provider_name":          {"physician_name", "doctor_name", "rendering_provider"},
	"facility_name":          {"practice_name", "clinic_name", "location_name"},
	"facility_npi":           {"practice_npi", "group_npi"},
	"primary_diagnosis_code": {"icd10", "icd_10_code", "diagnosis"},
	"wound_location":         {"wound_site", "anatomical_location"},
}

var fieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`_id$`),
	regexp.MustCompile(`patient.*first.*name`),
	regexp.MustCompile(`patient.*last.*name`),
	regexp.MustCompile(`provider.*npi`),
	regexp.MustCompile(`wound.*type`),
	regexp.MustCompile(`wound.*location`),
	regexp.MustCompile(`dob|birth`),
}

var (
	defaultGroupsOnce sync.Once
	defaultGroups     aliasGroups
)

// aliasGroups maps a normalized name to the ids of the groups it belongs to.
type aliasGroups map[string][]int

func buildGroups(dicts ...map[string][]string) aliasGroups {
	groups := make(aliasGroups)
	id := 0
	for _, dict := range dicts {
		for canonical, aliases := range dict {
			groups.add(normalize(canonical), id)
			for _, alias := range aliases {
				groups.add(normalize(alias), id)
			}
			id++
		}
	}
	return groups
}

func (g aliasGroups) add(name string, id int) {
	if name == "" {
		return
	}
	for _, existing := range g[name] {
		if existing == id {
			return
		}
	}
	g[name] = append(g[name], id)
}

func (g aliasGroups) related(a, b string) bool {
	for _, x := range g[a] {
		for _, y := range g[b] {
			if x == y {
				return true
			}
		}
	}
	return false
}

func sharesPattern(a, b string) bool {
	for _, re := range fieldPatterns {
		if re.MatchString(a) && re.MatchString(b) {
			return true
		}
	}
	return false
}

func defaultAliasGroups() aliasGroups {
	defaultGroupsOnce.Do(func() {
		defaultGroups = buildGroups(defaultAliases)
	})
	return defaultGroups
}
