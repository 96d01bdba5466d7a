package fhir

import "strings"

func summarizePatient(r map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"id":         str(r, "id"),
		"birth_date": str(r, "birthDate"),
		"gender":     str(r, "gender"),
	}
	if ids := sliceAt(r, "identifier"); len(ids) > 0 {
		if id, ok := ids[0].(map[string]interface{}); ok {
			out["identifier"] = str(id, "value")
		}
	}
	addName(out, r)
	addTelecom(out, r)
	addAddress(out, r)
	return compact(out)
}

func summarizeCoverage(r map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"id":            str(r, "id"),
		"status":        str(r, "status"),
		"subscriber_id": str(r, "subscriberId"),
	}
	if payors := sliceAt(r, "payor"); len(payors) > 0 {
		if p, ok := payors[0].(map[string]interface{}); ok {
			out["payor_name"] = str(p, "display")
		}
	}
	out["plan_type"] = conceptText(mapAt(r, "type"))
	period := mapAt(r, "period")
	out["start_date"] = str(period, "start")
	out["end_date"] = str(period, "end")
	return compact(out)
}

func summarizePractitioner(r map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"id":  str(r, "id"),
		"npi": identifierBySystem(r, npiSystem),
	}
	addName(out, r)
	var creds []string
	for _, q := range sliceAt(r, "qualification") {
		if qm, ok := q.(map[string]interface{}); ok {
			if text := conceptText(mapAt(qm, "code")); text != "" {
				creds = append(creds, text)
			}
		}
	}
	out["credentials"] = strings.Join(creds, ", ")
	return compact(out)
}

func summarizeOrganization(r map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"id":   str(r, "id"),
		"name": str(r, "name"),
		"npi":  identifierBySystem(r, npiSystem),
	}
	addTelecom(out, r)
	addAddress(out, r)
	return compact(out)
}

func addName(out, r map[string]interface{}) {
	names := sliceAt(r, "name")
	if len(names) == 0 {
		return
	}
	name, ok := names[0].(map[string]interface{})
	if !ok {
		return
	}
	var given []string
	for _, g := range sliceAt(name, "given") {
		if s, ok := g.(string); ok {
			given = append(given, s)
		}
	}
	if len(given) > 0 {
		out["first_name"] = given[0]
	}
	out["last_name"] = str(name, "family")
	full := str(name, "text")
	if full == "" {
		full = strings.TrimSpace(strings.Join(append(given, str(name, "family")), " "))
	}
	out["full_name"] = full
}

func addTelecom(out, r map[string]interface{}) {
	for _, t := range sliceAt(r, "telecom") {
		tm, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		system := str(tm, "system")
		if system != "phone" && system != "email" && system != "fax" {
			continue
		}
		if _, seen := out[system]; !seen {
			out[system] = str(tm, "value")
		}
	}
}

func addAddress(out, r map[string]interface{}) {
	addrs := sliceAt(r, "address")
	if len(addrs) == 0 {
		return
	}
	addr, ok := addrs[0].(map[string]interface{})
	if !ok {
		return
	}
	lines := sliceAt(addr, "line")
	for i, key := range []string{"address_line1", "address_line2"} {
		if i < len(lines) {
			out[key], _ = lines[i].(string)
		}
	}
	out["address_city"] = str(addr, "city")
	out["address_state"] = str(addr, "state")
	out["address_postal_code"] = str(addr, "postalCode")
	out["address_country"] = str(addr, "country")
}

func identifierBySystem(r map[string]interface{}, system string) string {
	for _, id := range sliceAt(r, "identifier") {
		if im, ok := id.(map[string]interface{}); ok && str(im, "system") == system {
			return str(im, "value")
		}
	}
	return ""
}

func conceptText(c map[string]interface{}) string {
	if text := str(c, "text"); text != "" {
		return text
	}
	for _, coding := range sliceAt(c, "coding") {
		if cm, ok := coding.(map[string]interface{}); ok {
			if d := str(cm, "display"); d != "" {
				return d
			}
			if code := str(cm, "code"); code != "" {
				return code
			}
		}
	}
	return ""
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func mapAt(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

func sliceAt(m map[string]interface{}, key string) []interface{} {
	v, _ := m[key].([]interface{})
	return v
}

func compact(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		if s, ok := v.(string); ok && s == "" {
			delete(m, k)
		}
	}
	return m
}
