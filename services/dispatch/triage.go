package dispatch

import "strings"

// symptomSpecializations maps reported symptom keywords to the doctor
// specializations best placed to handle them. Unknown symptoms fall through
// to general practice so a request is never left without a match target.
var symptomSpecializations = map[string]string{
	"chest pain":          "cardiology",
	"palpitations":        "cardiology",
	"shortness of breath": "pulmonology",
	"wheezing":            "pulmonology",
	"severe headache":     "neurology",
	"seizure":             "neurology",
	"numbness":            "neurology",
	"abdominal pain":      "gastroenterology",
	"vomiting blood":      "gastroenterology",
	"high fever":          "infectious_disease",
	"rash":                "dermatology",
	"fracture":            "orthopedics",
	"bleeding":            "emergency_medicine",
	"burn":                "emergency_medicine",
	"allergic reaction":   "emergency_medicine",
	"labor":               "obstetrics",
	"pregnancy pain":      "obstetrics",
	"child fever":         "pediatrics",
	"suicidal thoughts":   "psychiatry",
	"panic attack":        "psychiatry",
}

// TriageSpecializations derives the wanted specialization set from a
// request's symptom list.
func TriageSpecializations(symptoms []string) []string {
	seen := make(map[string]struct{})
	var wanted []string
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			wanted = append(wanted, s)
		}
	}
	for _, sym := range symptoms {
		key := strings.ToLower(strings.TrimSpace(sym))
		if spec, ok := symptomSpecializations[key]; ok {
			add(spec)
		}
	}
	add("general_practice")
	return wanted
}
