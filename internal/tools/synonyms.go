package tools

// conceptSynonyms expands a clinical concept into the substrings
// combined_search uses to widen its dictionary and codelist scan. This is
// a data asset describing the RePORT India field-naming conventions, not
// load-bearing business logic — a deployment targeting a different study
// can swap it out without touching the search algorithm.
var conceptSynonyms = map[string][]string{
	"age":  {"age", "birth", "dob", "years old"},
	"sex":  {"sex", "gender", "male", "female"},
	"site": {"site", "center", "location", "pune", "chennai", "vellore"},

	"bmi":    {"bmi", "body mass", "weight", "height"},
	"weight": {"weight", "kgs", "mass"},
	"height": {"height", "tall"},
	"malnutrition": {
		"malnutrition", "undernutrition", "undernourish", "bmi", "weight",
	},
	"nutrition": {"nutrition", "bmi", "weight", "diet", "food"},

	"diabetes": {
		"diabetes", "diabetic", "glucose", "hba1c", "hba1",
		"fbg_", "rbg_", "ogtt", "blood sugar",
	},
	"hiv": {"hiv", "aids", "hivstat", "retroviral", "antiretroviral"},

	"smoking": {
		"smoking", "smoke", "smoker", "tobacco", "cigarette", "smokhx", "bidi",
	},
	"alcohol": {"alcohol", "drinking", "drink", "liquor", "beer", "alcoh"},
	"drug":    {"drug use", "substance", "injection drug", "idu"},

	"tuberculosis": {"tuberculosis", "tbnew", "tbdx", "pulmonary"},
	"diagnosis":    {"diagnosis", "diagnosed", "tbdx", "confirm"},
	"treatment":    {"treatment", "therapy", "regimen", "medication", "anti-tb"},
	"outcome": {
		"outcome", "outclin", "outoth", "cure", "fail", "death",
		"ltfu", "treatment result",
	},
	"cure":     {"cure", "cured", "success", "favorable"},
	"failure":  {"failure", "fail", "unfavorable", "unsuccessful"},
	"death":    {"death", "died", "mortality", "dead"},
	"relapse":  {"relapse", "recurrence", "recurrent", "recur"},
	"follow-up": {"follow", "followup", "fua_", "fub_", "visit"},

	"sputum":  {"sputum", "smear", "afb", "microscopy"},
	"culture": {"culture", "growth"},
	"xpert":   {"xpert", "genexpert", "pcr", "molecular"},
	"xray":    {"xray", "x-ray", "chest", "radiograph", "cxr"},
	"cd4":     {"cd4", "t-cell", "immune"},

	"symptoms": {"symptom", "cough", "fever", "weight loss", "night sweat"},
	"cough":    {"cough", "sputum", "expectoration"},
	"fever":    {"fever", "temperature", "febrile"},

	"baseline": {"baseline", "enrollment", "initial", "screening", "index"},
	"month":    {"month", "week", "day", "visit", "follow"},
}

// clinicalConceptKeywords is the narrower table prompt_enhancer uses to
// tag a free-text query with the concepts it touches, for the confirmation
// interpretation shown back to the caller.
var clinicalConceptKeywords = map[string][]string{
	"hiv":          {"hiv", "aids", "human immunodeficiency"},
	"diabetes":     {"diabetes", "diabetic", "glucose", "hba1c"},
	"smoking":      {"smoking", "smoke", "smoker", "tobacco", "cigarette"},
	"alcohol":      {"alcohol", "drinking", "drink", "liquor"},
	"age":          {"age", "years old", "elderly", "young"},
	"sex":          {"sex", "gender", "male", "female"},
	"outcome":      {"outcome", "cure", "success", "failure", "death", "result"},
	"site":         {"site", "center", "location", "pune", "chennai", "vellore"},
	"bmi":          {"bmi", "body mass", "weight", "malnutrition"},
	"tuberculosis": {"tuberculosis", "tb"},
}

// conceptOrder fixes iteration order over conceptSynonyms so search_terms_used
// is deterministic across runs. The source table's insertion order is
// unspecified for Go maps, so this sits alongside it.
var conceptOrder = []string{
	"age", "sex", "site",
	"bmi", "weight", "height", "malnutrition", "nutrition",
	"diabetes", "hiv",
	"smoking", "alcohol", "drug",
	"tuberculosis", "diagnosis", "treatment", "outcome", "cure", "failure",
	"death", "relapse", "follow-up",
	"sputum", "culture", "xpert", "xray", "cd4",
	"symptoms", "cough", "fever",
	"baseline", "month",
}

// clinicalConceptOrder likewise fixes extractClinicalConcepts's iteration
// order.
var clinicalConceptOrder = []string{
	"hiv", "diabetes", "smoking", "alcohol", "age", "sex",
	"outcome", "site", "bmi", "tuberculosis",
}
