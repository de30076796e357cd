package shadowcoder

import "fmt"

// Condition gates a rule on the current fact snapshot. Exactly one of
// Equals or In is set. Conditions are plain data so the rule table can
// be inspected and serialized.
type Condition struct {
	Field  string   `json:"field"`
	Equals string   `json:"equals,omitempty"`
	In     []string `json:"in,omitempty"`
}

// Matches reports whether the condition holds for the fact snapshot.
// A fact value that is not a string makes the condition inapplicable.
func (c *Condition) Matches(facts map[string]any) (bool, error) {
	v, ok := facts[c.Field]
	if !ok || v == nil {
		return false, nil
	}
	s, ok := v.(string)
	if !ok {
		return false, fmt.Errorf("condition on %s: expected string value, got %T", c.Field, v)
	}
	if c.Equals != "" {
		return s == c.Equals, nil
	}
	for _, candidate := range c.In {
		if s == candidate {
			return true, nil
		}
	}
	return false, nil
}

// Rule defines one documentation requirement.
type Rule struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Severity     string     `json:"severity"`
	Condition    *Condition `json:"condition,omitempty"`
	RequiredFacts []string  `json:"required_facts"`
	// AlternativeFacts satisfy the rule when any one of them is present,
	// even if required facts are missing.
	AlternativeFacts []string `json:"alternative_facts,omitempty"`
	Message          string   `json:"message"`
	GuidelineRef     string   `json:"guideline_ref"`
}

// PADRules is the static PAD and carotid coding-compliance rule table.
var PADRules = []Rule{
	{
		ID:            "PAD_001_SYMPTOM_CLASS",
		Name:          "PAD Symptom Classification Required",
		Description:   "Must document symptom classification for PAD procedures",
		Severity:      SeverityBlock,
		RequiredFacts: []string{"pad_symptom_class"},
		Message:       "PAD symptom classification not documented. Must specify: asymptomatic, claudication, rest pain, or tissue loss.",
		GuidelineRef:  "AUC for PAD Revascularization",
	},
	{
		ID:            "PAD_002_LATERALITY",
		Name:          "Laterality Required",
		Description:   "Must document which leg (left, right, bilateral)",
		Severity:      SeverityBlock,
		RequiredFacts: []string{"laterality"},
		Message:       "Laterality not documented. Specify left, right, or bilateral.",
		GuidelineRef:  "CPT Coding Guidelines",
	},
	{
		ID:               "PAD_003_ABI_FOR_CLAUDICATION",
		Name:             "ABI Required for Claudication",
		Description:      "ABI/TBI needed to document objective ischemia for claudication",
		Severity:         SeverityWarn,
		Condition:        &Condition{Field: "pad_symptom_class", Equals: "claudication"},
		RequiredFacts:    []string{"abi_value"},
		AlternativeFacts: []string{"tbi_value", "toe_pressure"},
		Message:          "ABI/TBI not documented. Objective ischemia should be documented for claudication intervention.",
		GuidelineRef:     "TASC II, SVS Guidelines",
	},
	{
		ID:            "PAD_004_MEDICAL_MGMT_CLAUDICATION",
		Name:          "Medical Management for Claudication",
		Description:   "Must document trial of medical management before intervention for claudication",
		Severity:      SeverityWarn,
		Condition:     &Condition{Field: "pad_symptom_class", Equals: "claudication"},
		RequiredFacts: []string{"antiplatelet_documented", "statin_documented"},
		Message:       "Medical management trial not documented. Document antiplatelet and statin therapy for claudication.",
		GuidelineRef:  "AUC for PAD Revascularization",
	},
	{
		ID:            "PAD_005_CLI_WOUND",
		Name:          "Wound Documentation for CLI",
		Description:   "Wound details needed for tissue loss classification",
		Severity:      SeverityWarn,
		Condition:     &Condition{Field: "pad_symptom_class", Equals: "tissue_loss"},
		RequiredFacts: []string{"wound_present"},
		Message:       "Wound documentation incomplete. Document wound location and staging for tissue loss.",
		GuidelineRef:  "WIfI Classification",
	},
	{
		ID:            "PAD_006_TARGET_VESSEL",
		Name:          "Target Vessel Required",
		Description:   "Must document target vessel for procedure coding",
		Severity:      SeverityBlock,
		RequiredFacts: []string{"target_vessel"},
		Message:       "Target vessel not documented. Specify which vessels will be treated.",
		GuidelineRef:  "CPT Vascular Coding",
	},
	{
		ID:            "PAD_007_STENT_JUSTIFICATION",
		Name:          "Stent Justification",
		Description:   "Stent use should be justified when performed",
		Severity:      SeverityInfo,
		Condition:     &Condition{Field: "procedure_technique", In: []string{"stent", "atherectomy_stent"}},
		RequiredFacts: []string{"stent_justification"},
		Message:       "Stent justification not documented. Consider documenting reason for stent vs PTA alone.",
		GuidelineRef:  "Medically Necessity Documentation",
	},
	{
		ID:            "CAROTID_001_STENOSIS",
		Name:          "Carotid Stenosis Degree",
		Description:   "Must document stenosis percentage for carotid procedures",
		Severity:      SeverityBlock,
		Condition:     &Condition{Field: "target_territory", Equals: "carotid"},
		RequiredFacts: []string{"carotid_stenosis_degree"},
		Message:       "Carotid stenosis degree not documented. Specify percent stenosis.",
		GuidelineRef:  "SVS Carotid Guidelines",
	},
	{
		ID:            "CAROTID_002_SYMPTOM_STATUS",
		Name:          "Carotid Symptom Status",
		Description:   "Must document symptomatic vs asymptomatic for carotid",
		Severity:      SeverityBlock,
		Condition:     &Condition{Field: "target_territory", Equals: "carotid"},
		RequiredFacts: []string{"carotid_symptom_status"},
		Message:       "Carotid symptom status not documented. Specify symptomatic or asymptomatic.",
		GuidelineRef:  "CMS LCD for Carotid Stenting",
	},
}
