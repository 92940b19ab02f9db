package scheduling

import "strings"

// SchoolIdentifier resolves the dual school-identifier system into one
// canonical key. Newer records carry structured IDs (school/district/state);
// legacy records only carry free-text site and district names. Resolution
// prefers the structured ID and falls back to a normalized text match.
type SchoolIdentifier struct {
	SchoolID   string `json:"school_id,omitempty"`
	DistrictID string `json:"district_id,omitempty"`
	StateID    string `json:"state_id,omitempty"`
	Site       string `json:"site,omitempty"`
	District   string `json:"district,omitempty"`
}

// NewSchoolIdentifier builds an identifier from the legacy text pair plus an
// optional structured school ID.
func NewSchoolIdentifier(site, district, schoolID string) SchoolIdentifier {
	return SchoolIdentifier{SchoolID: schoolID, Site: site, District: district}
}

// IsZero reports whether the identifier carries no usable scope at all.
func (s SchoolIdentifier) IsZero() bool {
	return s.SchoolID == "" && normalizeSchoolText(s.Site) == ""
}

// Key returns the canonical cache/index key for this school scope.
func (s SchoolIdentifier) Key() string {
	if s.SchoolID != "" {
		return "id:" + s.SchoolID
	}
	return "site:" + normalizeSchoolText(s.Site) + "|" + normalizeSchoolText(s.District)
}

// MatchesRow reports whether a persisted row scoped by (schoolID, site,
// district) belongs to this school. Structured IDs win when both sides have
// one; otherwise the legacy text columns are compared after normalization.
func (s SchoolIdentifier) MatchesRow(schoolID *string, site, district string) bool {
	if s.SchoolID != "" && schoolID != nil && *schoolID != "" {
		return s.SchoolID == *schoolID
	}
	if normalizeSchoolText(s.Site) != normalizeSchoolText(site) {
		return false
	}
	// District is a tie-breaker only: legacy rows frequently omit it.
	if s.District == "" || district == "" {
		return true
	}
	return normalizeSchoolText(s.District) == normalizeSchoolText(district)
}

func normalizeSchoolText(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(raw))), " ")
}
