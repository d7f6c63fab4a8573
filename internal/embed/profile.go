package embed

import "strings"

// Profile captures the input conventions of an embedding model family.
// Asymmetric retrieval models are trained with role prefixes and degrade
// noticeably without them, so the profile is resolved once from the
// model id and applied on every call.
type Profile struct {
	DocumentPrefix string
	QueryPrefix    string
}

// ResolveProfile maps a model id to its input profile. Unknown models
// get an empty profile, which is correct for symmetric models.
func ResolveProfile(modelID string) Profile {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "e5"), strings.Contains(id, "bge"):
		return Profile{DocumentPrefix: "passage: ", QueryPrefix: "query: "}
	default:
		return Profile{}
	}
}

// ForDocument applies the document prefix.
func (p Profile) ForDocument(text string) string {
	return p.DocumentPrefix + text
}

// ForQuery applies the query prefix.
func (p Profile) ForQuery(text string) string {
	return p.QueryPrefix + text
}
