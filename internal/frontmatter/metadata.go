package frontmatter

// Keys herald reads and writes.
const (
	KeyDraftID      = "draft_id"
	KeyCanonicalURL = "canonical_url"
	KeyTitle        = "title"
	KeySubtitle     = "subtitle"
	KeyTags         = "tags"
	KeyAudience     = "audience"
	KeySection      = "section"
	KeyPublishedAt  = "published_at"
)

// Metadata is the typed view of the keys herald cares about.
type Metadata struct {
	DraftID      string   `json:"draft_id,omitempty"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
	Title        string   `json:"title,omitempty"`
	Subtitle     string   `json:"subtitle,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Audience     string   `json:"audience,omitempty"`
	Section      string   `json:"section,omitempty"`
	PublishedAt  string   `json:"published_at,omitempty"`
}

// Metadata extracts the typed view. Missing keys stay zero.
func (m *Matter) Metadata() Metadata {
	get := func(k string) string {
		v, _ := m.String(k)
		return v
	}
	return Metadata{
		DraftID:      get(KeyDraftID),
		CanonicalURL: get(KeyCanonicalURL),
		Title:        get(KeyTitle),
		Subtitle:     get(KeySubtitle),
		Tags:         m.Strings(KeyTags),
		Audience:     get(KeyAudience),
		Section:      get(KeySection),
		PublishedAt:  get(KeyPublishedAt),
	}
}
