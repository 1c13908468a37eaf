package substack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starford/herald/internal/richdoc"
)

// Audiences accepted by the platform.
const (
	AudienceEveryone = "everyone"
	AudienceOnlyPaid = "only_paid"
	AudienceFounding = "founding"
	AudienceOnlyFree = "only_free"
)

// Audiences lists every valid audience value.
var Audiences = []string{AudienceEveryone, AudienceOnlyPaid, AudienceFounding, AudienceOnlyFree}

// DraftID is a server-assigned draft identifier. The API sends it as a
// number; it is kept as a string everywhere else.
type DraftID string

// UnmarshalJSON accepts both numeric and string IDs.
func (id *DraftID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = DraftID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("draft id: %w", err)
	}
	*id = DraftID(n.String())
	return nil
}

func (id DraftID) String() string { return string(id) }

// Draft is the subset of the remote draft record herald reads.
type Draft struct {
	ID            DraftID  `json:"id"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	DraftTitle    string   `json:"draft_title"`
	DraftSubtitle string   `json:"draft_subtitle"`
	Audience      string   `json:"audience"`
	Slug          string   `json:"slug"`
	CanonicalURL  string   `json:"canonical_url"`
	SectionID     *int     `json:"draft_section_id"`
	IsPublished   bool     `json:"is_published"`
}

// EffectiveTitle is the working title, falling back to the published one.
func (d Draft) EffectiveTitle() string {
	if d.DraftTitle != "" {
		return d.DraftTitle
	}
	return d.Title
}

// NewDraft is the payload of CreateDraft.
type NewDraft struct {
	Title    string
	Subtitle string
	Body     richdoc.Document
	Audience string
	Tags     []string
}

// MarshalJSON embeds the body as a JSON string, as the API expects.
func (d NewDraft) MarshalJSON() ([]byte, error) {
	body, err := richdoc.Encode(d.Body)
	if err != nil {
		return nil, err
	}
	audience := d.Audience
	if audience == "" {
		audience = AudienceEveryone
	}
	w := struct {
		Title    string   `json:"draft_title"`
		Subtitle string   `json:"draft_subtitle"`
		Body     string   `json:"draft_body"`
		Type     string   `json:"type"`
		Audience string   `json:"audience"`
		Tags     []string `json:"post_tags,omitempty"`
	}{d.Title, d.Subtitle, body, "newsletter", audience, d.Tags}
	return json.Marshal(w)
}

// DraftUpdate is a partial update: nil fields are left untouched remotely.
type DraftUpdate struct {
	Title    *string
	Subtitle *string
	Body     *richdoc.Document
	Audience *string
	Tags     *[]string
}

// Empty reports whether the update carries no field.
func (u DraftUpdate) Empty() bool {
	return u.Title == nil && u.Subtitle == nil && u.Body == nil && u.Audience == nil && u.Tags == nil
}

// MarshalJSON emits only the fields that are set.
func (u DraftUpdate) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 5)
	if u.Title != nil {
		m["draft_title"] = *u.Title
	}
	if u.Subtitle != nil {
		m["draft_subtitle"] = *u.Subtitle
	}
	if u.Body != nil {
		body, err := richdoc.Encode(*u.Body)
		if err != nil {
			return nil, err
		}
		m["draft_body"] = body
	}
	if u.Audience != nil {
		m["audience"] = *u.Audience
	}
	if u.Tags != nil {
		tags := *u.Tags
		if tags == nil {
			tags = []string{}
		}
		m["post_tags"] = tags
	}
	return json.Marshal(m)
}

// DraftResult is the outcome of a call returning a single draft.
type DraftResult struct {
	Response
	Draft Draft
}

// ListResult is the outcome of ListDrafts.
type ListResult struct {
	Response
	Drafts []Draft
}

// PublishResult is the outcome of PublishDraft.
type PublishResult struct {
	Response
	CanonicalURL string
	Slug         string
}

// CreateDraft creates a new draft.
func (c *Client) CreateDraft(ctx context.Context, publication string, d NewDraft) (DraftResult, error) {
	resp, data, err := c.doJSON(ctx, http.MethodPost, c.endpoint(publication, "/drafts"), d)
	if err != nil {
		return DraftResult{}, err
	}
	res := DraftResult{Response: resp}
	return res, decode(resp, data, &res.Draft)
}

// UpdateDraft sends a partial update of draft id. An empty update only
// fetches the draft.
func (c *Client) UpdateDraft(ctx context.Context, publication string, id DraftID, u DraftUpdate) (DraftResult, error) {
	if u.Empty() {
		return c.GetDraft(ctx, publication, id)
	}
	resp, data, err := c.doJSON(ctx, http.MethodPut, c.draftURL(publication, id, ""), u)
	if err != nil {
		return DraftResult{}, err
	}
	res := DraftResult{Response: resp}
	return res, decode(resp, data, &res.Draft)
}

// GetDraft fetches draft id.
func (c *Client) GetDraft(ctx context.Context, publication string, id DraftID) (DraftResult, error) {
	resp, data, err := c.doJSON(ctx, http.MethodGet, c.draftURL(publication, id, ""), nil)
	if err != nil {
		return DraftResult{}, err
	}
	res := DraftResult{Response: resp}
	return res, decode(resp, data, &res.Draft)
}

// ListDrafts lists the publication's drafts. The API answers either with a
// bare array or with an object wrapping it under "drafts" or "posts".
func (c *Client) ListDrafts(ctx context.Context, publication string) (ListResult, error) {
	resp, data, err := c.doJSON(ctx, http.MethodGet, c.endpoint(publication, "/drafts"), nil)
	if err != nil {
		return ListResult{}, err
	}
	res := ListResult{Response: resp}
	if !resp.OK() || len(bytes.TrimSpace(data)) == 0 {
		return res, nil
	}

	if err := json.Unmarshal(data, &res.Drafts); err == nil {
		return res, nil
	}
	var wrapped struct {
		Drafts []Draft `json:"drafts"`
		Posts  []Draft `json:"posts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return res, fmt.Errorf("decode drafts: %w", err)
	}
	res.Drafts = wrapped.Drafts
	if res.Drafts == nil {
		res.Drafts = wrapped.Posts
	}
	return res, nil
}

// UpdateDraftSection files draft id under sectionID.
func (c *Client) UpdateDraftSection(ctx context.Context, publication string, id DraftID, sectionID int) (Response, error) {
	payload := map[string]any{
		"draft_section_id": sectionID,
		"section_chosen":   true,
	}
	resp, _, err := c.doJSON(ctx, http.MethodPut, c.draftURL(publication, id, ""), payload)
	return resp, err
}

// PublishDraft publishes draft id and returns its public URL.
func (c *Client) PublishDraft(ctx context.Context, publication string, id DraftID) (PublishResult, error) {
	resp, data, err := c.doJSON(ctx, http.MethodPost, c.draftURL(publication, id, "/publish"), struct{}{})
	if err != nil {
		return PublishResult{}, err
	}
	res := PublishResult{Response: resp}
	var out struct {
		Slug         string `json:"slug"`
		CanonicalURL string `json:"canonical_url"`
	}
	if err := decode(resp, data, &out); err != nil {
		return res, err
	}
	res.CanonicalURL, res.Slug = out.CanonicalURL, out.Slug
	return res, nil
}

func (c *Client) draftURL(publication string, id DraftID, suffix string) string {
	return c.endpoint(publication, "/drafts/"+url.PathEscape(string(id))+suffix)
}

// ParseSectionID parses a numeric section reference.
func ParseSectionID(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
