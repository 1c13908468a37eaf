package substack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Section is a publication section.
type Section struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	IsLive bool   `json:"is_live"`
}

// GetSections lists the publication's sections. Any failure is logged and
// yields an empty slice.
func (c *Client) GetSections(ctx context.Context, publication string) []Section {
	if c.sections != nil {
		if cached, ok := c.sections.Get(publication); ok {
			return cached
		}
	}

	sections, err := c.fetchSections(ctx, publication)
	if err != nil {
		c.log.Warn("list sections failed",
			slog.String("publication", publication),
			slog.String("error", err.Error()),
		)
		return []Section{}
	}
	if c.sections != nil {
		c.sections.Add(publication, sections)
	}
	return sections
}

func (c *Client) fetchSections(ctx context.Context, publication string) ([]Section, error) {
	resp, data, err := c.doJSON(ctx, http.MethodGet, c.endpoint(publication, "/publication/sections"), nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err("list sections"); err != nil {
		return nil, err
	}
	sections := []Section{}
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return sections, nil
}

// ResolveSection finds a live section by numeric ID, name or slug. Name and
// slug comparisons ignore case.
func ResolveSection(sections []Section, ref string) (Section, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Section{}, false
	}
	id, numeric := 0, false
	if n, err := strconv.Atoi(ref); err == nil {
		id, numeric = n, true
	}
	for _, s := range sections {
		if !s.IsLive {
			continue
		}
		if numeric && s.ID == id {
			return s, true
		}
		if strings.EqualFold(s.Name, ref) || strings.EqualFold(s.Slug, ref) {
			return s, true
		}
	}
	return Section{}, false
}
