// Package publisher runs the publish workflow for a vault note: image
// upload, conversion, draft reconciliation, optional publishing, and
// write-back of the remote IDs into the note's front matter.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/converter"
	"github.com/starford/herald/internal/frontmatter"
	"github.com/starford/herald/internal/ledger"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/richdoc"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/vault"
)

// PublicationPattern matches a publication subdomain.
var PublicationPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Remote is the subset of the draft API the workflow drives.
type Remote interface {
	Uploader
	CreateDraft(ctx context.Context, publication string, d substack.NewDraft) (substack.DraftResult, error)
	UpdateDraft(ctx context.Context, publication string, id substack.DraftID, u substack.DraftUpdate) (substack.DraftResult, error)
	GetDraft(ctx context.Context, publication string, id substack.DraftID) (substack.DraftResult, error)
	ListDrafts(ctx context.Context, publication string) (substack.ListResult, error)
	UpdateDraftSection(ctx context.Context, publication string, id substack.DraftID, sectionID int) (substack.Response, error)
	PublishDraft(ctx context.Context, publication string, id substack.DraftID) (substack.PublishResult, error)
	GetSections(ctx context.Context, publication string) []substack.Section
}

// Notifier receives progress events.
type Notifier interface {
	Notify(e models.Event)
}

// Defaults fill settings that neither the request nor the note provide.
type Defaults struct {
	Publication string
	Audience    string
	Tags        []string
	Section     string
}

// Request asks for one note to be saved as a draft and optionally published.
// Empty fields fall back to the note's front matter, then to Defaults.
type Request struct {
	Path        string   `json:"path"`
	Publication string   `json:"publication,omitempty"`
	Title       string   `json:"title,omitempty"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Audience    string   `json:"audience,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Section     string   `json:"section,omitempty"`
	Publish     bool     `json:"publish,omitempty"`
	// OnlyExisting skips notes whose draft cannot be found instead of creating
	// one.
	OnlyExisting bool `json:"-"`
}

// Result describes what a publish run did.
type Result struct {
	AttemptID    string          `json:"attempt_id"`
	Path         string          `json:"path"`
	Publication  string          `json:"publication"`
	Title        string          `json:"title"`
	DraftID      string          `json:"draft_id"`
	Created      bool            `json:"created"`
	Published    bool            `json:"published"`
	CanonicalURL string          `json:"canonical_url,omitempty"`
	SectionID    int             `json:"section_id,omitempty"`
	Uploaded     []UploadedImage `json:"uploaded_images"`
	ImageErrors  []ImageError    `json:"image_errors"`
	Warnings     []string        `json:"warnings"`
	Skipped      bool            `json:"skipped,omitempty"`
}

// settings are the merged, validated inputs of one run.
type settings struct {
	Publication string   `json:"publication"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Audience    string   `json:"audience"`
	Tags        []string `json:"tags"`
	Section     string   `json:"section"`
}

func (s settings) Validate() error {
	audiences := make([]any, len(substack.Audiences))
	for i, a := range substack.Audiences {
		audiences[i] = a
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Publication, validation.Required, validation.Match(PublicationPattern)),
		validation.Field(&s.Audience, validation.Required, validation.In(audiences...)),
		validation.Field(&s.Title, validation.Length(0, 280)),
		validation.Field(&s.Subtitle, validation.Length(0, 280)),
	)
}

// Publisher runs publish workflows. Runs for the same note are serialized.
type Publisher struct {
	vault    *vault.Vault
	remote   Remote
	images   *ImageProcessor
	ledger   ledger.Ledger
	notifier Notifier
	defaults Defaults
	log      *slog.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLedger records every run in l.
func WithLedger(l ledger.Ledger) Option { return func(p *Publisher) { p.ledger = l } }

// WithNotifier sends progress events to n.
func WithNotifier(n Notifier) Option { return func(p *Publisher) { p.notifier = n } }

// WithDefaults sets fallback settings.
func WithDefaults(d Defaults) Option { return func(p *Publisher) { p.defaults = d } }

// WithMaxImageBytes caps the size of uploaded images.
func WithMaxImageBytes(n int64) Option {
	return func(p *Publisher) { p.images.maxBytes = n }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.log = l } }

// New creates a Publisher.
func New(v *vault.Vault, remote Remote, opts ...Option) *Publisher {
	p := &Publisher{
		vault:  v,
		remote: remote,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	p.images = NewImageProcessor(v, remote, DefaultMaxImageBytes, nil)
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	if p.images.maxBytes <= 0 {
		p.images.maxBytes = DefaultMaxImageBytes
	}
	p.images.log = p.log
	return p
}

// CreateOrUpdate saves the note at req.Path as a remote draft, reusing the
// draft it was saved to before when one can be found, and publishes it when
// req.Publish is set.
func (p *Publisher) CreateOrUpdate(ctx context.Context, req Request) (*Result, error) {
	unlock := p.lock(req.Path)
	defer unlock()

	attempt := models.Attempt{
		ID:        uuid.NewString(),
		Path:      req.Path,
		StartedAt: p.now(),
	}
	res := &Result{AttemptID: attempt.ID, Path: req.Path}

	res, err := p.run(ctx, req, res)

	attempt.Publication = res.Publication
	attempt.Title = res.Title
	attempt.DraftID = res.DraftID
	attempt.Created = res.Created
	attempt.Published = res.Published
	attempt.ImagesUploaded = len(res.Uploaded)
	attempt.ImageErrors = len(res.ImageErrors)
	attempt.FinishedAt = p.now()
	attempt.Outcome = models.OutcomeSuccess
	if err != nil {
		attempt.Outcome = models.OutcomeFailed
		attempt.Error = err.Error()
		p.notify(res, models.EventPublishFailed, func(e *models.Event) { e.Message = err.Error() })
		p.log.Error("publish failed",
			slog.String("path", req.Path),
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
	if p.ledger != nil && !res.Skipped {
		// The caller's context may already be cancelled; the record still matters.
		if lerr := p.ledger.RecordAttempt(context.WithoutCancel(ctx), attempt); lerr != nil {
			p.log.Warn("record attempt failed", slog.String("path", req.Path), slog.String("error", lerr.Error()))
		}
	}
	return res, err
}

func (p *Publisher) run(ctx context.Context, req Request, res *Result) (*Result, error) {
	if strings.TrimSpace(req.Path) == "" {
		return res, fmt.Errorf("%w: no note path given", apperr.ErrNoDocument)
	}

	note, err := p.vault.ReadNote(req.Path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return res, fmt.Errorf("%w: %s", apperr.ErrNoDocument, req.Path)
		}
		return res, err
	}

	s := p.merge(req, note.Meta)
	res.Publication, res.Title = s.Publication, s.Title

	if strings.TrimSpace(s.Title) == "" {
		return res, apperr.ErrMissingTitle
	}
	if strings.TrimSpace(note.Body) == "" {
		return res, fmt.Errorf("%w: %s has no content", apperr.ErrNoDocument, req.Path)
	}
	if err := s.Validate(); err != nil {
		return res, fmt.Errorf("invalid publish settings: %w", err)
	}
	if req.OnlyExisting && note.Meta.DraftID == "" {
		res.Skipped = true
		return res, nil
	}

	existing, err := p.findDraft(ctx, s, substack.DraftID(note.Meta.DraftID))
	if err != nil {
		return res, err
	}
	if existing == "" && req.OnlyExisting {
		p.log.Warn("draft not found, skipping", slog.String("path", req.Path), slog.String("draft_id", note.Meta.DraftID))
		res.Skipped = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("draft %s not found and no draft is titled %q; publish the note to create one", note.Meta.DraftID, s.Title))
		return res, nil
	}

	p.log.Info("publish started",
		slog.String("path", req.Path),
		slog.String("publication", s.Publication),
		slog.Bool("publish", req.Publish),
	)
	p.notify(res, models.EventPublishStarted, nil)

	imgs, err := p.images.Process(ctx, s.Publication, note.Body, note.Dir())
	if err != nil {
		return res, err
	}
	res.Uploaded, res.ImageErrors = imgs.Uploaded, imgs.Errors
	if len(imgs.Uploaded)+len(imgs.Errors) > 0 {
		p.notify(res, models.EventImagesUploaded, func(e *models.Event) {
			e.Count = len(imgs.Uploaded)
			if len(imgs.Errors) > 0 {
				e.Message = fmt.Sprintf("%d image(s) failed", len(imgs.Errors))
			}
		})
	}

	doc := converter.Convert(imgs.Markdown)

	id, created, err := p.saveDraft(ctx, s, existing, doc)
	if err != nil {
		return res, err
	}
	res.DraftID, res.Created = string(id), created

	if string(id) != note.Meta.DraftID {
		// Persist right away so a later failure cannot lead to a second draft.
		if err := p.writeBack(req.Path, map[string]any{frontmatter.KeyDraftID: string(id)}); err != nil {
			res.Warnings = append(res.Warnings, "could not save draft_id to note: "+err.Error())
		}
	}
	if created {
		p.notify(res, models.EventDraftCreated, nil)
	} else {
		p.notify(res, models.EventDraftUpdated, nil)
	}

	if s.Section != "" {
		p.applySection(ctx, s, id, res)
	}

	if req.Publish {
		pub, err := p.remote.PublishDraft(ctx, s.Publication, id)
		if err != nil {
			return res, fmt.Errorf("publish draft: %w", err)
		}
		if err := pub.Err("publish"); err != nil {
			return res, err
		}
		res.Published, res.CanonicalURL = true, pub.CanonicalURL
		p.log.Info("draft published", slog.String("path", req.Path), slog.String("draft_id", string(id)), slog.String("url", pub.CanonicalURL))

		fields := map[string]any{frontmatter.KeyPublishedAt: p.now().UTC().Format(time.RFC3339)}
		if pub.CanonicalURL != "" {
			fields[frontmatter.KeyCanonicalURL] = pub.CanonicalURL
		}
		if err := p.writeBack(req.Path, fields); err != nil {
			res.Warnings = append(res.Warnings, "could not save canonical_url to note: "+err.Error())
		}
		p.notify(res, models.EventDraftPublished, func(e *models.Event) { e.URL = pub.CanonicalURL })
	}

	if p.ledger != nil {
		rec := models.Publication{
			Path:         req.Path,
			Publication:  s.Publication,
			DraftID:      res.DraftID,
			Title:        s.Title,
			CanonicalURL: res.CanonicalURL,
			BodyChecksum: note.BodyChecksum(),
			Published:    res.Published,
		}
		if err := p.ledger.UpsertPublication(context.WithoutCancel(ctx), rec); err != nil {
			p.log.Warn("ledger update failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// merge resolves settings: request first, then front matter, then defaults.
func (p *Publisher) merge(req Request, meta frontmatter.Metadata) settings {
	s := settings{
		Publication: firstNonEmpty(req.Publication, p.defaults.Publication),
		Title:       strings.TrimSpace(firstNonEmpty(req.Title, meta.Title)),
		Subtitle:    strings.TrimSpace(firstNonEmpty(req.Subtitle, meta.Subtitle)),
		Audience:    firstNonEmpty(req.Audience, meta.Audience, p.defaults.Audience, substack.AudienceEveryone),
		Section:     firstNonEmpty(req.Section, meta.Section, p.defaults.Section),
		Tags:        req.Tags,
	}
	if s.Tags == nil {
		s.Tags = meta.Tags
	}
	if s.Tags == nil {
		s.Tags = p.defaults.Tags
	}
	return s
}

// saveDraft creates a draft when id is empty and updates that draft otherwise.
func (p *Publisher) saveDraft(ctx context.Context, s settings, id substack.DraftID, doc richdoc.Document) (substack.DraftID, bool, error) {
	if id == "" {
		res, err := p.remote.CreateDraft(ctx, s.Publication, substack.NewDraft{
			Title:    s.Title,
			Subtitle: s.Subtitle,
			Body:     doc,
			Audience: s.Audience,
			Tags:     s.Tags,
		})
		if err != nil {
			return "", false, fmt.Errorf("create draft: %w", err)
		}
		if err := res.Err("create draft"); err != nil {
			return "", false, err
		}
		if res.Draft.ID == "" {
			return "", false, errors.New("create draft: response has no draft id")
		}
		p.log.Info("draft created", slog.String("publication", s.Publication), slog.String("draft_id", string(res.Draft.ID)))
		return res.Draft.ID, true, nil
	}

	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	res, err := p.remote.UpdateDraft(ctx, s.Publication, id, substack.DraftUpdate{
		Title:    &s.Title,
		Subtitle: &s.Subtitle,
		Body:     &doc,
		Audience: &s.Audience,
		Tags:     &tags,
	})
	if err != nil {
		return "", false, fmt.Errorf("update draft: %w", err)
	}
	if err := res.Err("update draft"); err != nil {
		return "", false, err
	}
	p.log.Info("draft updated", slog.String("publication", s.Publication), slog.String("draft_id", string(id)))
	return id, false, nil
}

// findDraft verifies the cached ID, then falls back to an exact title match.
// It returns "" when a new draft must be created. A title search that cannot
// run is an error: creating blindly could duplicate the note's draft.
func (p *Publisher) findDraft(ctx context.Context, s settings, cached substack.DraftID) (substack.DraftID, error) {
	if cached != "" {
		got, err := p.remote.GetDraft(ctx, s.Publication, cached)
		switch {
		case err == nil && got.OK():
			return cached, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			p.log.Warn("cached draft check failed", slog.String("draft_id", string(cached)), slog.String("error", err.Error()))
		default:
			p.log.Info("cached draft not usable", slog.String("draft_id", string(cached)), slog.Int("status", got.Status))
		}
	}

	list, err := p.remote.ListDrafts(ctx, s.Publication)
	switch {
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		return "", fmt.Errorf("list drafts: %w", err)
	case !list.OK():
		return "", list.Err("list drafts")
	}
	for _, d := range list.Drafts {
		if d.EffectiveTitle() == s.Title && d.ID != "" {
			p.log.Info("draft matched by title", slog.String("draft_id", string(d.ID)))
			return d.ID, nil
		}
	}
	return "", nil
}

func (p *Publisher) applySection(ctx context.Context, s settings, id substack.DraftID, res *Result) {
	sectionID, ok := substack.ParseSectionID(s.Section)
	if !ok {
		sec, found := substack.ResolveSection(p.remote.GetSections(ctx, s.Publication), s.Section)
		if !found {
			res.Warnings = append(res.Warnings, fmt.Sprintf("section %q not found", s.Section))
			return
		}
		sectionID = sec.ID
	}

	resp, err := p.remote.UpdateDraftSection(ctx, s.Publication, id, sectionID)
	if err == nil {
		err = resp.Err("set section")
	}
	if err != nil {
		res.Warnings = append(res.Warnings, "could not set section: "+err.Error())
		p.log.Warn("set section failed", slog.String("draft_id", string(id)), slog.String("error", err.Error()))
		return
	}
	res.SectionID = sectionID
}

func (p *Publisher) writeBack(notePath string, fields map[string]any) error {
	return p.vault.WriteFrontmatter(notePath, func(m *frontmatter.Matter) error {
		for _, k := range []string{frontmatter.KeyDraftID, frontmatter.KeyCanonicalURL, frontmatter.KeyPublishedAt} {
			if v, ok := fields[k]; ok {
				if err := m.Set(k, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (p *Publisher) notify(res *Result, typ string, fill func(*models.Event)) {
	if p.notifier == nil {
		return
	}
	e := models.Event{
		Type:        typ,
		AttemptID:   res.AttemptID,
		Path:        res.Path,
		Publication: res.Publication,
		DraftID:     res.DraftID,
		At:          p.now().UTC(),
	}
	if fill != nil {
		fill(&e)
	}
	p.notifier.Notify(e)
}

func (p *Publisher) lock(notePath string) func() {
	key := path.Clean(notePath)
	p.locksMu.Lock()
	mu, ok := p.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[key] = mu
	}
	p.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
