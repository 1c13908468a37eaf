package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/herald/internal/converter"
	"github.com/starford/herald/internal/mcpserver"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/richdoc"
)

// PublishOptions are the command-line overrides of a publish run.
type PublishOptions struct {
	Title    string
	Subtitle string
	Audience string
	Section  string
	Tags     []string
	Publish  bool
	// FilenameTitle uses the note's base name when neither the flags nor
	// the front matter carry a title.
	FilenameTitle bool
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Convert writes the rich document of a vault note to w.
func Convert(ctx context.Context, notePath string, w io.Writer, opts ...Option) error {
	app, _, err := setup(opts)
	if err != nil {
		return err
	}
	return local(ctx, app.config, func(svc *services) error {
		note, err := svc.vault.ReadNote(notePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", notePath, err)
		}
		body, err := richdoc.Encode(converter.Convert(note.Body))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, body)
		return err
	})
}

// local runs fn against the vault and ledger without a remote session.
func local(ctx context.Context, cfg *Config, fn func(*services) error) error {
	svc, err := newServices(ctx, cfg, newLogger(cfg.App.LogLevel, io.Discard), false)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

// Publish saves a note as a draft, and publishes it when asked, writing the
// result to w.
func Publish(ctx context.Context, notePath string, po PublishOptions, w io.Writer, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, app.config, logger, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	req := publisher.Request{
		Path:     notePath,
		Title:    po.Title,
		Subtitle: po.Subtitle,
		Audience: po.Audience,
		Section:  po.Section,
		Tags:     po.Tags,
		Publish:  po.Publish,
	}
	if req.Title == "" && po.FilenameTitle {
		meta, err := svc.vault.ReadFrontmatter(notePath)
		if err == nil && meta.Title == "" {
			req.Title = strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))
		}
	}

	res, err := svc.publisher(nil).CreateOrUpdate(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(w, res)
}

// Sections writes the sections of the configured publication to w.
func Sections(ctx context.Context, publication string, w io.Writer, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	if publication == "" {
		publication = app.config.Substack.Publication
	}
	if publication == "" {
		return fmt.Errorf("publication is required")
	}
	svc, err := newServices(ctx, app.config, logger, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	return printJSON(w, svc.client.GetSections(ctx, publication))
}

// History writes recent publish attempts to w, optionally for one note.
func History(ctx context.Context, notePath string, limit int, w io.Writer, opts ...Option) error {
	app, _, err := setup(opts)
	if err != nil {
		return err
	}
	return local(ctx, app.config, func(svc *services) error {
		attempts, err := svc.db.ListAttempts(ctx, notePath, limit)
		if err != nil {
			return err
		}
		return printJSON(w, attempts)
	})
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
// Callers route logs away from stdout with WithLogOutput.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, app.config, logger, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := mcpserver.New(svc.vault, svc.publisher(nil), svc.client, svc.db, app.config.Substack.Publication,
		mcpserver.WithMaxImageBytes(app.config.Images.MaxBytes))
	logger.Info("MCP server starting", slog.String("vault_path", app.config.Vault.Path))
	return srv.ServeStdio()
}
