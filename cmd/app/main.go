package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/herald/internal"
	pkgconfig "github.com/starford/herald/pkg/config"
)

// loadOptions reads the config file. Commands that print results to stdout
// pass stderrLogs so logs stay out of their output.
func loadOptions(cmd *cli.Command, stderrLogs bool) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if stderrLogs {
		opts = append(opts, internal.WithLogOutput(os.Stderr))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, false)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func convert(ctx context.Context, cmd *cli.Command) error {
	note := cmd.Args().First()
	if note == "" {
		return fmt.Errorf("usage: herald convert <note.md>")
	}
	opts, err := loadOptions(cmd, true)
	if err != nil {
		return err
	}
	return internal.Convert(ctx, note, os.Stdout, opts...)
}

func publish(ctx context.Context, cmd *cli.Command) error {
	note := cmd.Args().First()
	if note == "" {
		return fmt.Errorf("usage: herald publish <note.md>")
	}
	opts, err := loadOptions(cmd, true)
	if err != nil {
		return err
	}

	po := internal.PublishOptions{
		Title:         cmd.String("title"),
		Subtitle:      cmd.String("subtitle"),
		Audience:      cmd.String("audience"),
		Section:       cmd.String("section"),
		Publish:       cmd.Bool("publish"),
		FilenameTitle: !cmd.Bool("require-title"),
	}
	if tags := cmd.String("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				po.Tags = append(po.Tags, t)
			}
		}
	}
	return internal.Publish(ctx, note, po, os.Stdout, opts...)
}

func sections(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, true)
	if err != nil {
		return err
	}
	return internal.Sections(ctx, cmd.String("publication"), os.Stdout, opts...)
}

func history(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, true)
	if err != nil {
		return err
	}
	return internal.History(ctx, cmd.Args().First(), int(cmd.Int("limit")), os.Stdout, opts...)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, true)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "herald",
		Usage:  "Convert Markdown notes and keep them in sync with newsletter drafts",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (and autosync when enabled)",
				Action: serve,
			},
			{
				Name:      "convert",
				Usage:     "Print the rich document JSON of a note",
				ArgsUsage: "<note.md>",
				Action:    convert,
			},
			{
				Name:      "publish",
				Usage:     "Save a note as a draft and optionally publish it",
				ArgsUsage: "<note.md>",
				Action:    publish,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "publish", Aliases: []string{"p"}, Usage: "Publish after saving the draft"},
					&cli.StringFlag{Name: "title", Usage: "Override the front matter title"},
					&cli.StringFlag{Name: "subtitle", Usage: "Override the front matter subtitle"},
					&cli.StringFlag{Name: "audience", Usage: "everyone, only_paid, founding or only_free"},
					&cli.StringFlag{Name: "section", Usage: "Section ID or name"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
					&cli.BoolFlag{Name: "require-title", Usage: "Fail instead of using the file name when no title is set"},
				},
			},
			{
				Name:   "sections",
				Usage:  "List the sections of a publication",
				Action: sections,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "publication", Usage: "Publication subdomain (defaults to the configured one)"},
				},
			},
			{
				Name:      "history",
				Usage:     "List recent publish attempts",
				ArgsUsage: "[note.md]",
				Action:    history,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Max results"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
