package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/testutil"
)

func testConfig(t *testing.T, fake *testutil.FakeRemote) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(dir, "vault")
	cfg.SQLite.Path = filepath.Join(dir, "herald.db")
	cfg.Substack.Cookie = "secret"
	cfg.Substack.BaseURL = fake.BaseURL()
	cfg.Substack.Publication = "mypub"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeNote(t *testing.T, cfg *Config, rel, content string) {
	t.Helper()
	p := filepath.Join(cfg.Vault.Path, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testOpts(cfg *Config) []Option {
	return []Option{WithConfig(cfg), WithLogOutput(io.Discard)}
}

func TestConvertCommand(t *testing.T) {
	fake := testutil.NewFakeRemote(t)
	cfg := testConfig(t, fake)
	writeNote(t, cfg, "post.md", "---\ntitle: T\n---\n# Hello\n")

	var out bytes.Buffer
	if err := Convert(context.Background(), "post.md", &out, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"heading"`) {
		t.Errorf("output = %s", out.String())
	}
	if fake.Calls("GET /drafts") != 0 {
		t.Error("convert should not call the remote")
	}
}

func TestPublishCommand_FilenameTitle(t *testing.T) {
	fake := testutil.NewFakeRemote(t)
	cfg := testConfig(t, fake)
	writeNote(t, cfg, "notes/first-post.md", "Body only\n")

	var out bytes.Buffer
	err := Publish(context.Background(), "notes/first-post.md", PublishOptions{FilenameTitle: true}, &out, testOpts(cfg)...)
	if err != nil {
		t.Fatal(err)
	}
	var res publisher.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Title != "first-post" || !res.Created {
		t.Errorf("result = %+v", res)
	}

	var hist bytes.Buffer
	if err := History(context.Background(), "notes/first-post.md", 0, &hist, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	var attempts []models.Attempt
	if err := json.Unmarshal(hist.Bytes(), &attempts); err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != models.OutcomeSuccess {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestPublishCommand_MissingTitle(t *testing.T) {
	fake := testutil.NewFakeRemote(t)
	cfg := testConfig(t, fake)
	writeNote(t, cfg, "untitled.md", "Body only\n")

	err := Publish(context.Background(), "untitled.md", PublishOptions{}, io.Discard, testOpts(cfg)...)
	if !errors.Is(err, apperr.ErrMissingTitle) {
		t.Fatalf("err = %v, want ErrMissingTitle", err)
	}
	if fake.DraftCount() != 0 {
		t.Error("no draft should be created")
	}
}

func TestPublishCommand_RequiresSession(t *testing.T) {
	fake := testutil.NewFakeRemote(t)
	cfg := testConfig(t, fake)
	cfg.Substack.Cookie = ""
	writeNote(t, cfg, "a.md", "---\ntitle: A\n---\nx\n")

	err := Publish(context.Background(), "a.md", PublishOptions{}, io.Discard, testOpts(cfg)...)
	if !errors.Is(err, apperr.ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
}

func TestSectionsCommand(t *testing.T) {
	fake := testutil.NewFakeRemote(t)
	fake.SetSections(testutil.FakeSection{ID: 3, Name: "Notes", Slug: "notes", IsLive: true})
	cfg := testConfig(t, fake)

	var out bytes.Buffer
	if err := Sections(context.Background(), "", &out, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"Notes"`) {
		t.Errorf("output = %s", out.String())
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
