package publisher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/testutil"
)

type stubUploader struct {
	calls int
	names []string
	fail  map[string]bool
}

func (s *stubUploader) UploadImage(_ context.Context, _ string, data []byte, filename, mime string) substack.UploadResult {
	s.calls++
	s.names = append(s.names, filename)
	if s.fail[mime] {
		return substack.UploadResult{Error: "rejected"}
	}
	return substack.UploadResult{Success: true, URL: "https://cdn.test/" + strings.TrimPrefix(mime, "image/")}
}

func TestParseImageRefs(t *testing.T) {
	md := "![a](img/one.png) text ![b](https://x.test/two.png \"T\") ![](data:image/png;base64,AA) ![c](three.jpg \"Cap\")"
	refs := ParseImageRefs(md)
	require.Len(t, refs, 4)

	assert.Equal(t, ImageRef{Match: "![a](img/one.png)", Alt: "a", Path: "img/one.png", Local: true}, refs[0])
	assert.False(t, refs[1].Local)
	assert.Equal(t, "T", refs[1].Title)
	assert.False(t, refs[2].Local)
	assert.True(t, refs[3].Local)
	assert.Equal(t, "Cap", refs[3].Title)
}

func TestResolveImagePath(t *testing.T) {
	cases := []struct{ ref, dir, want string }{
		{"a.png", "posts", "posts/a.png"},
		{"./img/a.png", "posts/2024", "posts/2024/img/a.png"},
		{"../assets/a.png", "posts/2024", "posts/assets/a.png"},
		{"../../../a.png", "posts", "a.png"},
		{"/assets/a.png", "posts", "assets/a.png"},
		{`img\a.png`, "", "img/a.png"},
		{"my%20pic.png", "posts", "posts/my pic.png"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ResolveImagePath(c.ref, c.dir), "ref %q in %q", c.ref, c.dir)
	}
}

func TestProcessReplacesUploaded(t *testing.T) {
	v := testutil.NewVault(t, map[string]string{
		"posts/img/a.png": string(testutil.PNG),
	})
	up := &stubUploader{}
	ip := NewImageProcessor(v, up, 0, nil)

	md := "Intro\n\n![Alt](img/a.png \"Title\")\n\nAgain ![x](./img/a.png) and ![remote](https://x.test/r.png)"
	res, err := ip.Process(context.Background(), "pub", md, "posts")
	require.NoError(t, err)

	assert.Empty(t, res.Errors)
	require.Len(t, res.Uploaded, 2)
	assert.Equal(t, "img/a.png", res.Uploaded[0].OriginalPath)
	assert.Equal(t, "https://cdn.test/png", res.Uploaded[0].URL)
	assert.Equal(t, 1, up.calls, "same file uploads once per run")
	assert.Equal(t, []string{"a.png"}, up.names)

	assert.Contains(t, res.Markdown, `![Alt](https://cdn.test/png "Title")`)
	assert.Contains(t, res.Markdown, "![x](https://cdn.test/png)")
	assert.Contains(t, res.Markdown, "![remote](https://x.test/r.png)")
}

func TestProcessPartialFailure(t *testing.T) {
	v := testutil.NewVault(t, map[string]string{
		"ok.png":   string(testutil.PNG),
		"bad.gif":  "GIF89a....",
		"fake.png": "not an image at all",
		"doc.txt":  "text",
		"huge.png": string(testutil.PNG) + strings.Repeat("x", 64),
	})
	up := &stubUploader{fail: map[string]bool{"image/gif": true}}
	ip := NewImageProcessor(v, up, 32, nil)

	md := "![1](ok.png) ![2](missing.png) ![3](bad.gif) ![4](fake.png) ![5](doc.txt) ![6](huge.png)"
	res, err := ip.Process(context.Background(), "pub", md, "")
	require.NoError(t, err)

	require.Len(t, res.Uploaded, 1)
	require.Len(t, res.Errors, 5)

	byPath := map[string]string{}
	for _, e := range res.Errors {
		byPath[e.Path] = e.Error
	}
	assert.Contains(t, byPath["missing.png"], "file not found")
	assert.Equal(t, "rejected", byPath["bad.gif"])
	assert.Contains(t, byPath["fake.png"], "does not match extension")
	assert.Contains(t, byPath["doc.txt"], "unsupported format")
	assert.Contains(t, byPath["huge.png"], "file too large")

	assert.True(t, strings.HasPrefix(res.Markdown, "![1](https://cdn.test/png)"))
	assert.Contains(t, res.Markdown, "![2](missing.png)")
	assert.Contains(t, res.Markdown, "![3](bad.gif)")
}

func TestProcessCancelled(t *testing.T) {
	v := testutil.NewVault(t, map[string]string{"a.png": string(testutil.PNG)})
	ip := NewImageProcessor(v, &stubUploader{}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ip.Process(ctx, "pub", "![a](a.png)", "")
	assert.ErrorIs(t, err, context.Canceled)
}
