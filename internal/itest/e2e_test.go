//go:build integration

package itest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forPelevin/vidstamp/internal/pipeline"
	"github.com/forPelevin/vidstamp/internal/types"
)

const fixtureFPS = 10

func makeFixture(t *testing.T, path string) {
	t.Helper()
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=size=320x240:rate=%d:duration=2", fixtureFPS),
		"-c:v", "mpeg4",
		"-pix_fmt", "yuv420p",
		path,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}

func TestE2E(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		makeFixture(t, filepath.Join(dir, name))
	}
	if err := os.WriteFile(filepath.Join(dir, "d.mp4"), []byte("not a video"), 0o644); err != nil {
		t.Fatalf("write fake mp4: %v", err)
	}

	replies := []string{
		`{"timestamps": ["2024-05-01 10:00:00", "INVALID", "INVALID"]}`,
		"```json\n{\"timestamps\": [\"INVALID\", \"2024-05-01 12:00:01\", \"INVALID\"]}\n```",
		`{"timestamps": ["INVALID", "INVALID", "INVALID"]}`,
	}
	var calls atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if n := strings.Count(string(body), "data:image/jpeg;base64,"); n != types.SlotCount {
			t.Errorf("request carries %d images, want %d", n, types.SlotCount)
		}
		i := int(calls.Add(1)) - 1
		if i >= len(replies) {
			t.Errorf("unexpected model call #%d", i+1)
			i = len(replies) - 1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": replies[i]}},
			},
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := pipeline.Config{
		Folder:       dir,
		Quadrant:     1,
		Apply:        true,
		Workers:      1,
		MaxInFlight:  1,
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		APIKey:       "sk-itest",
		BaseURL:      srv.URL,
		AllowedHosts: []string{"127.0.0.1"},
		HTTPClient:   srv.Client(),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	sum, err := pipeline.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	want := types.Summary{Total: 4, Renamed: 2, Skipped: 2}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("model calls = %d, want 3", got)
	}

	frames, err := probeFrameCount(filepath.Join(dir, "c.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	d := time.Duration(frames) * time.Second / fixtureFPS

	expect := func(start string) string {
		t.Helper()
		s, err := time.ParseInLocation("2006-01-02 15:04:05", start, time.Local)
		if err != nil {
			t.Fatal(err)
		}
		const layout = "2006-01-02-15:04:05"
		return s.Format(layout) + "__" + s.Add(d).Format(layout) + ".mp4"
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, e := range entries {
		got[e.Name()] = true
	}
	for _, name := range []string{
		expect("2024-05-01 10:00:00"),
		expect("2024-05-01 12:00:00"),
		"c.mp4",
		"d.mp4",
	} {
		if !got[name] {
			t.Fatalf("missing %s in %v", name, got)
		}
	}
	if got["a.mp4"] || got["b.mp4"] {
		t.Fatalf("originals still present: %v", got)
	}
}

func TestE2E_DryRunLeavesFiles(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	makeFixture(t, filepath.Join(dir, "cam.mp4"))

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"timestamps": ["2024-05-01 10:00:00", "2024-05-01 10:00:01", "2024-05-01 10:00:02"]}`}},
			},
		})
	}))
	defer srv.Close()

	sum, err := pipeline.Run(context.Background(), pipeline.Config{
		Folder:       dir,
		Workers:      2,
		MaxInFlight:  1,
		APIKey:       "sk-itest",
		BaseURL:      srv.URL,
		AllowedHosts: []string{"127.0.0.1"},
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if sum.DryRun != 1 || sum.Renamed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if _, err := os.Stat(filepath.Join(dir, "cam.mp4")); err != nil {
		t.Fatalf("dry run touched the file: %v", err)
	}
}
