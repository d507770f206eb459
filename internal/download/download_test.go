package download

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/fitbench/fitbench/internal/models"
	"github.com/fitbench/fitbench/internal/pkg/errors"
)

type fakeHub struct {
	loginErr   error
	failShards map[string]bool
	downloads  []string
}

func (h *fakeHub) WhoAmI(context.Context) (*models.WhoAmI, error) {
	if h.loginErr != nil {
		return nil, h.loginErr
	}
	return &models.WhoAmI{Name: "tester"}, nil
}

func (h *fakeHub) DownloadFile(_ context.Context, _ models.RepoType, _, file, dest string, _ func(int64, int64)) (int64, error) {
	h.downloads = append(h.downloads, file)
	if h.failShards[file] {
		return 0, errors.DownloadError("connection reset", nil)
	}
	return 4, os.WriteFile(dest, []byte("PAR1"), 0644)
}

type fakeRunner struct {
	fail  map[string]bool
	calls [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args []string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	shard := args[slices.Index(args, "--url_list")+1]
	if r.fail[filepath.Base(shard)] {
		return errors.ConversionError("img2dataset failed: boom", nil)
	}
	return nil
}

func options(t *testing.T, profile string, n int) Options {
	t.Helper()
	p, err := LookupProfile(profile)
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		NumFiles:   n,
		Root:       t.TempDir(),
		Repo:       "laion/laion2B-en-aesthetic",
		Tool:       "img2dataset",
		Profile:    p,
		Conversion: ConversionOptions{ProcessesCount: 16, ThreadCount: 64},
	}
}

func TestShardFilename(t *testing.T) {
	want := "part-00007-cad4a140-cebd-46fa-b874-e8968f93e32e-c000.snappy.parquet"
	if got := ShardFilename(7); got != want {
		t.Errorf("ShardFilename(7) = %s", got)
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		profile   string
		output    string
		imageSize string
		wandb     bool
	}{
		{"sharded", filepath.Join("root", "data", "part_00003"), "384", true},
		{"incremental", filepath.Join("root", "data"), "512", false},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			p, err := LookupProfile(tt.profile)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.OutputFolder("root", 3); got != tt.output {
				t.Errorf("OutputFolder() = %s, want %s", got, tt.output)
			}

			args := p.ConversionArgs("shard.parquet", "out", ConversionOptions{ProcessesCount: 2, ThreadCount: 8})
			joined := strings.Join(args, " ")
			for _, want := range []string{
				"--url_list shard.parquet",
				"--output_folder out",
				"--processes_count 2",
				"--thread_count 8",
				"--image_size " + tt.imageSize,
				"--resize_mode keep_ratio",
				`--save_additional_columns ["similarity","hash","punsafe","pwatermark","aesthetic"]`,
			} {
				if !strings.Contains(joined, want) {
					t.Errorf("args missing %q: %s", want, joined)
				}
			}
			if got := strings.Contains(joined, "--enable_wandb True"); got != tt.wandb {
				t.Errorf("wandb = %v, want %v", got, tt.wandb)
			}
		})
	}

	if _, err := LookupProfile("nightly"); !errors.IsValidation(err) {
		t.Errorf("LookupProfile(nightly) error = %v, want validation", err)
	}
}

func TestRun_ProcessesEveryShard(t *testing.T) {
	hub := &fakeHub{}
	runner := &fakeRunner{}
	opts := options(t, "sharded", 3)

	summary, err := NewDownloader(hub, runner, opts, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != 3 || summary.Downloaded != 3 || summary.Err() != nil {
		t.Errorf("summary = %+v", summary)
	}
	if len(runner.calls) != 3 || runner.calls[0][0] != "img2dataset" {
		t.Errorf("runner calls = %v", runner.calls)
	}
	if _, err := os.Stat(filepath.Join(opts.Root, "data", "part_00002")); err != nil {
		t.Errorf("output folder not created: %v", err)
	}
}

func TestRun_IncrementalSkipsExistingShards(t *testing.T) {
	hub := &fakeHub{}
	runner := &fakeRunner{}
	opts := options(t, "incremental", 2)
	_ = os.WriteFile(filepath.Join(opts.Root, ShardFilename(0)), []byte("PAR1"), 0644)

	summary, err := NewDownloader(hub, runner, opts, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(hub.downloads) != 1 || hub.downloads[0] != ShardFilename(1) {
		t.Errorf("downloads = %v, want only shard 1", hub.downloads)
	}
	if summary.Skipped != 1 || summary.Processed != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_ShardedAlwaysDownloads(t *testing.T) {
	hub := &fakeHub{}
	opts := options(t, "sharded", 1)
	_ = os.WriteFile(filepath.Join(opts.Root, ShardFilename(0)), []byte("old"), 0644)

	if _, err := NewDownloader(hub, &fakeRunner{}, opts, nil).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(hub.downloads) != 1 {
		t.Errorf("downloads = %v, want the existing shard re-downloaded", hub.downloads)
	}
}

func TestRun_FailuresDoNotStopTheLoop(t *testing.T) {
	hub := &fakeHub{failShards: map[string]bool{ShardFilename(0): true}}
	runner := &fakeRunner{fail: map[string]bool{ShardFilename(1): true}}
	opts := options(t, "sharded", 3)

	summary, err := NewDownloader(hub, runner, opts, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != 1 || len(summary.Failures) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Failures[0].Index != 0 || summary.Failures[1].Index != 1 {
		t.Errorf("failures = %+v", summary.Failures)
	}
	if !strings.Contains(summary.Failures[1].Reason, "boom") {
		t.Errorf("reason = %q", summary.Failures[1].Reason)
	}
	if err := summary.Err(); errors.CodeOf(err) != errors.CodeDownload {
		t.Errorf("Summary.Err() = %v", err)
	}
	// a failed download is never converted
	if len(runner.calls) != 2 {
		t.Errorf("runner calls = %d, want 2", len(runner.calls))
	}
}

func TestRun_InvalidLoginAborts(t *testing.T) {
	hub := &fakeHub{loginErr: errors.ValidationError("invalid Hugging Face token")}

	_, err := NewDownloader(hub, &fakeRunner{}, options(t, "sharded", 2), nil).Run(context.Background())
	if !errors.IsValidation(err) {
		t.Fatalf("Run() error = %v, want validation", err)
	}
	if len(hub.downloads) != 0 {
		t.Error("no shard should be downloaded after a failed login")
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hub := &fakeHub{}
	_, err := NewDownloader(hub, &fakeRunner{}, options(t, "sharded", 2), nil).Run(ctx)
	if err != context.Canceled {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(hub.downloads) != 0 {
		t.Error("cancelled run should not download")
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	r := NewExecRunner(nil)
	ctx := context.Background()

	if err := r.Run(ctx, "sh", []string{"-c", "echo ok"}); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	err := r.Run(ctx, "sh", []string{"-c", "echo progress; echo first >&2; echo last >&2; exit 3"})
	if errors.CodeOf(err) != errors.CodeConversion {
		t.Fatalf("Run() error = %v, want conversion error", err)
	}
	if !strings.Contains(err.Error(), "last") {
		t.Errorf("error should carry stderr tail: %v", err)
	}

	if err := r.Run(ctx, "fitbench-no-such-tool", nil); errors.CodeOf(err) != errors.CodeConversion {
		t.Errorf("missing tool error = %v", err)
	}
}

func TestExecRunner_ProgressWithoutNewlines(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ~400KB of in-place progress updates on both streams, then a final line
	script := `i=0; while [ $i -lt 4000 ]; do printf "\r%0100d" $i; printf "\r%0100d" $i >&2; i=$((i+1)); done; echo done`
	if err := NewExecRunner(nil).Run(ctx, "sh", []string{"-c", script}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("command did not finish before the deadline")
	}
}

func TestExecRunner_OversizedLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// a single 2MB line on stderr followed by more output
	script := `head -c 2000000 /dev/zero | tr '\000' a >&2; echo after >&2; echo done`
	if err := NewExecRunner(nil).Run(ctx, "sh", []string{"-c", script}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLineTail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"newlines", "a\nb\nc\n", "b\nc"},
		{"carriage returns", "10%\r50%\r100%", "50%\n100%"},
		{"crlf", "a\r\nb\r\n", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tail := &lineTail{max: 2}
			tail.readFrom(strings.NewReader(tt.input))
			if got := tail.String(); got != tt.want {
				t.Errorf("tail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineTail_DrainsAfterOversizedLine(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", maxLineSize+10) + "\nend\n")
	tail := &lineTail{max: 2}
	tail.readFrom(r)
	if r.Len() != 0 {
		t.Errorf("%d bytes left unread", r.Len())
	}
}
