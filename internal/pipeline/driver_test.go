package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/fpang/reimagine/internal/filehandler"
	"github.com/fpang/reimagine/internal/imageresult"
	"github.com/fpang/reimagine/internal/metrics"
	"github.com/fpang/reimagine/internal/output"
	"github.com/fpang/reimagine/internal/worklist"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\ngenerated")

type fakeInterpreter struct {
	instruction string
	err         error
	prompts     []string
}

func (f *fakeInterpreter) Interpret(_ context.Context, prompt string, _ *filehandler.SourceImage) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.instruction, f.err
}

type fakeEditor struct {
	result       func() imageresult.Result
	err          error
	instructions []string
	images       []string
}

func (f *fakeEditor) EditImage(_ context.Context, instruction string, img *filehandler.SourceImage) (imageresult.Result, error) {
	f.instructions = append(f.instructions, instruction)
	f.images = append(f.images, img.Name)
	if f.err != nil {
		return imageresult.Result{}, f.err
	}
	return f.result(), nil
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

// newTestDriver creates assets for images and returns a driver writing to outDir.
func newTestDriver(t *testing.T, images []string, interp *fakeInterpreter, editor *fakeEditor) (*Driver, *bytes.Buffer, string) {
	t.Helper()
	root := t.TempDir()
	assetsDir := filepath.Join(root, "assets")
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range images {
		if err := os.WriteFile(filepath.Join(assetsDir, name), []byte("\x89PNG\r\n\x1a\nsource"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	outDir := filepath.Join(root, "output")
	var stdout bytes.Buffer
	d := &Driver{
		Interpreter: interp,
		Editor:      editor,
		Normalizer:  imageresult.NewNormalizer(nil),
		Sink:        output.NewDirSink(outDir),
		AssetsDir:   assetsDir,
		Template:    "Story: {users_input}",
		Stdout:      &stdout,
		Now:         steppingClock(500 * time.Millisecond),
	}
	return d, &stdout, outDir
}

func bytesEditor() *fakeEditor {
	return &fakeEditor{result: func() imageresult.Result { return imageresult.FromReader(bytes.NewReader(pngBytes)) }}
}

func TestRunEndToEnd(t *testing.T) {
	interp := &fakeInterpreter{instruction: "add two friends next to the subject"}
	editor := bytesEditor()
	d, stdout, outDir := newTestDriver(t, []string{"a.png"}, interp, editor)

	summary, err := d.Run(context.Background(), []worklist.WorkItem{{Narrative: "I miss my friends", Image: "a.png"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "a.png"))
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !bytes.Equal(got, pngBytes) {
		t.Errorf("output bytes = %q, want %q", got, pngBytes)
	}

	if len(interp.prompts) != 1 || interp.prompts[0] != "Story: I miss my friends" {
		t.Errorf("prompts = %q", interp.prompts)
	}
	if len(editor.instructions) != 1 || editor.instructions[0] != "add two friends next to the subject" {
		t.Errorf("editor instructions = %q", editor.instructions)
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "add two friends next to the subject\n") {
		t.Errorf("instruction not printed first: %q", out)
	}
	timingLine := regexp.MustCompile(`(?m)^\[1/1\] [^:]+: \d+\.\ds \| [^:]+: \d+\.\ds \| [^:]+: \d+\.\ds$`)
	if !timingLine.MatchString(out) {
		t.Errorf("timing line not found in %q", out)
	}
	if !strings.Contains(out, "[1/1] Interpret: 0.5s | Edit: 0.5s | Both: 1.5s\n") {
		t.Errorf("unexpected timing values: %q", out)
	}
	if !strings.HasSuffix(out, "Processed 1 item(s) in 2.5s total.\n") {
		t.Errorf("unexpected total line: %q", out)
	}

	if len(summary.Items) != 1 || summary.Items[0].Both != 1500*time.Millisecond {
		t.Errorf("summary items = %+v", summary.Items)
	}
	if len(summary.Written) != 1 || summary.Written[0] != filepath.Join(outDir, "a.png") {
		t.Errorf("summary written = %v", summary.Written)
	}
}

func TestRunTruncatesToShorterList(t *testing.T) {
	images := []string{"1.png", "2.png", "3.png", "4.png", "5.png"}
	interp := &fakeInterpreter{instruction: "brighten"}
	editor := bytesEditor()
	d, stdout, outDir := newTestDriver(t, images, interp, editor)

	items := worklist.Zip([]string{"one", "two", "three"}, images)
	summary, err := d.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Items) != 3 {
		t.Fatalf("processed %d items, want 3", len(summary.Items))
	}
	if got := strings.Join(editor.images, ","); got != "1.png,2.png,3.png" {
		t.Errorf("edited images = %s", got)
	}
	if _, err := os.Stat(filepath.Join(outDir, "4.png")); !os.IsNotExist(err) {
		t.Error("4.png should not have been produced")
	}
	if !strings.Contains(stdout.String(), "[3/3] ") || !strings.Contains(stdout.String(), "Processed 3 item(s)") {
		t.Errorf("unexpected output: %q", stdout.String())
	}
}

func TestRunMissingAssetMakesNoRemoteCalls(t *testing.T) {
	interp := &fakeInterpreter{instruction: "x"}
	editor := bytesEditor()
	d, stdout, _ := newTestDriver(t, nil, interp, editor)

	_, err := d.Run(context.Background(), []worklist.WorkItem{{Narrative: "story", Image: "missing.png"}})
	if err == nil {
		t.Fatal("expected error for missing asset")
	}
	if !filehandler.IsMissingAsset(err) {
		t.Errorf("expected MissingAssetError, got %v", err)
	}
	if !strings.Contains(err.Error(), "image not found") {
		t.Errorf("error should say image not found: %v", err)
	}
	if len(interp.prompts) != 0 || len(editor.instructions) != 0 {
		t.Error("no remote calls should be made for a missing asset")
	}
	if strings.Contains(stdout.String(), "Processed") {
		t.Error("total line should not be printed after a failure")
	}
}

func TestRunFailFast(t *testing.T) {
	interp := &fakeInterpreter{instruction: "x"}
	calls := 0
	editor := &fakeEditor{result: func() imageresult.Result {
		calls++
		if calls == 2 {
			return imageresult.FromSequence()
		}
		return imageresult.FromBytes(pngBytes)
	}}
	images := []string{"1.png", "2.png", "3.png"}
	d, _, outDir := newTestDriver(t, images, interp, editor)

	summary, err := d.Run(context.Background(), worklist.Zip([]string{"a", "b", "c"}, images))
	if !errors.Is(err, imageresult.ErrNoBytes) {
		t.Fatalf("expected ErrNoBytes, got %v", err)
	}

	var itemErr *ItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("expected *ItemError, got %T", err)
	}
	if itemErr.Index != 2 || itemErr.Count != 3 || itemErr.Image != "2.png" || itemErr.Stage != "normalizing" {
		t.Errorf("unexpected ItemError: %+v", itemErr)
	}
	if len(editor.instructions) != 2 {
		t.Errorf("editor called %d times, want 2", len(editor.instructions))
	}
	if len(summary.Items) != 1 {
		t.Errorf("summary should hold the one completed item, got %d", len(summary.Items))
	}
	if _, err := os.Stat(filepath.Join(outDir, "2.png")); !os.IsNotExist(err) {
		t.Error("no file should be written for the failed item")
	}
}

func TestRunInterpreterErrorSkipsEditor(t *testing.T) {
	interp := &fakeInterpreter{err: errors.New("upstream down")}
	editor := bytesEditor()
	d, _, _ := newTestDriver(t, []string{"a.png"}, interp, editor)

	_, err := d.Run(context.Background(), []worklist.WorkItem{{Narrative: "n", Image: "a.png"}})
	if err == nil || !strings.Contains(err.Error(), "interpreting") {
		t.Fatalf("expected interpreting failure, got %v", err)
	}
	if len(editor.instructions) != 0 {
		t.Error("editor must not run after interpreter failure")
	}
}

func TestRunCanceledContext(t *testing.T) {
	interp := &fakeInterpreter{instruction: "x"}
	d, _, _ := newTestDriver(t, []string{"a.png"}, interp, bytesEditor())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx, []worklist.WorkItem{{Narrative: "n", Image: "a.png"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(interp.prompts) != 0 {
		t.Error("no work should start on a canceled context")
	}
}

func TestRunEmitsMetrics(t *testing.T) {
	interp := &fakeInterpreter{instruction: "x"}
	d, _, _ := newTestDriver(t, []string{"a.png"}, interp, bytesEditor())
	var emf bytes.Buffer
	d.Metrics = metrics.NewEmitter(metrics.Namespace, &emf)

	if _, err := d.Run(context.Background(), []worklist.WorkItem{{Narrative: "n", Image: "a.png"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{`"InterpretMs":500`, `"EditMs":500`, `"image":"a.png"`} {
		if !strings.Contains(emf.String(), want) {
			t.Errorf("metrics missing %s: %s", want, emf.String())
		}
	}
}

type fakeTranscriber struct {
	text  string
	paths []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	return f.text, nil
}

func TestRunTranscribesSpokenNarrative(t *testing.T) {
	interp := &fakeInterpreter{instruction: "add two friends next to the subject"}
	d, stdout, outDir := newTestDriver(t, []string{"a.png", "story.m4a"}, interp, bytesEditor())
	tr := &fakeTranscriber{text: "I miss my friends"}
	d.Transcriber = tr

	summary, err := d.Run(context.Background(), []worklist.WorkItem{{Image: "a.png", Audio: "story.m4a"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tr.paths) != 1 || filepath.Base(tr.paths[0]) != "story.m4a" {
		t.Errorf("transcribed paths = %v", tr.paths)
	}
	if len(interp.prompts) != 1 || interp.prompts[0] != "Story: I miss my friends" {
		t.Errorf("prompts = %q", interp.prompts)
	}
	if summary.Items[0].Transcribe != 500*time.Millisecond {
		t.Errorf("Transcribe timing = %v", summary.Items[0].Transcribe)
	}
	// Transcription sits outside the Interpret/Edit/Both figures.
	if !strings.Contains(stdout.String(), "[1/1] Interpret: 0.5s | Edit: 0.5s | Both: 1.5s\n") {
		t.Errorf("unexpected timing line: %q", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(outDir, "a.png")); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestRunMissingAudioMakesNoRemoteCalls(t *testing.T) {
	interp := &fakeInterpreter{instruction: "x"}
	d, _, _ := newTestDriver(t, []string{"a.png"}, interp, bytesEditor())
	tr := &fakeTranscriber{text: "t"}
	d.Transcriber = tr

	_, err := d.Run(context.Background(), []worklist.WorkItem{{Image: "a.png", Audio: "gone.wav"}})
	if !filehandler.IsMissingAsset(err) {
		t.Fatalf("expected MissingAssetError, got %v", err)
	}
	if len(tr.paths) != 0 || len(interp.prompts) != 0 {
		t.Error("no remote calls should be made for missing audio")
	}
}

func TestRunAudioWithoutTranscriber(t *testing.T) {
	interp := &fakeInterpreter{instruction: "x"}
	d, _, _ := newTestDriver(t, []string{"a.png", "story.wav"}, interp, bytesEditor())

	_, err := d.Run(context.Background(), []worklist.WorkItem{{Image: "a.png", Audio: "story.wav"}})
	var itemErr *ItemError
	if !errors.As(err, &itemErr) || itemErr.Stage != "transcribing" {
		t.Fatalf("expected transcribing failure, got %v", err)
	}
	if len(interp.prompts) != 0 {
		t.Error("interpreter must not run without a narrative")
	}
}
