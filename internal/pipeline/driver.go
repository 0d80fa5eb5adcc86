// Package pipeline runs the two-stage reimagining loop: for each work item the
// narrative is interpreted into an editing instruction, the instruction is
// applied to the source photo, and the edited image is stored.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fpang/reimagine/internal/assets"
	"github.com/fpang/reimagine/internal/filehandler"
	"github.com/fpang/reimagine/internal/imageresult"
	"github.com/fpang/reimagine/internal/metrics"
	"github.com/fpang/reimagine/internal/output"
	"github.com/fpang/reimagine/internal/worklist"
	"github.com/rs/zerolog/log"
)

// Interpreter produces an editing instruction from a prompt and the source image.
type Interpreter interface {
	Interpret(ctx context.Context, prompt string, img *filehandler.SourceImage) (string, error)
}

// Editor applies an instruction to the source image.
type Editor interface {
	EditImage(ctx context.Context, instruction string, img *filehandler.SourceImage) (imageresult.Result, error)
}

// Transcriber turns a spoken narrative file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Normalizer turns an editor result into image bytes.
type Normalizer interface {
	Normalize(ctx context.Context, r imageresult.Result) ([]byte, error)
}

// Driver wires the stages together. Interpreter, Editor, Normalizer and Sink
// are required; Transcriber only when an item carries audio.
type Driver struct {
	Interpreter Interpreter
	Editor      Editor
	Normalizer  Normalizer
	Sink        output.Sink
	Transcriber Transcriber

	// AssetsDir holds the source images named by work items.
	AssetsDir string
	// Template is the interpreter prompt; empty selects the embedded default.
	Template string
	// Stdout receives instructions and timing lines. Defaults to os.Stdout.
	Stdout io.Writer
	// Metrics receives one EMF record per item when non-nil.
	Metrics *metrics.Emitter
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// ItemTiming records the stage durations of one completed item.
type ItemTiming struct {
	Index      int
	Image      string
	Transcribe time.Duration
	Interpret  time.Duration
	Edit       time.Duration
	Both       time.Duration
}

// Summary describes a completed run.
type Summary struct {
	Items   []ItemTiming
	Written []string
	Total   time.Duration
}

// ItemError identifies the work item whose stage failed.
type ItemError struct {
	Index int
	Count int
	Image string
	Stage string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d/%d (%s) failed while %s: %v", e.Index, e.Count, e.Image, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Run processes items in order and stops at the first failure. The returned
// Summary covers the items completed before the failure.
func (d *Driver) Run(ctx context.Context, items []worklist.WorkItem) (*Summary, error) {
	stdout := d.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	template := d.Template
	if template == "" {
		template = assets.InterpreterPrompt
	}

	count := len(items)
	summary := &Summary{}
	runStart := now()

	for i, item := range items {
		idx := i + 1
		if err := ctx.Err(); err != nil {
			return summary, &ItemError{Index: idx, Count: count, Image: item.Image, Stage: "starting", Err: err}
		}

		timing, location, err := d.runItem(ctx, stdout, now, template, item)
		if err != nil {
			itemErr := err.(*ItemError)
			itemErr.Index, itemErr.Count = idx, count
			log.Error().Err(itemErr.Err).
				Int("item", idx).
				Str("image", item.Image).
				Str("stage", itemErr.Stage).
				Msg("Item failed, aborting remaining items")
			return summary, itemErr
		}
		timing.Index = idx

		fmt.Fprintf(stdout, "[%d/%d] Interpret: %s | Edit: %s | Both: %s\n",
			idx, count, FormatSeconds(timing.Interpret), FormatSeconds(timing.Edit), FormatSeconds(timing.Both))

		summary.Items = append(summary.Items, timing)
		summary.Written = append(summary.Written, location)
	}

	summary.Total = now().Sub(runStart)
	fmt.Fprintf(stdout, "Processed %d item(s) in %s total.\n", count, FormatSeconds(summary.Total))
	return summary, nil
}

// runItem carries one item through every stage. Errors are *ItemError with
// the stage set.
func (d *Driver) runItem(ctx context.Context, stdout io.Writer, now func() time.Time, template string, item worklist.WorkItem) (ItemTiming, string, error) {
	fail := func(stage string, err error) (ItemTiming, string, error) {
		return ItemTiming{}, "", &ItemError{Image: item.Image, Stage: stage, Err: err}
	}

	// Assets are checked before any remote call so a missing file costs nothing.
	img, err := filehandler.LoadSourceImage(filehandler.ResolvePath(d.AssetsDir, item.Image))
	if err != nil {
		return fail("loading source image", err)
	}

	narrative := item.Narrative
	var transcribe time.Duration
	if item.Audio != "" {
		audioPath := filehandler.ResolvePath(d.AssetsDir, item.Audio)
		if err := filehandler.CheckExists(audioPath); err != nil {
			return fail("loading audio", err)
		}
		if d.Transcriber == nil {
			return fail("transcribing", fmt.Errorf("no transcriber configured for %s", item.Audio))
		}
		transcribeStart := now()
		narrative, err = d.Transcriber.Transcribe(ctx, audioPath)
		if err != nil {
			return fail("transcribing", err)
		}
		transcribe = now().Sub(transcribeStart)
		log.Info().Str("audio", item.Audio).Str("narrative", narrative).Msg("Narrative transcribed")
	}

	prompt := assets.FormatPrompt(template, narrative)

	interpretStart := now()
	instruction, err := d.Interpreter.Interpret(ctx, prompt, img)
	if err != nil {
		return fail("interpreting", err)
	}
	interpretEnd := now()
	fmt.Fprintln(stdout, instruction)

	editStart := now()
	result, err := d.Editor.EditImage(ctx, instruction, img)
	if err != nil {
		return fail("editing", err)
	}
	editEnd := now()

	data, err := d.Normalizer.Normalize(ctx, result)
	if err != nil {
		return fail("normalizing", err)
	}

	location, err := d.Sink.Write(ctx, item.Image, data)
	if err != nil {
		return fail("writing", err)
	}

	timing := ItemTiming{
		Image:      item.Image,
		Transcribe: transcribe,
		Interpret:  interpretEnd.Sub(interpretStart),
		Edit:       editEnd.Sub(editStart),
		Both:       editEnd.Sub(interpretStart),
	}

	log.Info().
		Str("image", item.Image).
		Str("location", location).
		Int("bytes", len(data)).
		Str("result_kind", result.Kind().String()).
		Msg("Item complete")

	rec := d.Metrics.New()
	if item.Audio != "" {
		rec.Duration("TranscribeMs", timing.Transcribe)
	}
	rec.Dimension("Stage", "item").
		Duration("InterpretMs", timing.Interpret).
		Duration("EditMs", timing.Edit).
		Duration("BothMs", timing.Both).
		Metric("OutputBytes", float64(len(data)), metrics.UnitBytes).
		Property("image", item.Image).
		Flush()

	return timing, location, nil
}
