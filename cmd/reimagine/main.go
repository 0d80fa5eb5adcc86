package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/reimagine/internal/auth"
	"github.com/fpang/reimagine/internal/cli"
	"github.com/fpang/reimagine/internal/imageresult"
	"github.com/fpang/reimagine/internal/logging"
	"github.com/fpang/reimagine/internal/metrics"
	"github.com/fpang/reimagine/internal/output"
	"github.com/fpang/reimagine/internal/pipeline"
	"github.com/fpang/reimagine/internal/s3util"
	"github.com/fpang/reimagine/internal/worklist"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	manifestFlag    string
	assetsFlag      string
	outputFlag      string
	interpreterFlag string
	chatModelFlag   string
	editModelFlag   string
	promptFileFlag  string
	s3BucketFlag    string
	s3PrefixFlag    string
	presignFlag     time.Duration
	metricsFlag     bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "reimagine",
	Short: "Reimagine photos from the stories behind them",
	Long: `Reimagine pairs each personal story with a photo, asks a multimodal model
for a short editing instruction that reflects the story, and applies that
instruction to the photo with an image-editing model. Edited images are
written to the output directory under the source image's filename.

Items run one at a time and the run stops at the first failure. A manifest
item may give an audio file instead of narrative text; it is transcribed with
OpenAI before the item runs.

Credentials:
  OPENAI_API_KEY       interpreter (default) and audio transcription, or ~/.reimagine/openai.gpg
  GEMINI_API_KEY       interpreter with --interpreter gemini, or ~/.reimagine/gemini.gpg
  REPLICATE_API_TOKEN  editor, or ~/.reimagine/replicate.gpg

Examples:
  reimagine
  reimagine -f stories.yaml -a ./photos -o ./edited
  reimagine --interpreter gemini --edit-model black-forest-labs/flux-kontext-max
  reimagine --s3-bucket my-bucket --s3-prefix runs --metrics`,
	Version: version,
	Run:     runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&manifestFlag, "manifest", "f", "", "YAML/JSON work list (default: built-in list)")
	rootCmd.Flags().StringVarP(&assetsFlag, "assets", "a", "assets", "Directory containing source images")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "output", "Directory for edited images")
	rootCmd.Flags().StringVar(&interpreterFlag, "interpreter", cli.InterpreterOpenAI, "Narrative interpreter: openai or gemini")
	rootCmd.Flags().StringVar(&chatModelFlag, "chat-model", "", "Interpreter model (default depends on --interpreter)")
	rootCmd.Flags().StringVar(&editModelFlag, "edit-model", "", "Replicate editing model, owner/name or owner/name:version")
	rootCmd.Flags().StringVar(&promptFileFlag, "prompt-file", "", "Interpreter prompt template containing {users_input}")
	rootCmd.Flags().StringVar(&s3BucketFlag, "s3-bucket", "", "Also upload edited images to this S3 bucket")
	rootCmd.Flags().StringVar(&s3PrefixFlag, "s3-prefix", "reimagine", "Key prefix for S3 uploads")
	rootCmd.Flags().DurationVar(&presignFlag, "presign", 0, "Log pre-signed GET URLs valid for this long instead of s3:// locations")
	rootCmd.Flags().BoolVar(&metricsFlag, "metrics", false, "Emit per-item CloudWatch EMF metrics to stdout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	initStart := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items := loadWorkItems()
	assetsDir := cli.ValidateAndResolveDirectory(assetsFlag)

	template, err := cli.LoadPromptTemplate(promptFileFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid prompt template")
	}

	// Credentials are resolved before any client is constructed.
	service, err := cli.InterpreterService(interpreterFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --interpreter")
	}
	creds, err := auth.Resolve(service)
	if err != nil {
		cli.HandleValidationError(err)
	}

	interpreter, err := cli.InitInterpreter(ctx, interpreterFlag, chatModelFlag, creds.InterpreterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize interpreter")
	}
	editor := cli.InitEditor(creds.EditorToken, editModelFlag)

	var transcriber pipeline.Transcriber
	if worklist.NeedsTranscription(items) {
		t, err := cli.InitTranscriber(interpreter)
		if err != nil {
			cli.HandleValidationError(err)
		}
		transcriber = t
	}

	runID := uuid.New().String()
	sink := buildSink(ctx, runID)

	var emitter *metrics.Emitter
	if metricsFlag {
		emitter = metrics.NewEmitter(metrics.Namespace, os.Stdout)
	}

	logging.NewStartupLogger("reimagine").
		RunID(runID).
		Version(version).
		Items(len(items)).
		Model("interpreter", interpreter.Model()).
		Model("editor", editor.Model()).
		Path("assets", assetsDir).
		Path("output", outputFlag).
		Feature("s3", s3BucketFlag != "").
		Feature("metrics", metricsFlag).
		Feature("customPrompt", promptFileFlag != "").
		Feature("transcription", transcriber != nil).
		Config("outputFormat", "png").
		InitDuration(time.Since(initStart)).
		Log()

	driver := &pipeline.Driver{
		Interpreter: interpreter,
		Editor:      editor,
		Normalizer:  imageresult.NewNormalizer(imageresult.NewHTTPFetcher(&http.Client{Timeout: 2 * time.Minute})),
		Sink:        sink,
		Transcriber: transcriber,
		AssetsDir:   assetsDir,
		Template:    template,
		Stdout:      os.Stdout,
		Metrics:     emitter,
	}

	summary, err := driver.Run(ctx, items)
	if err != nil {
		cli.HandleRunError(err)
	}

	log.Info().
		Int("items", len(summary.Items)).
		Str("elapsed", cli.FormatDurationShort(summary.Total)).
		Msg("Run complete")
}

// loadWorkItems reads --manifest or falls back to the built-in list.
func loadWorkItems() []worklist.WorkItem {
	if manifestFlag == "" {
		return worklist.Default()
	}
	items, err := worklist.Load(manifestFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", manifestFlag).Msg("Failed to load manifest")
	}
	return items
}

// buildSink returns the local directory sink, mirrored to S3 when a bucket
// is configured.
func buildSink(ctx context.Context, runID string) output.Sink {
	dirSink := output.NewDirSink(outputFlag)
	if s3BucketFlag == "" {
		return dirSink
	}

	clients, err := s3util.InitS3(ctx, s3BucketFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3")
	}

	s3Sink := &output.S3Sink{
		Client:        clients.Client,
		Presigner:     clients.Presigner,
		Bucket:        clients.Bucket,
		Prefix:        s3PrefixFlag,
		RunID:         runID,
		PresignExpiry: presignFlag,
	}
	log.Info().Str("bucket", s3BucketFlag).Str("prefix", s3PrefixFlag).Str("runID", runID).Msg("S3 mirror enabled")
	return output.MultiSink{dirSink, s3Sink}
}
