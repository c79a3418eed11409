package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vidstamp --folder <dir>",
		Short:        "Rename MP4 recordings after the time range burned into their frames",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	f := root.Flags()
	f.String("folder", "", "Folder with .mp4 files")
	f.String("api-key", "", "Vision model API key (default: .api_key file, then OPENAI_API_KEY)")
	f.Bool("use-unix-timestamp", false, "Use unix seconds instead of YYYY-MM-DD-HH:MM:SS in file names")
	f.Int("quadrant", 0, "Only send quadrant 1-4 of each frame (1 top-left, 2 top-right, 3 bottom-left, 4 bottom-right)")
	f.Bool("apply", false, "Rename files (default only reports the new names)")
	f.Int("workers", 0, "Videos processed in parallel (default VIDSTAMP_WORKERS or 1)")
	f.Int("max-inflight", 0, "Concurrent model requests (default VIDSTAMP_MAX_INFLIGHT or 2)")
	f.String("model", "", "Vision model (default VIDSTAMP_MODEL or gpt-4o)")
	f.String("placeholder", "", "Image sent in place of frames that cannot be decoded")
	f.String("log-level", "", "debug, info, warn or error (default VIDSTAMP_LOG_LEVEL or info)")
	f.Bool("progress", false, "Show a progress bar on stderr")

	// Hidden: Prometheus endpoint for long batches.
	f.String("metrics-addr", "", "Serve /metrics on this address")
	_ = f.MarkHidden("metrics-addr")

	return root
}
