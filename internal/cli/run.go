package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/harun/dispatch/internal/tracing"
	"github.com/harun/dispatch/pkg/approval"
	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
)

var (
	runApproveAll bool
	runQuiet      bool
)

var runCmd = &cobra.Command{
	Use:   "run <requests.json>",
	Short: "Run a batch of tool calls from a JSON file",
	Long: `Run a batch of tool calls described by a JSON file and print the results
in request order. The file holds an array of requests:

  [
    {"id": "c1", "tool": "clock", "args": {}},
    {"tool": "sleep", "args": {"seconds": 2}}
  ]

Missing ids are generated. Calls that need approval are prompted on the
terminal unless --approve-all is set or the configured approval mode
decides for you. Ctrl-C cancels the calls still in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runApproveAll, "approve-all", false, "approve every call without prompting")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress live output chunks")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	appLogger, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	if cfg.Tracing.Enabled {
		if err := tracing.Init(tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		}); err != nil {
			appLogger.Warn().Err(err).Msg("Tracing disabled")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.Shutdown(shutdownCtx)
			}()
		}
	}

	requests, err := readRequestsFile(args[0])
	if err != nil {
		return err
	}

	mode := cfg.Approval.Mode
	if runApproveAll {
		mode = "auto-approve"
	}
	handler := approvalHandlerFor(mode, cmd.InOrStdin(), cmd.OutOrStdout())

	sched, _, err := buildEngine(cfg, handler)
	if err != nil {
		return err
	}
	defer sched.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, cancelling remaining calls...\n", sig)
			sched.CancelAll("interrupted by " + sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := []scheduler.RunOption{}
	if !runQuiet {
		opts = append(opts, scheduler.WithObserver(&chunkPrinter{out: cmd.OutOrStdout()}))
	}

	result, err := sched.RunBatch(ctx, requests, opts...)
	if err != nil {
		return fmt.Errorf("batch rejected: %w", err)
	}

	printBatchResult(cmd.OutOrStdout(), result)

	if result.Failed() {
		cmd.SilenceUsage = true
		return fmt.Errorf("%d of %d calls failed", result.Counts()[toolcall.StateError], len(result.Results))
	}
	return nil
}

// readRequestsFile parses a JSON array of tool-call requests and fills in
// any missing ids so the batch accepts them.
func readRequestsFile(path string) ([]toolcall.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requests file: %w", err)
	}

	var requests []toolcall.Request
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, fmt.Errorf("failed to parse requests file %s: %w", path, err)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("requests file %s holds no requests", path)
	}

	for i := range requests {
		if requests[i].ID != "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate call ID: %w", err)
		}
		requests[i].ID = id
	}
	return requests, nil
}

// approvalHandlerFor maps a configured approval mode to a handler. Unknown
// modes fall back to prompting, the safe default.
func approvalHandlerFor(mode string, in io.Reader, out io.Writer) approval.Handler {
	switch mode {
	case "auto-approve":
		return approval.AutoApprove{}
	case "deny-all":
		return approval.DenyAll{}
	default:
		return approval.NewCLIHandler(in, out)
	}
}

// chunkPrinter streams live output fragments to the terminal as calls run.
type chunkPrinter struct {
	out io.Writer
}

func (p *chunkPrinter) OnStateChange(change scheduler.StateChange) {}

func (p *chunkPrinter) OnOutput(chunk scheduler.OutputChunk) {
	fmt.Fprintf(p.out, "  [%s] %s\n", chunk.Tool, chunk.Chunk)
}

func (p *chunkPrinter) OnBatchComplete(result scheduler.BatchResult) {}

func printBatchResult(out io.Writer, result *scheduler.BatchResult) {
	counts := result.Counts()
	fmt.Fprintf(out, "\nBatch %s finished in %s: %d succeeded, %d failed, %d cancelled\n\n",
		result.BatchID,
		result.Duration().Round(time.Millisecond),
		counts[toolcall.StateSuccess],
		counts[toolcall.StateError],
		counts[toolcall.StateCancelled],
	)

	for _, res := range result.Results {
		fmt.Fprintf(out, "  %s %-14s %-10s %s\n", stateMark(res.State), res.Tool, res.State, resultDetail(res))
	}
}

func stateMark(state toolcall.State) string {
	switch state {
	case toolcall.StateSuccess:
		return "ok "
	case toolcall.StateError:
		return "ERR"
	default:
		return " - "
	}
}

// resultDetail renders the payload or error of a finished call on one line.
func resultDetail(res toolcall.Result) string {
	if res.Error != nil {
		return fmt.Sprintf("%s: %s", res.Error.Kind, res.Error.Message)
	}
	if res.Payload == nil {
		return ""
	}
	data, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Sprintf("%v", res.Payload)
	}
	if len(data) > 120 {
		data = append(data[:117], []byte("...")...)
	}
	return string(data)
}
