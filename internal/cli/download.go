package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/glorpus-work/crxget/internal/logger"
	"github.com/glorpus-work/crxget/pkg/config"
	"github.com/glorpus-work/crxget/pkg/extension"
	"github.com/glorpus-work/crxget/pkg/orchestrator"
	"github.com/spf13/cobra"
)

type downloadOptions struct {
	fromFile   string
	output     string
	outputDir  string
	extractDir string
	label      string
	keepCrx    bool
	noExtract  bool
	noProgress bool
	maxWorkers int
}

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	var opts downloadOptions

	cmd := &cobra.Command{
		Use:   "download [EXTENSION_ID...]",
		Short: "Download Chrome extensions",
		Long: `Download one or more Chrome extensions from the Chrome Web Store, convert
each CRX container into a ZIP archive and unpack it.

A single ID is downloaded on its own and any failure ends with a nonzero exit code.
Several IDs, or a list file, are downloaded concurrently; failures are reported
per extension and do not affect the others.`,
		Example: `  crxget download gppongmhjkpfnbhagpmjfkannfbllamg -o wappalyzer.zip
  crxget download gppongmhjkpfnbhagpmjfkannfbllamg nkeimhogjdpnpccoofpliimaahmaaome -w 4
  crxget download --from-file extensions.txt --no-extract`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.fromFile, "from-file", "", "Read extension IDs from a file (one per line, # for comments)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Archive file name for a single extension (.zip is added)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "d", "", "Directory for archives (defaults to config)")
	cmd.Flags().StringVar(&opts.extractDir, "extract-dir", "", "Directory for unpacked extensions (defaults to config)")
	cmd.Flags().StringVar(&opts.label, "label", "", "Name prefix for the archive and extraction directory of a single extension")
	cmd.Flags().BoolVar(&opts.keepCrx, "keep-crx", false, "Keep the downloaded CRX file")
	cmd.Flags().BoolVar(&opts.noExtract, "no-extract", false, "Do not unpack the archive")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().IntVarP(&opts.maxWorkers, "max-workers", "w", 0, "Number of concurrent downloads (0 = config)")

	return cmd
}

func runDownload(ctx context.Context, out io.Writer, args []string, opts downloadOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyDownloadOverrides(cfg, opts); err != nil {
		return err
	}

	ids := append([]string{}, args...)
	if opts.fromFile != "" {
		fileIDs, err := readIDFile(opts.fromFile)
		if err != nil {
			return err
		}
		if len(fileIDs) == 0 {
			logger.Warn("No extension IDs found", logger.Fields{"file": opts.fromFile})
		} else {
			logger.Info("Read extension list", logger.Fields{"file": opts.fromFile, "count": len(fileIDs)})
		}
		ids = append(ids, fileIDs...)
	}

	batch := opts.fromFile != "" || len(ids) > 1
	if len(ids) == 0 && !batch {
		return fmt.Errorf("requires at least one extension ID or --from-file")
	}
	if batch && opts.output != "" {
		return fmt.Errorf("--output can only be used with a single extension ID")
	}
	if cfg.Security.ValidateExtensionID {
		if err := extension.ValidateIDs(ids); err != nil {
			return err
		}
	}

	var hooks orchestrator.Hooks
	if !opts.noProgress && !quiet() {
		hooks = newProgressPrinter(os.Stderr, len(ids)).Hooks()
	}

	orch, err := newOrchestrator(ctx, cfg, hooks)
	if err != nil {
		return err
	}

	if !batch {
		return downloadSingle(ctx, out, orch, ids[0], opts)
	}
	return downloadBatch(ctx, out, orch, ids, opts)
}

func applyDownloadOverrides(cfg *config.Config, opts downloadOptions) error {
	if opts.outputDir != "" {
		cfg.Output.DefaultDirectory = opts.outputDir
	}
	if opts.extractDir != "" {
		cfg.Output.ExtractDirectory = opts.extractDir
	}
	if opts.maxWorkers != 0 {
		cfg.Performance.MaxConcurrentDownloads = opts.maxWorkers
	}
	if opts.keepCrx {
		cfg.Output.AutoCleanup = false
	}
	if opts.noExtract {
		cfg.Output.AutoExtract = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid command line options: %w", err)
	}
	return nil
}

func downloadSingle(ctx context.Context, out io.Writer, orch *orchestrator.Orchestrator, id string, opts downloadOptions) error {
	res, err := orch.Acquire(ctx, id, orchestrator.AcquireOptions{
		Filename:      opts.output,
		Label:         opts.label,
		KeepContainer: opts.keepCrx,
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", id, err)
	}

	if res.Status == orchestrator.StatusUnavailable {
		_, _ = fmt.Fprintf(out, "Extension %s is not available for download\n", id)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Extension downloaded to: %s (%s)\n", res.ArchivePath, humanize.IBytes(uint64(res.ArchiveBytes)))
	if res.ExtractDir != "" {
		_, _ = fmt.Fprintf(out, "Extracted %d files to: %s\n", res.Files, res.ExtractDir)
	}
	if res.ContainerPath != "" {
		_, _ = fmt.Fprintf(out, "Container kept at: %s\n", res.ContainerPath)
	}
	return nil
}

func downloadBatch(ctx context.Context, out io.Writer, orch *orchestrator.Orchestrator, ids []string, opts downloadOptions) error {
	br, err := orch.AcquireBatch(ctx, ids, orchestrator.BatchOptions{KeepContainer: opts.keepCrx})
	if err != nil {
		return err
	}

	printBatchSummary(out, br)

	if ctx.Err() != nil {
		return fmt.Errorf("download interrupted: %w", ctx.Err())
	}
	return nil
}

func printBatchSummary(out io.Writer, br *orchestrator.BatchResult) {
	var total int64
	for _, r := range br.Results {
		total += r.ArchiveBytes
	}

	_, _ = fmt.Fprintf(out, "Batch download completed: %d of %d succeeded, %d unavailable, %d failed (%s)\n",
		br.Succeeded(), len(br.IDs), br.Unavailable(), br.Failed(), humanize.IBytes(uint64(total)))

	if failed := br.FailedIDs(); len(failed) > 0 {
		_, _ = fmt.Fprintln(out, "Failed extensions:")
		for _, id := range failed {
			r := br.Results[id]
			_, _ = fmt.Fprintf(out, "  %s [%s]: %v\n", id, r.Kind, r.Err)
		}
	}
}

// readIDFile reads newline-delimited extension IDs, skipping blank and comment lines.
func readIDFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extension list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseIDList(f)
}

func parseIDList(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extension list: %w", err)
	}
	return ids, nil
}
