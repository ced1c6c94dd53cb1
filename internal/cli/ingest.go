package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triage/internal/adapter/fs"
	"triage/internal/usecase"
)

var ingestArchive bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Classify every ticket file in an inbox directory",
	Long: `Read ticket files from an inbox directory and classify them with the
configured concurrency. Plain files hold one ticket each; .jsonl files hold
one {"text": ...} object per line. A FinOps report of cache hits versus LLM
calls is printed at the end.

Examples:
  triage ingest ./inbox
  triage ingest ./inbox --archive   # move ingested files to inbox/processed/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestArchive, "archive", false, "move ingested files into processed/ under the inbox")
}

type inboxBatch struct {
	file  fs.InboxFile
	texts []string
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	inbox := GetRootDir()
	if len(args) > 0 {
		var err error
		inbox, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	info, err := os.Stat(inbox)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", inbox)
	}

	walker := fs.NewInboxWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	files, err := walker.Walk(inbox)
	if err != nil {
		return fmt.Errorf("failed to walk inbox: %w", err)
	}

	var (
		batches []inboxBatch
		total   int
		skipped []string
	)
	for _, f := range files {
		texts, err := fs.ReadTickets(f.Path)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", f.Rel, err))
			continue
		}
		if len(texts) == 0 {
			continue
		}
		batches = append(batches, inboxBatch{file: f, texts: texts})
		total += len(texts)
	}
	if total == 0 {
		fmt.Fprintf(out, "No tickets found in %s\n", inbox)
		return nil
	}
	fmt.Fprintf(out, "Found %d tickets in %d files\n", total, len(batches))

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Classifying[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	a, err := openApp(ctx, openOptions{
		onDone: func(usecase.Outcome, error) { _ = bar.Add(1) },
	})
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	for _, b := range batches {
		for _, text := range b.texts {
			if _, err := a.service.Submit(ctx, text); err != nil {
				return fmt.Errorf("%s: %w", b.file.Rel, err)
			}
		}
	}
	a.service.Wait()

	printFinOps(out, a.service.Stats(), time.Since(start))

	if ingestArchive {
		for _, b := range batches {
			if err := archive(inbox, b.file); err != nil {
				a.logger.Warn("failed to archive inbox file", zap.String("file", b.file.Rel), zap.Error(err))
				skipped = append(skipped, fmt.Sprintf("%s: archive: %v", b.file.Rel, err))
			}
		}
	}

	if len(skipped) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, s := range skipped {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
	return nil
}

func archive(inbox string, f fs.InboxFile) error {
	dst := filepath.Join(inbox, "processed", filepath.FromSlash(f.Rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(f.Path, dst)
}
