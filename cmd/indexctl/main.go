package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"photo-indexer/internal/database"
	"photo-indexer/internal/events"
	"photo-indexer/internal/indexer"
	"photo-indexer/internal/library"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/startup"
)

// Default timeout for non-scan commands
const defaultTimeout = 30 * time.Second

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	if os.Getenv("LOG_LEVEL") == "" {
		logging.SetLevel(logging.LevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = startup.DefaultDataDir()
	}

	lib, err := library.Open(ctx, library.Options{DataDir: dataDir, Exiftool: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open data directory: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATA_DIR is set correctly (current: %s)\n", dataDir)
		os.Exit(1)
	}

	err = run(ctx, lib, os.Args[1:], os.Stdout)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer closeCancel()
	if cerr := lib.Close(closeCtx); cerr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close data directory: %v\n", cerr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run executes one command against lib, writing results to out.
func run(ctx context.Context, lib *library.Service, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "folders":
		return folderCommand(ctx, args[1:], out, folderOps{
			list: lib.Folders, add: lib.AddFolder, remove: lib.DeleteFolder,
		})
	case "ignore":
		return folderCommand(ctx, args[1:], out, folderOps{
			list: lib.IgnoreFolders, add: lib.AddIgnoreFolder, remove: lib.DeleteIgnoreFolder,
		})
	case "scan":
		return scan(ctx, lib, args[1:], out)
	case "search":
		return search(ctx, lib, args[1:], out)
	case "status":
		return status(ctx, lib, out)
	default:
		return fmt.Errorf("unknown command %s: %w", sanitizeCommand(args[0]), errUsage)
	}
}

// sanitizeCommand returns a safe representation of a command string for display.
// It uses an allowlist approach, replacing any character that is not alphanumeric,
// a hyphen, or an underscore with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "photo-indexer control")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: indexctl <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  folders list|add <path>|rm <id>  - Manage watched folders")
	fmt.Fprintln(w, "  ignore  list|add <path>|rm <id>  - Manage ignored folders")
	fmt.Fprintln(w, "  scan    [folder...]              - Index watched folders")
	fmt.Fprintln(w, "  search  <field> <op> <value>...  - Search the index")
	fmt.Fprintln(w, "  status                           - Show index counts")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  DATA_DIR - Data directory (default: %s)\n", startup.DefaultDataDir())
}

type folderOps struct {
	list   func(context.Context) ([]database.Folder, error)
	add    func(context.Context, string) (*database.Folder, error)
	remove func(context.Context, int64) error
}

func folderCommand(ctx context.Context, args []string, out io.Writer, ops folderOps) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		folders, err := ops.list(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPATH\tADDED")
		for _, f := range folders {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", f.ID, f.Path, f.CreatedAt.Format(time.DateTime))
		}
		return tw.Flush()
	case "add":
		if len(args) != 2 {
			return errUsage
		}
		f, err := ops.add(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %s (id %d)\n", f.Path, f.ID)
		return nil
	case "rm":
		if len(args) != 2 {
			return errUsage
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("folder id %q: %w", args[1], errUsage)
		}
		if err := ops.remove(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed folder %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown folder action %s: %w", sanitizeCommand(args[0]), errUsage)
	}
}

// scan runs a scan to completion, cancelling it when ctx ends.
func scan(ctx context.Context, lib *library.Service, folders []string, out io.Writer) error {
	token, err := lib.StartScan(ctx, indexer.ScanRequest{Folders: folders})
	if err != nil {
		return err
	}
	sub, err := lib.Subscribe(token)
	if err != nil {
		return err
	}
	defer sub.Close()

	bar := newProgress(out)
	for {
		select {
		case <-ctx.Done():
			_ = lib.CancelScan(token)
			bar.done()
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				bar.done()
				return errors.New("event stream closed before the scan finished")
			}
			bar.update(ev)
			if !ev.Terminal() {
				continue
			}
			bar.done()
			if ev.Kind == events.KindFailed {
				return fmt.Errorf("scan failed: %s", ev.Error)
			}
			if sum, err := lib.ScanStatus(token); err == nil {
				fmt.Fprintf(out, "Indexed %d, unchanged %d, skipped %d, pruned %d of %d files\n",
					sum.Indexed, sum.Unchanged, sum.Skipped, sum.Pruned, sum.Total)
			}
			return nil
		}
	}
}

func search(ctx context.Context, lib *library.Service, args []string, out io.Writer) error {
	if len(args)%3 != 0 {
		return fmt.Errorf("search takes field/op/value triples: %w", errUsage)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	conds := make([]database.Condition, 0, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		conds = append(conds, database.Condition{Field: args[i], Operator: args[i+1], Value: args[i+2]})
	}

	images, err := lib.Search(ctx, conds)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSIZE\tPATH")
	for _, img := range images {
		created := "-"
		if !img.FileCreatedAt.IsZero() {
			created = img.FileCreatedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%s\n", created, img.Width, img.Height, img.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d results\n", len(images))
	return nil
}

func status(ctx context.Context, lib *library.Service, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats, err := lib.Stats(ctx)
	if err != nil {
		return err
	}
	last, err := lib.DB().GetLastScan(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Images:          %d\n", stats.Images)
	fmt.Fprintf(out, "Watched folders: %d\n", stats.Folders)
	fmt.Fprintf(out, "Ignored folders: %d\n", stats.IgnoreFolders)
	if last.IsZero() {
		fmt.Fprintln(out, "Last scan:       never")
	} else {
		fmt.Fprintf(out, "Last scan:       %s\n", last.Local().Format(time.DateTime))
	}
	return nil
}
