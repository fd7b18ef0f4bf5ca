package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"biomrk-backend/internal/bootstrap"
	"biomrk-backend/internal/queue"
	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/shared/storage/db"
	"biomrk-backend/internal/snapshots"
)

// openBackend is swapped in tests.
var openBackend = func(ctx context.Context, cfg config.Config) (*bootstrap.Backend, error) {
	return bootstrap.OpenBackend(ctx, cfg, db.OptionsFromEnv(db.DefaultCLIOptions()))
}

var newPublisher = func(ctx context.Context, cfg config.Config) (queue.Client, error) {
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.IngestQueueURL)
}

const maxSeedLine = 16 << 20

func newRootCmd(cfg config.Config, out io.Writer) *cobra.Command {
	var storeFlag string
	root := &cobra.Command{
		Use:          "snapshot",
		Short:        "Inspect and load analysis snapshots",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if storeFlag != "" {
				cfg.SnapshotStore = storeFlag
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&storeFlag, "store", "", "snapshot store override: postgres, object, memory or badger (alias embedded)")

	root.AddCommand(
		newGetCmd(&cfg),
		newVersionsCmd(&cfg),
		newSeedCmd(&cfg),
		newPublishCmd(&cfg),
	)
	return root
}

func newGetCmd(cfg *config.Config) *cobra.Command {
	var (
		version  int64
		pretty   bool
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "get CANCER_CODE [CANCER_CODE...]",
		Short: "Assemble the latest snapshot of one or more cancer codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("version") && len(args) > 1 {
				return fmt.Errorf("--version applies to a single cancer code")
			}
			ctx := cmd.Context()
			backend, err := openBackend(ctx, *cfg)
			if err != nil {
				return err
			}
			defer backend.Close()
			svc := snapshots.NewService(backend.Store, cfg.StoreReadTimeout)

			if cmd.Flags().Changed("version") {
				snap, err := svc.AssembleVersion(ctx, args[0], version)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), snap, pretty)
			}
			if len(args) == 1 {
				snap, err := svc.Assemble(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), snap, pretty)
			}

			results, err := assembleAll(ctx, svc, args, parallel)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results, pretty)
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "assemble this log_timestamp instead of the latest")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "maximum concurrent assemblies")
	return cmd
}

// assembleAll assembles every code concurrently and fails on the first error.
func assembleAll(ctx context.Context, svc *snapshots.Service, codes []string, parallel int) (map[string]snapshots.Snapshot, error) {
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	var mu sync.Mutex
	out := make(map[string]snapshots.Snapshot, len(codes))
	for _, code := range codes {
		g.Go(func() error {
			snap, err := svc.Assemble(gctx, code)
			if err != nil {
				return fmt.Errorf("%s: %w", code, err)
			}
			mu.Lock()
			out[code] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func newVersionsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "versions CANCER_CODE",
		Short: "List the stored versions of a cancer code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := openBackend(ctx, *cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			versions, err := snapshots.NewService(backend.Store, cfg.StoreReadTimeout).Versions(ctx, args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func newSeedCmd(cfg *config.Config) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Append analysis runs from a newline-delimited JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rows, err := snapshots.ReadSeed(in)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			backend, err := openBackend(ctx, *cfg)
			if err != nil {
				return err
			}
			defer backend.Close()
			dst, ok := backend.Appender()
			if !ok {
				return fmt.Errorf("snapshot store %s does not accept rows", backend.Kind)
			}
			n, err := snapshots.Seed(ctx, dst, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appended %d rows\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	return cmd
}

func newPublishCmd(cfg *config.Config) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Send analysis runs from a newline-delimited JSON file to the ingest queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			lines, err := readRunLines(in)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := newPublisher(ctx, *cfg)
			if err != nil {
				return err
			}
			for i, line := range lines {
				msg := queue.Message{
					RequestID:  uuid.NewString(),
					EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
					Row:        line,
				}
				if err := client.Send(ctx, msg); err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d rows\n", len(lines))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	return cmd
}

// readRunLines returns the non-blank lines of r after checking that each one
// is a row the ingest worker will accept.
func readRunLines(r io.Reader) ([]json.RawMessage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSeedLine)
	var lines []json.RawMessage
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := snapshots.ReadSeed(bytes.NewReader(line)); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, json.RawMessage(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
