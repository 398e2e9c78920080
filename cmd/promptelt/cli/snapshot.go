package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export, archive and compare schema snapshots",
		Long: `Capture a fresh schema snapshot of a database and export it, push it to the
configured archive, or compare it against an archived snapshot to see how the
schema drifted since.`,
	}

	cmd.AddCommand(newSnapshotExportCmd())
	cmd.AddCommand(newSnapshotArchiveCmd())
	cmd.AddCommand(newSnapshotDriftCmd())

	return cmd
}

// ---------- snapshot export ----------

func newSnapshotExportCmd() *cobra.Command {
	var (
		outputFile string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "export <name|id>",
		Short: "Capture and print a schema snapshot document",
		Example: `  promptelt snapshot export warehouse -o warehouse.json
  promptelt snapshot export warehouse --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotExport(args[0], outputFile, format)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")

	return cmd
}

func runSnapshotExport(ref, outputFile, format string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	db, res, err := a.connectRef(ctx, ref)
	if err != nil {
		return err
	}
	resp := a.broker.ExportSnapshot(res.SnapshotID)
	if !resp.Success {
		return fmt.Errorf("export snapshot of %q: %s", db.Name, resp.Error)
	}

	out, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer out.Close()
	if format == "" || format == "json" {
		// Keep the document byte-for-byte importable.
		if raw, ok := resp.Data.(json.RawMessage); ok {
			_, err = fmt.Fprintln(out, string(raw))
			return err
		}
	}
	return printFormatted(out, format, resp.Data)
}

// ---------- snapshot archive ----------

func newSnapshotArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <name|id>",
		Short: "Capture a snapshot and write it to the archive bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotArchive(args[0])
		},
	}
}

func runSnapshotArchive(ref string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	db, res, err := a.connectRef(ctx, ref)
	if err != nil {
		return err
	}
	resp := a.broker.ArchiveSnapshot(ctx, res.SnapshotID)
	if !resp.Success {
		return fmt.Errorf("archive snapshot of %q: %s", db.Name, resp.Error)
	}
	ar, _ := resp.Data.(broker.ArchiveResult)
	fmt.Printf("Archived snapshot %s of %q\n", res.SnapshotID, db.Name)
	fmt.Printf("  key:      %s\n", ar.Key)
	fmt.Printf("  location: %s\n", ar.Location)
	fmt.Printf("  bytes:    %d\n", ar.Bytes)
	return nil
}

// ---------- snapshot drift ----------

func newSnapshotDriftCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "drift <name|id> <archive-key>",
		Short: "Compare the live schema against an archived snapshot",
		Example: `  promptelt snapshot drift warehouse snapshots/1/1-1760000000000-1.json`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotDrift(args[0], args[1], format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")

	return cmd
}

func runSnapshotDrift(ref, key, format string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	db, res, err := a.connectRef(ctx, ref)
	if err != nil {
		return err
	}
	resp := a.broker.RestoreSnapshot(ctx, key)
	if !resp.Success {
		return fmt.Errorf("restore %s: %s", key, resp.Error)
	}
	archived, ok := resp.Data.(snapshot.Snapshot)
	if !ok {
		return fmt.Errorf("restore %s: unexpected payload %T", key, resp.Data)
	}
	if archived.DatabaseID != db.ID {
		a.logger.Warn("archived snapshot belongs to another database",
			"archived_database_id", archived.DatabaseID, "database_id", db.ID)
	}

	resp = a.broker.DiffSnapshots(archived.ID, res.SnapshotID)
	if !resp.Success {
		return fmt.Errorf("diff snapshots: %s", resp.Error)
	}
	return printFormatted(os.Stdout, format, resp.Data)
}
