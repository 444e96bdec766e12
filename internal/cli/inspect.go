package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/detiam/DepotManifestGen/internal/manifest"
)

func newInspectCmd() *cobra.Command {
	var (
		inFile      string
		showEntries bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show details of a saved .manifest file",
		Long:  "Open a saved manifest, verify its integrity checksum, and display its metadata in human-readable or JSON format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(flagJSON, flagQuiet)

			if inFile == "" {
				return fmt.Errorf("--in is required")
			}

			m, err := manifest.ReadFile(inFile)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}

			switch printer.Mode {
			case OutputJSON:
				out := map[string]any{
					"app_id":        m.AppID,
					"depot_id":      m.DepotID,
					"gid":           fmt.Sprint(m.GID),
					"creation_time": m.CreationTime,
					"original_size": m.OriginalSize,
					"unique_chunks": m.UniqueChunks,
					"crc_clear":     m.CRCClear,
					"entries":       len(m.Entries),
				}
				if showEntries {
					paths := make([]string, 0, len(m.Entries))
					for _, e := range m.Entries {
						paths = append(paths, e.Path)
					}
					out["paths"] = paths
				}
				return printer.JSON(out)
			default:
				printer.Human("Manifest:   %s", inFile)
				printer.Human("App:        %d", m.AppID)
				printer.Human("Depot:      %d", m.DepotID)
				printer.Human("GID:        %d", m.GID)
				if m.CreationTime != 0 {
					printer.Human("Created:    %s", time.Unix(int64(m.CreationTime), 0).UTC().Format(time.RFC3339))
				}
				printer.Human("Size:       %d bytes (%d compressed)", m.OriginalSize, m.CompressedSize)
				printer.Human("Chunks:     %d unique", m.UniqueChunks)
				printer.Human("Checksum:   %#x (verified)", m.CRCClear)
				printer.Human("Entries:    %d", len(m.Entries))
				if showEntries {
					printer.Human("")
					for _, e := range m.Entries {
						printer.Human("  %12d  %s", e.Size, e.Path)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inFile, "in", "", "input .manifest file (required)")
	cmd.Flags().BoolVar(&showEntries, "entries", false, "also list file entries")

	return cmd
}
