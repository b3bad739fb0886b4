package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/g0mb4/qutils"
)

// Listing column widths, counted from the start of the name.
const (
	pakListWidth = 56
	wadListWidth = 53
)

func (a *app) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list ARCHIVE",
		Short: "List archive entries with their sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			return writeListing(cmd.OutOrStdout(), args[0], r, a.cfg.HumanSizes)
		},
	}

	cmd.Flags().BoolP("human", "H", false, "print human readable sizes")
	_ = a.v.BindPFlag("human_sizes", cmd.Flags().Lookup("human"))

	return cmd
}

func (a *app) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check ARCHIVE NAME",
		Short: "Report whether an entry exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			if _, err := r.Lookup(args[1]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is found\n", args[1])
			return nil
		},
	}
}

func (a *app) newExtractCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "extract ARCHIVE NAME",
		Short: "Extract one entry into a directory without its path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			entry, err := r.Lookup(args[1])
			if err != nil {
				return err
			}

			outPath, err := r.ExtractEntry(entry, dir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is extracted\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "directory", "C", ".", "output directory")

	return cmd
}

func (a *app) newExtractAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-all ARCHIVE DIR",
		Short: "Extract every selected entry, recreating PAK directories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			count := 0

			err = r.Extract(cmd.Context(), args[1], qutils.ExtractOptions{
				Logger:          slog.Default(),
				Rules:           qutils.SelectionRules(a.cfg.Include, a.cfg.Exclude),
				FileMode:        a.cfg.ExtractFileMode(),
				MaxWorkers:      a.cfg.Workers,
				ContinueOnError: a.cfg.ContinueOnError,
				OnEntryDone: func(_ qutils.EntryInfo, _ int64, outputPath string) {
					mu.Lock()
					defer mu.Unlock()
					count++
					fmt.Fprintf(out, "%s is extracted\n", outputPath)
				},
			})
			if err != nil {
				return err
			}

			slog.Info("extraction finished", "archive", args[0], "entries", count, "dir", args[1])
			return nil
		},
	}
}

func (a *app) newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create ARCHIVE DIR",
		Short: "Create an archive from the files below DIR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath, srcDir := args[0], args[1]

			format := a.cfg.ArchiveFormat()
			if format == qutils.FormatUnknown {
				format = qutils.FormatFromPath(archivePath)
			}
			if format == qutils.FormatUnknown {
				return fmt.Errorf("%w: pass --format or use a .pak or .wad file name", qutils.ErrUnknownFormat)
			}

			out := cmd.OutOrStdout()
			res, err := qutils.BuildFile(cmd.Context(), archivePath, qutils.NewDirSource(srcDir), qutils.BuildOptions{
				Format:     format,
				MaxEntries: a.cfg.MaxEntries,
				Rules:      qutils.SelectionRules(a.cfg.Include, a.cfg.Exclude),
				Logger:     slog.Default(),
				OnEntryDone: func(entry qutils.EntryInfo) {
					fmt.Fprintf(out, "%s added\n", entry.Name)
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s created, it contains %d files.\n", archivePath, len(res.Entries))
			slog.Debug("archive built",
				"archive", archivePath,
				"data", humanize.IBytes(uint64(res.DataSize)), //nolint:gosec // non-negative
				"skipped", res.SkippedEntries,
				"duration", res.Duration,
			)

			return nil
		},
	}
}

// open loads an archive honoring the configured format and capacity.
func (a *app) open(path string) (*qutils.Reader, error) {
	return qutils.OpenWithOptions(path, qutils.ReaderOptions{
		Logger:     slog.Default(),
		Format:     a.cfg.ArchiveFormat(),
		MaxEntries: a.cfg.MaxEntries,
	})
}

// writeListing prints the summary line and one padded line per entry.
func writeListing(w io.Writer, archivePath string, r *qutils.Reader, human bool) error {
	if _, err := fmt.Fprintf(w, "%s contains %d files.\n", archivePath, r.Len()); err != nil {
		return err
	}

	var sb strings.Builder
	for _, e := range r.Entries() {
		sb.Reset()

		width := pakListWidth
		if r.Format() == qutils.FormatWAD2 {
			ext := e.Type.Extension()
			if e.Compressed {
				ext += "C"
			}
			fmt.Fprintf(&sb, "%-4s ", ext)
			width = wadListWidth
		}

		sb.WriteString(e.Name)
		for n := len(e.Name); n < width; n++ {
			sb.WriteByte('-')
		}

		if human {
			sb.WriteString(humanize.IBytes(uint64(e.Size)))
		} else {
			fmt.Fprintf(&sb, "%d B", e.Size)
		}
		sb.WriteByte('\n')

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}

	return nil
}
