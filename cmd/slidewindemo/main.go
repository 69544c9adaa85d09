// Command slidewindemo exercises the slidewin sources from the command
// line: point it at a text file or a SQLite database and it prints
// successive windows until the source is exhausted. It exists to
// demonstrate the library end-to-end, not as part of its public contract.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/go-slidewin/slidewin"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("slidewindemo failed")
	}
}

func newRootCommand() *cobra.Command {
	var windowSize uint32
	var verbose bool

	root := &cobra.Command{
		Use:   "slidewindemo",
		Short: "Print successive sliding windows from a file or database",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}
	root.PersistentFlags().Uint32Var(&windowSize, "window-size", 5, "window size")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newFileCommand(&windowSize))
	root.AddCommand(newSQLCommand(&windowSize))
	root.AddCommand(newRemoteCommand(&windowSize))
	return root
}

func newFileCommand(windowSize *uint32) *cobra.Command {
	return &cobra.Command{
		Use:   "file [path]",
		Short: "Stream windows from a text file, one uint32 value per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := slidewin.NewFileSource[uint32](afero.NewOsFs(), args[0], *windowSize,
				slidewin.WithLaunchPolicy(slidewin.Eager),
				slidewin.WithLogger(log.Logger),
			)
			if err != nil {
				return err
			}
			defer src.Close()
			return printWindows(src)
		},
	}
}

func newSQLCommand(windowSize *uint32) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "sql [path-to-sqlite-db]",
		Short: "Stream windows from a SQLite query (LIMIT ? OFFSET ? positional binding)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := gorm.Open(sqlite.Open(args[0]), &gorm.Config{})
			if err != nil {
				return err
			}

			src, err := slidewin.NewSQLSource[uint32](db, query, *windowSize,
				slidewin.WithSQLLaunchPolicy(slidewin.Eager),
				slidewin.WithSQLLogger(log.Logger),
			)
			if err != nil {
				return err
			}
			defer src.Close()
			return printWindows(src)
		},
	}
	cmd.Flags().StringVar(&query, "query", "SELECT v FROM test LIMIT ? OFFSET ?", "query with two positional params (limit, offset)")
	return cmd
}

func newRemoteCommand(windowSize *uint32) *cobra.Command {
	var parallelism uint32
	var chunkSize uint32

	cmd := &cobra.Command{
		Use:   "remote [url]",
		Short: "Stream windows from a range-request served URL (S3 presigned, .gz/.zst supported)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := slidewin.NewRemoteFileSource[uint32](args[0], *windowSize,
				slidewin.WithRemoteLaunchPolicy(slidewin.Eager),
				slidewin.WithRemoteLogger(log.Logger),
				slidewin.WithParallelism(parallelism),
				slidewin.WithChunkSize(uint64(chunkSize)),
			)
			if err != nil {
				return err
			}
			defer src.Close()
			return printWindows(src)
		},
	}
	cmd.Flags().Uint32Var(&parallelism, "parallelism", 4, "number of concurrent range-request downloaders")
	cmd.Flags().Uint32Var(&chunkSize, "chunk-size", 4<<20, "byte size of each downloaded range")
	return cmd
}

func printWindows(src slidewin.Window[uint32]) error {
	for !src.Exhausted() {
		win, err := src.Current()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, win)
		if err := src.Advance(); err != nil {
			return err
		}
	}
	return nil
}
