package servercli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hdt3213/tabledis/config"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/store"
	"github.com/spf13/cobra"
)

const defaultDumpName = "dump.rdb"

// withStore runs fn on an installed store and closes it afterwards
func withStore(fn func(s *store.Store) error) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Errorf("close store: %v", err)
		}
	}()
	return fn(s)
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create every table, existing tables are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.Store) error {
				cmd.Printf("tables installed in %s\n", config.Properties.DataPath())
				return nil
			})
		},
	}
}

func flushAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flushall",
		Short: "Remove every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.Store) error {
				return s.FlushAll()
			})
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every key into an RDB file, - writes to stdout",
		Long:  "Write every key into an RDB file readable by redis tools. The default file is dump.rdb in the data directory.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := filepath.Join(config.Properties.Dir, defaultDumpName)
			if len(args) == 1 {
				filename = args[0]
			}
			return withStore(func(s *store.Store) error {
				if filename == "-" {
					return s.Export(cmd.OutOrStdout())
				}
				return exportFile(s, filename)
			})
		},
	}
}

// exportFile replaces filename only after a complete export
func exportFile(s *store.Store, filename string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := s.Export(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load strings, sets, lists and sorted sets from an RDB file, - reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				src = file
			}
			return withStore(func(s *store.Store) error {
				n, err := s.Import(src)
				cmd.Printf("%d keys imported\n", n)
				return err
			})
		},
	}
}
