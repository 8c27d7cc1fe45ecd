package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagedtree/pagedtree/internal/btree"
	"github.com/pagedtree/pagedtree/internal/carbonaware"
	"github.com/pagedtree/pagedtree/internal/loader"
	"github.com/pagedtree/pagedtree/internal/page"
	"github.com/pagedtree/pagedtree/internal/pager"
	"github.com/pagedtree/pagedtree/internal/visualizer"
)

func newInitCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new backing file with an empty tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.newLogger()
			defer log.Sync()
			p, err := pager.Init(*env.dbPath, env.pagerOptions(log)...)
			if err != nil {
				return err
			}
			defer p.Close()
			log.Info("initialized new tree", zap.String("file", *env.dbPath))
			return nil
		},
	}
}

func newPutCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Insert or overwrite a key/value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value, err := parseKV(args[0], args[1])
			if err != nil {
				return err
			}
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()
			return tr.Put(key, value)
		},
	}
}

func newGetCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Look up a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()

			value, found, err := tr.Get(key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("(not found)")
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}
}

func newDeleteCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key, if present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()
			return tr.Delete(key)
		},
	}
}

func newScanCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Print every (key, value) pair in ascending key order",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()
			return tr.Scan(func(r btree.Record) bool {
				fmt.Printf("%d\t%d\n", r.Key, r.Value)
				return true
			})
		},
	}
}

func newCheckCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the structural sanity checker",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()

			violation, err := tr.CheckTree()
			if err != nil {
				return err
			}
			if violation != "" {
				return fmt.Errorf("check_tree: %s", violation)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func newPrintCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Dump every page reachable from the root",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()
			return tr.PrintTree(os.Stdout)
		},
	}
}

func newLoadCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "load <csv-path>",
		Short: "Bulk-load key,value records from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := loader.LoadCSV(tr, args[0], log)
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d inserted=%d errors=%d\n", result.EntriesProcessed, result.EntriesInserted, len(result.Errors))
			for _, e := range result.Errors {
				fmt.Println("  " + e)
			}
			return nil
		},
	}
}

func newServeCmd(env *cliEnv) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only introspection endpoint over the open tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.newLogger()
			defer log.Sync()
			p, tr, err := env.openExisting(log)
			if err != nil {
				return err
			}
			defer p.Close()

			var provider carbonaware.IntensityProvider
			if *env.carbonAware {
				provider = carbonaware.NewMockProvider(*env.carbonRegion, log)
			}
			srv := visualizer.Start(addr, tr, provider, *env.carbonRegion, log)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			return srv.Shutdown(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "address to serve the /status endpoint on")
	return cmd
}

func parseKey(s string) (page.Key, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return page.Key(v), nil
}

func parseKV(keyStr, valueStr string) (page.Key, page.Value, error) {
	key, err := parseKey(keyStr)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseUint(valueStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q: %w", valueStr, err)
	}
	return key, page.Value(v), nil
}
