// Command list-resolver drives the resolution engine from the shell: feed
// it a file of domains to classify, ask it to refresh whatever is still
// provisional, or inspect the current cache contents.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	resolver "github.com/alonbg/list-manager"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rootDir string
	var nameservers []string
	var verbose bool

	root := &cobra.Command{
		Use:           "list-resolver",
		Short:         "Bulk DNS resolution and classification over a domain list",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVar(&rootDir, "root-dir", "./.temp", "directory snapshots and state are stored under")
	root.PersistentFlags().StringSliceVar(&nameservers, "nameserver", nil, "upstream nameserver address (repeatable); defaults to 8.8.8.8, 8.8.4.4")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	newFacade := func() (*resolver.Facade, error) {
		opts := []resolver.Option{resolver.WithRootDir(rootDir)}
		if len(nameservers) > 0 {
			opts = append(opts, resolver.WithNameservers(nameservers...))
		}
		return resolver.New(opts...)
	}

	root.AddCommand(newResolveCmd(newFacade))
	root.AddCommand(newRefreshCmd(newFacade))
	root.AddCommand(newStatsCmd(newFacade))
	root.AddCommand(newFindCmd(newFacade))

	return root
}

func newResolveCmd(newFacade func() (*resolver.Facade, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Classify every domain in a file, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, err := readDomainFile(file)
			if err != nil {
				return err
			}

			f, err := newFacade()
			if err != nil {
				return err
			}

			ctx := signalContext(cmd.Context())
			return f.BatchResolve(ctx, domains)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to a newline-delimited domain list (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newRefreshCmd(newFacade func() (*resolver.Facade, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-resolve every domain not yet confirmed resolvable or unresolvable",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFacade()
			if err != nil {
				return err
			}

			ctx := signalContext(cmd.Context())
			return f.RefreshCache(ctx)
		},
	}
}

func newStatsCmd(newFacade func() (*resolver.Facade, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the current cardinality of every resolution class",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFacade()
			if err != nil {
				return err
			}

			stats := f.Stats()
			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %d\n", name, stats[name])
			}
			return nil
		},
	}
}

func newFindCmd(newFacade func() (*resolver.Facade, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "find [domain]",
		Short: "Print which resolution class currently holds a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFacade()
			if err != nil {
				return err
			}

			class, ok := f.Find(args[0])
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not present\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], class)
			return nil
		},
	}
}

func readDomainFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open domain file: %w", err)
	}
	defer f.Close()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		domains = append(domains, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read domain file: %w", err)
	}
	return domains, nil
}

// signalContext returns a context canceled on the first SIGINT/SIGTERM; the
// Executor itself also installs its own handler for mid-run shutdown, but
// wrapping the top-level context lets a signal received before a run even
// starts abort cleanly too.
func signalContext(ctx context.Context) context.Context {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	_ = stop
	return ctx
}
