package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tartil/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show what is cached",
	Long: paragraph(fmt.Sprintf(
		"\n%s the cached catalog responses, verse timings and surah audio.",
		keyword("Inspect"),
	)),
	Example: paragraph("tartil cache\ntartil cache purge audio"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		r := svc.cache.Report()
		if r.Dir != "" {
			fmt.Fprintf(out, "Directory  %s\n", r.Dir)
		}
		fmt.Fprintf(out, "Disk       %s of %s\n", humanize.Bytes(uint64(r.Disk.Size)), humanize.Bytes(uint64(r.Disk.Capacity))) //nolint:gosec
		if !r.LastCleanup.IsZero() {
			fmt.Fprintf(out, "Cleaned    %s\n", humanize.Time(r.LastCleanup))
		}

		for _, k := range summarize(svc.cache.Entries()) {
			fmt.Fprintf(out, "  %-8s %5d items  %9s  last used %s\n",
				k.kind, k.items, humanize.Bytes(uint64(k.size)), humanize.Time(k.lastUsed)) //nolint:gosec
		}
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:       "purge [audio|timings|catalog|all]",
	Short:     "Remove cached items",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"audio", "timings", "catalog", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, err := purgePrefix(args[0])
		if err != nil {
			return err
		}

		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close() //nolint:errcheck

		if prefix == "" {
			if err := svc.cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		}
		n := svc.cache.Purge(prefix)
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", humanize.Comma(int64(n))+" "+strings.TrimSuffix(prefix, ":")+" items")
		return nil
	},
}

func purgePrefix(kind string) (string, error) {
	switch kind {
	case "audio":
		return cache.PrefixAudio, nil
	case "timings":
		return cache.PrefixTimings, nil
	case "catalog":
		return cache.PrefixCatalog, nil
	case "all":
		return "", nil
	}
	return "", fmt.Errorf("unknown cache kind %q", kind)
}

type kindSummary struct {
	kind     string
	items    int
	size     int64
	lastUsed time.Time
}

func summarize(entries []cache.Entry) []kindSummary {
	byKind := make(map[string]*kindSummary)
	for _, e := range entries {
		k, ok := byKind[e.Kind()]
		if !ok {
			k = &kindSummary{kind: e.Kind()}
			byKind[e.Kind()] = k
		}
		k.items++
		k.size += e.Size
		if e.LastAccess.After(k.lastUsed) {
			k.lastUsed = e.LastAccess
		}
	}
	out := make([]kindSummary, 0, len(byKind))
	for _, k := range byKind {
		out = append(out, *k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].size > out[j].size })
	return out
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
}
