package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/namelens/guildrest/internal/core/store"
	"github.com/namelens/guildrest/internal/output"
)

var (
	bucketAll    bool
	bucketKey    string
	bucketPrefix string
	bucketYes    bool
	bucketDryRun bool
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Inspect and reset persisted bucket state",
}

func bucketQueryFromFlags(requireSelector bool) (store.BucketQuery, error) {
	query := store.BucketQuery{
		All:    bucketAll,
		Key:    strings.TrimSpace(bucketKey),
		Prefix: strings.TrimSpace(bucketPrefix),
	}
	if !requireSelector && query.Key == "" && query.Prefix == "" {
		query.All = true
	}
	return query, query.Validate()
}

var bucketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bucket state",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := bucketQueryFromFlags(false)
		if err != nil {
			return err
		}

		backend, err := requireStore(cmd.Context())
		if err != nil {
			return err
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		entries, err := backend.ListBuckets(cmd.Context(), query)
		if err != nil {
			return err
		}

		format, sink, err := openOutput(cmd, "bucket.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if entries == nil {
			entries = []store.BucketEntry{}
		}
		rendered, err := output.Render(format, entries, func() string {
			return output.StoredBucketsTable(entries, time.Now())
		})
		if err != nil {
			return err
		}
		return sink.write(rendered)
	},
}

// resetSummary is the outcome of a bucket reset.
type resetSummary struct {
	Backend string `json:"backend"`
	Matched int    `json:"matched"`
	Deleted int64  `json:"deleted"`
	DryRun  bool   `json:"dry_run"`
}

func (s resetSummary) box() string {
	lines := []string{"Bucket Reset", "", "backend: " + s.Backend}
	if s.DryRun {
		lines = append(lines, fmt.Sprintf("would delete %d bucket(s)", s.Matched))
	} else {
		lines = append(lines, fmt.Sprintf("deleted %d/%d bucket(s)", s.Deleted, s.Matched))
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0)
}

var bucketResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored bucket state",
	Long: `Delete persisted bucket state so the next request to those routes starts
from a fresh bucket. A running server keeps its in-memory buckets; use
DELETE /v1/buckets against the server to reset both.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := bucketQueryFromFlags(true)
		if err != nil {
			return err
		}
		if query.All && !bucketYes && !bucketDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		backend, err := requireStore(cmd.Context())
		if err != nil {
			return err
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		matched, err := backend.ListBuckets(cmd.Context(), query)
		if err != nil {
			return err
		}
		summary := resetSummary{Backend: backend.Driver(), Matched: len(matched), DryRun: bucketDryRun}

		if !bucketDryRun {
			summary.Deleted, err = backend.ResetBuckets(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		format, sink, err := openOutput(cmd, "bucket.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.Render(format, summary, summary.box)
		if err != nil {
			return err
		}
		return sink.write(rendered)
	},
}

func init() {
	for _, c := range []*cobra.Command{bucketListCmd, bucketResetCmd} {
		c.Flags().BoolVar(&bucketAll, "all", false, "Select all buckets")
		c.Flags().StringVar(&bucketKey, "key", "", "Select a single bucket key (exact match)")
		c.Flags().StringVar(&bucketPrefix, "prefix", "", "Select bucket keys with a matching prefix")
		addOutputFlags(c)
	}
	bucketResetCmd.Flags().BoolVar(&bucketYes, "yes", false, "Confirm destructive reset")
	bucketResetCmd.Flags().BoolVar(&bucketDryRun, "dry-run", false, "Show what would be deleted")

	bucketCmd.AddCommand(bucketListCmd, bucketResetCmd)
	rootCmd.AddCommand(bucketCmd)
}
