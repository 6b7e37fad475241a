package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		q            string
		limit        int
		offset       int
		updatedSince int64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the models visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			query.Set("offset", strconv.Itoa(offset))
			if q != "" {
				query.Set("q", q)
			}
			if cmd.Flags().Changed("updated-since") {
				query.Set("updated_since", strconv.FormatInt(updatedSince, 10))
			}

			var out []models.Model
			if err := c.getJSON(cmd.Context(), "/v1/models", query, &out); err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&q, "query", "q", "", "substring of repo id or model name")
	cmd.Flags().IntVar(&limit, "limit", 100, "page size (1..500)")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	cmd.Flags().Int64Var(&updatedSince, "updated-since", 0, "only models updated after this Unix time")
	return cmd
}

func printModels(w io.Writer, list []models.Model) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPO_ID\tVISIBILITY\tPIPELINE\tFILES\tUPDATED")
	for _, m := range list {
		pipeline := "-"
		if m.PipelineTag != nil {
			pipeline = *m.PipelineTag
		}
		updated := "-"
		if m.LastUpdateTS != nil {
			updated = strconv.FormatInt(*m.LastUpdateTS, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.RepoID, m.Visibility, pipeline, m.FileCount, updated)
	}
	return tw.Flush()
}

func newManifestCmd(opts *globalOptions) *cobra.Command {
	var mo manifestOptions
	cmd := &cobra.Command{
		Use:   "manifest REPO_ID",
		Short: "Print the manifest of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			m, err := getManifest(cmd, c, args[0], mo)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	mo.bind(cmd)
	cmd.Flags().BoolVar(&mo.presign, "presign", false, "include presigned download URLs")
	return cmd
}

type manifestOptions struct {
	version string
	presign bool
	expires int
}

func (o *manifestOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.version, "version", "", "model version (default: unversioned files)")
	cmd.Flags().IntVar(&o.expires, "expires", 3600, "presigned URL lifetime in seconds (60..86400)")
}

func getManifest(cmd *cobra.Command, c *client, repoID string, o manifestOptions) (*services.Manifest, error) {
	query := url.Values{}
	if o.version != "" {
		query.Set("version", o.version)
	}
	if o.presign {
		query.Set("presign", "true")
		query.Set("expires", strconv.Itoa(o.expires))
	}
	var m services.Manifest
	if err := c.getJSON(cmd.Context(), "/v1/manifest/"+repoID, query, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func newChangesCmd(opts *globalOptions) *cobra.Command {
	var (
		since int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List models updated after a point in time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			query := url.Values{}
			query.Set("since", strconv.FormatInt(since, 10))
			query.Set("limit", strconv.Itoa(limit))

			var out []models.ModelChange
			if err := c.getJSON(cmd.Context(), "/v1/changes", query, &out); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REPO_ID\tLAST_UPDATE_TS")
			for _, ch := range out {
				fmt.Fprintf(tw, "%s\t%d\n", ch.RepoID, ch.LastUpdateTS)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "Unix time; only later updates are listed")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum number of changes (1..2000)")
	_ = cmd.MarkFlagRequired("since")
	return cmd
}

func newUsageCmd(opts *globalOptions) *cobra.Command {
	var (
		since, until int64
		top          int
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show your own download activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			query := url.Values{}
			if cmd.Flags().Changed("since") {
				query.Set("since", strconv.FormatInt(since, 10))
			}
			if cmd.Flags().Changed("until") {
				query.Set("until", strconv.FormatInt(until, 10))
			}
			query.Set("top_models_limit", strconv.Itoa(top))

			var report services.UsageReport
			if err := c.getJSON(cmd.Context(), "/v1/users/me/usage", query, &report); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "window start, Unix time")
	cmd.Flags().Int64Var(&until, "until", 0, "window end, Unix time")
	cmd.Flags().IntVar(&top, "top", 20, "number of top models (1..200)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
