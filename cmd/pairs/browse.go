package main

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/pairs-client/pkg/pagination"
	"github.com/spf13/cobra"
)

type browseOptions struct {
	userID string
	limit  int
	pages  int
	all    bool
}

func newBrowseCmd(a *app) *cobra.Command {
	opts := &browseOptions{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through pairs and print them as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("user") {
				opts.userID = a.cfg.Browse.UserID
			}
			if !cmd.Flags().Changed("limit") {
				opts.limit = a.cfg.Browse.Limit
			}
			return runBrowse(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", "", "user whose pairs are listed (default from config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "page size (default from config)")
	cmd.Flags().IntVar(&opts.pages, "pages", 1, "number of pages to load")
	cmd.Flags().BoolVar(&opts.all, "all", false, "follow cursors until the end (bounded by --pages when set)")

	return cmd
}

func runBrowse(cmd *cobra.Command, a *app, opts *browseOptions) error {
	if opts.pages < 0 {
		return fmt.Errorf("--pages must be >= 0 (got %d)", opts.pages)
	}

	c, rc, err := a.newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	if rc != nil {
		defer rc.Close()
	}

	ctx := cmd.Context()
	state := pagination.NewState(c)
	loadOpts := pagination.Options{Limit: opts.limit, UserID: opts.userID}

	if opts.all {
		maxPages := 0
		if cmd.Flags().Changed("pages") {
			maxPages = opts.pages
		}
		if _, err := state.LoadAll(ctx, loadOpts, maxPages); err != nil {
			return err
		}
	} else {
		if err := state.LoadFirst(ctx, loadOpts); err != nil {
			return err
		}
		for i := 1; i < opts.pages && state.Cursor() != "" && !state.ReachedEnd(); i++ {
			if err := state.LoadMore(ctx, loadOpts); err != nil {
				return err
			}
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, item := range state.Items() {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("write item: %w", err)
		}
	}

	event := a.logger.Info().
		Str("user_id", loadOpts.UserID).
		Int("items", state.Len()).
		Bool("reached_end", state.ReachedEnd())
	if total := state.Total(); total != nil {
		event = event.Int("total", *total)
	}
	event.Msg("Browse complete")

	return nil
}
