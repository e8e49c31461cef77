package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cho-y-j/dispatch/internal/bootstrap"
	"github.com/cho-y-j/dispatch/internal/config"
	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/violation"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Dispatch.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs the %q store, config uses %q", config.StorePostgres, a.cfg.Dispatch.Store)
			}
			if _, err := a.open(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "schema applied")
			return nil
		},
	}
}

func newSweepCmd(a *app) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate every temporary suspension that has run out",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			provider, err := loadSettings(cmd, a, b)
			if err != nil {
				return err
			}
			esc := violation.NewEscalator(b.Store, provider, a.logger)
			if batch <= 0 {
				batch = 100
			}

			total := 0
			for {
				n, err := esc.ExpireDue(cmd.Context(), batch)
				if err != nil {
					return err
				}
				total += n
				if n < batch {
					break
				}
			}
			fmt.Fprintf(a.out, "expired %d suspension(s)\n", total)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "Suspensions expired per round")
	return cmd
}

func loadSettings(cmd *cobra.Command, a *app, b *bootstrap.Backend) (*settings.Provider, error) {
	source, _ := bootstrap.SettingsSource(&a.cfg.Dispatch, b.Store)
	provider := settings.NewProvider(source, a.logger)
	if _, err := provider.Reload(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return provider, nil
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Inspect or change runtime business settings"}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			provider, err := loadSettings(cmd, a, b)
			if err != nil {
				return err
			}
			values := provider.Current().Map()
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(a.out, "%s=%s\n", k, values[k])
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !settings.Known(key) {
				return fmt.Errorf("unknown setting %q", key)
			}
			b, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			_, writer := bootstrap.SettingsSource(&a.cfg.Dispatch, b.Store)
			if writer == nil {
				return fmt.Errorf("settings are read from %s; edit that file instead", a.cfg.Dispatch.SettingsFile)
			}
			if err := writer.PutSetting(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s=%s\n", key, value)
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func newSuspensionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "suspensions", Short: "Inspect suspensions"}

	var (
		actorType  string
		actorID    int64
		activeOnly bool
		limit      int
		asJSON     bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List suspensions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.SuspensionQuery{ActiveOnly: activeOnly, Limit: limit}
			if actorType != "" {
				actor := domain.Actor{Type: domain.ActorType(actorType), ID: actorID}
				if err := actor.Validate(); err != nil {
					return err
				}
				q.Actor = &actor
			}

			b, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			list, err := b.Store.ListSuspensions(cmd.Context(), q)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(a.out, "no suspensions")
				return nil
			}
			for _, s := range list {
				end := "permanent"
				if s.EndAt != nil {
					end = s.EndAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(a.out, "%d  %s:%d  %-9s  active=%t  until=%s  reason=%q\n",
					s.ID, s.ActorType, s.ActorID, s.Kind, s.Active, end, s.Reason)
			}
			return nil
		},
	}
	list.Flags().StringVar(&actorType, "actor-type", "", "Filter by actor type (CONTRACTOR|ORGANIZATION)")
	list.Flags().Int64Var(&actorID, "actor-id", 0, "Filter by actor id (with --actor-type)")
	list.Flags().BoolVar(&activeOnly, "active", false, "Only active suspensions")
	list.Flags().IntVar(&limit, "limit", 50, "Max rows")
	list.Flags().BoolVar(&asJSON, "json", false, "JSON output")

	cmd.AddCommand(list)
	return cmd
}
