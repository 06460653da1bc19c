package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/access"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/services"
)

func cleanCommand() *cobra.Command {
	var scope, user string
	cmd := &cobra.Command{
		Use:   "clean <id>",
		Short: "Re-run cleaning functions over a record group or a single record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Records.RequirePermission(ctx, user, models.PermManageProject); err != nil {
				return err
			}
			summary, err := rt.Records.CleanCollection(ctx, access.Scope(scope), args[0], user)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", string(access.ScopeRecordGroup), "record_group or record")
	cmd.Flags().StringVar(&user, "user", "", "email of the user running the cleanup")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func importProcessorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-processors <file.yaml>",
		Short: "Create or replace processor schemas from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			procs, err := services.ParseProcessors(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := services.ImportProcessors(ctx, rt.Store, procs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d processors\n", n)
			return nil
		},
	}
}

func releaseLocksCommand() *cobra.Command {
	var recordID, user string
	cmd := &cobra.Command{
		Use:   "release-locks",
		Short: "Release expired locks, or the locks on a record or held by a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if recordID != "" || user != "" {
				if err := rt.Locks.Release(ctx, recordID, user); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "locks released")
				return nil
			}
			n, err := rt.Locks.ReleaseExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d expired locks\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&recordID, "record", "", "release the lock on this record")
	cmd.Flags().StringVar(&user, "user", "", "release every lock held by this user")
	return cmd
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <record-or-group-id>",
		Short: "Print the audit history of a record or record group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.Store.ListAudit(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
}
