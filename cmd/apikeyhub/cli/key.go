package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flavien-hugs/apikey-hub/internal/config"
	"github.com/flavien-hugs/apikey-hub/internal/keys"
	"github.com/flavien-hugs/apikey-hub/internal/model"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys from the command line",
		Long:    "Create, list, and revoke API keys directly against the record store, bypassing the HTTP surface.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// openService loads config and wires a key service for direct store access.
// The caller must Close the returned store.
func openService(logger *slog.Logger) (*keys.Service, *store.Store, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return keys.NewService(cfg.Keys, cfg.Gateway, st, logger), st, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		Long:  "Issue a new API key for an owner. The raw key is printed once and cannot be retrieved again.",
		Example: `  apikeyhub key create --owner 5f4d1c9e2b1a4c0007f00001
  APIKEYHUB_KEYS_LIVE_MODE=true apikeyhub key create --owner 5f4d1c9e2b1a4c0007f00001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd, owner)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owning user id (required)")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runKeyCreate(cmd *cobra.Command, owner string) error {
	svc, st, err := openService(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	key, raw, err := svc.Create(context.Background(), owner)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "API key created for owner %s\n\n", key.OwnerID)
	fmt.Fprintf(cmd.OutOrStdout(), "  id:         %s\n", key.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "  expires_at: %s\n", key.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(cmd.OutOrStdout(), "  api_key:    %s\n\n", raw)
	fmt.Fprintln(cmd.OutOrStdout(), "Store this key now. It will not be shown again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		owner      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API key records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd, owner, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owning user id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(cmd *cobra.Command, owner string, jsonOutput bool) error {
	svc, st, err := openService(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	records, total, err := svc.List(context.Background(), model.APIKeyFilter{
		OwnerID: owner,
		Sort:    model.SortDesc,
		Limit:   1000,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tACTIVE\tEXPIRES\tLAST USED")
	for _, k := range records {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			k.ID, k.OwnerID, k.IsActive, k.ExpiresAt.Format(time.RFC3339), lastUsed)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d record(s)\n", len(records), total)
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key record",
		Long:  "Delete the record by id. Revoking an id that does not exist is not an error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd, args[0])
		},
	}
	return cmd
}

func runKeyRevoke(cmd *cobra.Command, id string) error {
	svc, st, err := openService(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := svc.Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API key %s revoked\n", id)
	return nil
}
