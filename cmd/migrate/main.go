// Command migrate applies, inspects and rolls back the giftdesk schema.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"giftdesk/internal/config"
	"giftdesk/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	jsonOutput bool

	cfg *config.Config
	db  *gorm.DB
)

var rootCmd = &cobra.Command{
	Use:           "migrate <command>",
	Short:         "Manage the giftdesk database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if db, err = database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false}); err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		return nil
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending SQL migrations (postgres)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DBDriver == "sqlite" {
			return fmt.Errorf("SQL migrations are postgres only; use `migrate auto` for sqlite")
		}
		if err := database.RunMigrations(cmd.Context(), db); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		fmt.Println("sql migrations applied")
		return nil
	},
}

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Create or update tables from the request, admin and blacklist models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(cmd.Context(), db, cfg); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		fmt.Printf("auto-migrated %d models\n", len(database.PersistentModels()))
		return nil
	},
}

type statusView struct {
	Mode    string   `json:"mode"`
	Env     string   `json:"env"`
	RunSQL  bool     `json:"run_sql"`
	RunAuto bool     `json:"run_auto"`
	Applied []int    `json:"applied"`
	Pending []string `json:"pending"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the server would do to the schema at startup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		view := statusView{
			Mode:    status.Mode,
			Env:     status.Environment,
			RunSQL:  status.WillRunSQL,
			RunAuto: status.WillRunAutoMigrate,
			Applied: status.AppliedVersions,
			Pending: make([]string, 0, len(status.PendingMigrations)),
		}
		for _, m := range status.PendingMigrations {
			view.Pending = append(view.Pending, m.String())
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		fmt.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%v\n",
			view.Mode, view.Env, view.RunSQL, view.RunAuto, view.Applied)
		for _, name := range view.Pending {
			fmt.Printf("pending: %s\n", name)
		}
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down <version>",
	Short: "Roll back one applied SQL migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil || version <= 0 {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := database.RollbackMigration(cmd.Context(), db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Printf("rolled back migration %06d\n", version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.AddCommand(upCmd, autoCmd, statusCmd, downCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
