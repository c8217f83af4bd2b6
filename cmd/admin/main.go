// Command admin manages giftdesk operator accounts from the shell.
package main

import (
	"fmt"
	"os"

	"giftdesk/internal/config"
	"giftdesk/internal/database"
	"giftdesk/internal/repository"
	"giftdesk/internal/service"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool

	admins *service.AdminService
)

var rootCmd = &cobra.Command{
	Use:           "admin <command>",
	Short:         "Manage giftdesk admin accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := database.Connect(cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		admins = service.NewAdminService(repository.NewAdminRepository(db))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.AddCommand(createCmd, listCmd, setPermissionsCmd, resetPasswordCmd, disableCmd, enableCmd, auditPasswordsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
