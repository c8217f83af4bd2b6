package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"giftdesk/internal/models"
	"giftdesk/internal/service"

	"github.com/spf13/cobra"
)

var (
	createPassword string
	createRole     string
	createSections string

	permRole     string
	permSections string

	resetPassword string
)

var createCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an admin account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := admins.Create(context.Background(), nil, service.CreateAdminInput{
			Username:    args[0],
			Password:    createPassword,
			Role:        models.AdminRole(createRole),
			Permissions: parseSections(createSections),
		})
		if err != nil {
			return err
		}
		return printAdmin(admin)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List admin accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := admins.List(context.Background(), nil)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(list)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tSECTIONS\tDISABLED")
		for _, a := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", a.ID, a.Username, a.Role, joinSections(a.Permissions), a.Disabled)
		}
		return w.Flush()
	},
}

var setPermissionsCmd = &cobra.Command{
	Use:   "set-permissions <id>",
	Short: "Replace an admin's role and section permissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAdminID(args[0])
		if err != nil {
			return err
		}
		admin, err := admins.SetPermissions(context.Background(), nil, id, models.AdminRole(permRole), parseSections(permSections))
		if err != nil {
			return err
		}
		return printAdmin(admin)
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <id>",
	Short: "Store a fresh bcrypt hash for an admin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAdminID(args[0])
		if err != nil {
			return err
		}
		if err := admins.ResetPassword(context.Background(), id, resetPassword); err != nil {
			return err
		}
		fmt.Printf("Password reset for admin %d\n", id)
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Lock an admin account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDisabled(args[0], true)
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Unlock an admin account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDisabled(args[0], false)
	},
}

var auditPasswordsCmd = &cobra.Command{
	Use:   "audit-passwords",
	Short: "Report admins whose password hash is not bcrypt",
	RunE: func(cmd *cobra.Command, args []string) error {
		findings, err := admins.AuditPasswords(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(findings)
		}
		if len(findings) == 0 {
			fmt.Println("All admin passwords use bcrypt.")
			return nil
		}
		fmt.Printf("%d admin(s) need a password reset before they can sign in:\n", len(findings))
		for _, f := range findings {
			fmt.Printf("  %d  %-20s  %s\n", f.AdminID, f.Username, f.Scheme)
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createPassword, "password", "", "initial password (required)")
	createCmd.Flags().StringVar(&createRole, "role", string(models.AdminRoleScoped), "super or scoped")
	createCmd.Flags().StringVar(&createSections, "sections", "", "comma separated sections for scoped admins")
	_ = createCmd.MarkFlagRequired("password")

	setPermissionsCmd.Flags().StringVar(&permRole, "role", string(models.AdminRoleScoped), "super or scoped")
	setPermissionsCmd.Flags().StringVar(&permSections, "sections", "", "comma separated sections")

	resetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "new password (required)")
	_ = resetPasswordCmd.MarkFlagRequired("password")
}

func setDisabled(raw string, disabled bool) error {
	id, err := parseAdminID(raw)
	if err != nil {
		return err
	}
	if err := admins.SetDisabled(context.Background(), id, disabled); err != nil {
		return err
	}
	state := "enabled"
	if disabled {
		state = "disabled"
	}
	fmt.Printf("Admin %d %s\n", id, state)
	return nil
}

func parseAdminID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid admin id %q", raw)
	}
	return uint(id), nil
}

func parseSections(raw string) []models.Section {
	var out []models.Section
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, models.Section(part))
		}
	}
	return out
}

func joinSections(sections []models.Section) string {
	if len(sections) == 0 {
		return "-"
	}
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func printAdmin(a *models.Admin) error {
	if jsonOutput {
		return printJSON(a)
	}
	fmt.Printf("Admin %d %s role=%s sections=%s\n", a.ID, a.Username, a.Role, joinSections(a.Permissions))
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
