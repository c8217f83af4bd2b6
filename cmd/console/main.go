// Command console is a terminal admin console: it shows the live pending
// queue and approves or denies requests.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"giftdesk/internal/apiclient"
	"giftdesk/internal/console"
	"giftdesk/internal/display"
	"giftdesk/internal/models"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	username  string
	password  string
)

var rootCmd = &cobra.Command{
	Use:          "console",
	Short:        "Terminal admin console for giftdesk approvals",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if password == "" {
			password = os.Getenv("GIFTDESK_ADMIN_PASSWORD")
		}

		api := apiclient.New(serverURL, nil)
		res, err := api.Login(ctx, username, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		defer func() { _ = api.Logout(context.Background()) }()

		var c *console.Console
		var renderMu sync.Mutex
		render := func() {
			renderMu.Lock()
			defer renderMu.Unlock()
			draw(c)
		}
		c = console.New(api, console.NewSocketClient(api), res.Admin, console.Options{OnChange: render})

		go func() { _ = c.Run(ctx) }()
		go readCommands(ctx, c, stop)

		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8375", "giftdesk API base URL")
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "admin username (required)")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "admin password (or GIFTDESK_ADMIN_PASSWORD)")
	_ = rootCmd.MarkFlagRequired("username")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func draw(c *console.Console) {
	if c == nil {
		return
	}
	fmt.Print("\033[H\033[2J")
	fmt.Printf("giftdesk console  %s  [%s]\n", c.Nav.Username(), c.State())

	sections := make([]string, 0, len(models.AllSections))
	for _, s := range c.Nav.Sections() {
		sections = append(sections, string(s))
	}
	fmt.Printf("sections: %s\n\n", strings.Join(sections, " | "))

	if notice := c.Notice(); notice != "" {
		fmt.Printf("! %s\n\n", notice)
	}

	items := c.Pending.Items()
	if len(items) == 0 {
		fmt.Println("No pending requests.")
	}
	for _, req := range items {
		line := fmt.Sprintf("#%-5d %-12s %-28s %s", req.ID, req.Kind,
			display.MaskGiftID(req.MemberIdentifier), req.CreatedAt.Local().Format("15:04:05"))
		if req.Kind == models.RequestKindVerification {
			line += fmt.Sprintf("  code %s", req.Code)
			if req.DeviceLabel != "" {
				line += fmt.Sprintf(" (%s)", req.DeviceLabel)
			}
		}
		fmt.Println(line)
	}
	fmt.Print("\n[a <id>] approve  [d <id>] deny  [q] quit\n> ")
}

func readCommands(ctx context.Context, c *console.Console, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "q", "quit":
			quit()
			return
		case "a", "approve", "d", "deny":
			if len(fields) < 2 {
				continue
			}
			id, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				continue
			}
			decision := models.DecisionApprove
			if fields[0] == "d" || fields[0] == "deny" {
				decision = models.DecisionDeny
			}
			// Failures surface as the console notice.
			_ = c.Resolve(ctx, uint(id), decision)
		}
	}
	quit()
}
