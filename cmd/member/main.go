// Command member submits a login or verification request and waits for an
// admin to decide it, the way the member wait page does.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftdesk/internal/apiclient"
	"giftdesk/internal/models"
	"giftdesk/internal/waiter"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	identifier   string
	code         string
	device       string
	pollInterval time.Duration
	stillAfter   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "member <login|verification>",
	Short:        "Submit a request and wait for its approval",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api := apiclient.New(serverURL, nil)
		sub, err := api.Submit(ctx, apiclient.SubmitInput{
			Kind:             models.RequestKind(args[0]),
			MemberIdentifier: identifier,
			DeviceLabel:      device,
			Code:             code,
		})
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		fmt.Printf("Request #%d submitted, waiting for approval...\n", sub.ID)

		w := waiter.New(api, waiter.NewMemberSocket(api), sub.ID, sub.Token, waiter.Options{
			PollInterval:      pollInterval,
			StillWaitingAfter: stillAfter,
			OnStillWaiting: func() {
				fmt.Println("Still waiting. An admin will review your request shortly.")
			},
		})

		res, err := w.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = api.Cancel(context.Background(), sub.ID, sub.Token)
				fmt.Println("Request withdrawn.")
				return nil
			}
			return err
		}

		switch res.Outcome {
		case waiter.OutcomeRedirect:
			fmt.Printf("Approved. Continue at %s\n", res.RedirectURL)
		case waiter.OutcomeRejected:
			fmt.Println("Your request was declined.")
		case waiter.OutcomeCancelled:
			fmt.Println("Your request was cancelled.")
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8375", "giftdesk API base URL")
	rootCmd.Flags().StringVar(&identifier, "id", "", "member email or username (required)")
	rootCmd.Flags().StringVar(&code, "code", "", "verification code")
	rootCmd.Flags().StringVar(&device, "device", "", "device label")
	rootCmd.Flags().DurationVar(&pollInterval, "poll", 3*time.Second, "status poll interval")
	rootCmd.Flags().DurationVar(&stillAfter, "still-waiting-after", time.Minute, "show a still waiting notice after")
	_ = rootCmd.MarkFlagRequired("id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
