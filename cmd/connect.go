package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect your calendar account",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer e.Close(context.Background())

		ctx := cmd.Context()
		var tok *oauth2.Token
		switch e.cfg.Calendar.Provider {
		case "google":
			oc := e.cfg.Calendar.Google.OAuthConfig()
			url := oc.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Println("Open this link in your browser and allow access to your calendar:")
			fmt.Println()
			fmt.Println("  " + url)
			fmt.Println()
			fmt.Print("Paste the authorization code: ")

			code, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code entered")
			}
			tok, err = oc.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("exchange authorization code: %w", err)
			}
		case "http":
			access, _ := cmd.Flags().GetString("token")
			if access == "" {
				access = os.Getenv("LESSONSYNC_CALENDAR_TOKEN")
			}
			if access == "" {
				return fmt.Errorf("--token or LESSONSYNC_CALENDAR_TOKEN is required for the http provider")
			}
			tok = &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
		default:
			fmt.Printf("The %s calendar needs no account; it is always connected.\n", e.cfg.Calendar.Provider)
			return nil
		}

		if err := e.session.Connect(ctx, tok); err != nil {
			return fmt.Errorf("save calendar connection: %w", err)
		}
		fmt.Printf("Calendar connected (%s).\n", e.session.Account())
		fmt.Println("Run `lessonsync sync` to push lessons that are waiting.")
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the stored calendar credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer e.Close(context.Background())

		if err := e.session.Disconnect(cmd.Context()); err != nil {
			return fmt.Errorf("disconnect: %w", err)
		}
		fmt.Println("Calendar disconnected. Lessons stay on this machine and sync again once you reconnect.")
		return nil
	},
}

func init() {
	connectCmd.Flags().String("token", "", "Access token for the http provider")
}
