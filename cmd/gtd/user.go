package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/ui"
)

var userCmd = &cobra.Command{
	Use:     "user",
	GroupID: "admin",
	Short:   "Manage users and their Todoist tokens",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user and print its API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		user := &schema.User{Email: email, Name: name}
		if err := store.CreateUser(cmd.Context(), user); err != nil {
			return err
		}

		fmt.Printf("%s Created user %s\n", ui.RenderPass("✓"), user.Email)
		fmt.Println(ui.Box(
			ui.KeyValue("ID", user.ID),
			ui.KeyValue("API key", ui.RenderAccent(user.APIKey)),
		))
		fmt.Println(ui.RenderMuted("Store the API key now; use it as 'Authorization: Bearer <key>'."))
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Set or clear a user's Todoist API token",
	Long: `Set the Todoist API token used to sync a user's account.

On a terminal the token is read with a hidden prompt; otherwise it is read
from the first line of stdin:

  echo "$TODOIST_TOKEN" | gtd user token --email ann@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("email")
		clearToken, _ := cmd.Flags().GetBool("clear")

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := lookupUser(ctx, store, email)
		if err != nil {
			return err
		}

		if clearToken {
			if err := store.SetTodoistToken(ctx, user.ID, ""); err != nil {
				return err
			}
			fmt.Printf("%s Cleared Todoist token for %s\n", ui.RenderPass("✓"), user.Email)
			return nil
		}

		token, err := readToken(os.Stdin)
		if err != nil {
			return err
		}
		if err := store.SetTodoistToken(ctx, user.ID, token); err != nil {
			return err
		}
		fmt.Printf("%s Saved Todoist token for %s\n", ui.RenderPass("✓"), user.Email)
		return nil
	},
}

// readToken prompts on a terminal and reads one line otherwise.
func readToken(in *os.File) (string, error) {
	var token string
	if term.IsTerminal(int(in.Fd())) {
		err := huh.NewInput().
			Title("Todoist API token").
			Description("Settings → Integrations → Developer in Todoist").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("token must not be empty")
				}
				return nil
			}).
			Value(&token).
			Run()
		if err != nil {
			return "", err
		}
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		token = line
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token must not be empty")
	}
	return token, nil
}

func init() {
	userAddCmd.Flags().String("email", "", "email address (required)")
	userAddCmd.Flags().String("name", "", "display name")
	_ = userAddCmd.MarkFlagRequired("email")

	userTokenCmd.Flags().String("email", "", "email of the user (required)")
	userTokenCmd.Flags().Bool("clear", false, "remove the stored token")
	_ = userTokenCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd, userTokenCmd)
	rootCmd.AddCommand(userCmd)
}
