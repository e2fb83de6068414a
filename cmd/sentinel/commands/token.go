package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/session"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or check session tokens",
	Long: `Issue a session token for a user, or validate one.

Tokens are only useful across processes when session.store is redis; with the
memory store the session ends with this command.`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Open a session and print its token",
	Args:  cobra.NoArgs,
	RunE:  runTokenIssue,
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate <token>",
	Short: "Verify a token and its session",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenValidate,
}

func init() {
	tokenIssueCmd.Flags().String("user", "", "user id (required)")
	tokenIssueCmd.Flags().String("username", "", "display name carried in the token")
	tokenIssueCmd.Flags().String("role", "", "role carried in the token")
	tokenCmd.AddCommand(tokenIssueCmd, tokenValidateCmd)
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	username, _ := cmd.Flags().GetString("username")
	role, _ := cmd.Flags().GetString("role")
	if userID == "" {
		return errors.New("--user is required")
	}

	_, _, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	issued, err := engine.CreateSession(cmd.Context(), session.Identity{
		UserID:   userID,
		Username: username,
		Role:     role,
	}, audit.Meta{SourceIP: "127.0.0.1", UserAgent: "sentinel-cli"})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), issued)
}

func runTokenValidate(cmd *cobra.Command, args []string) error {
	_, _, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	claims, err := engine.ValidateToken(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	refresh, _ := engine.NeedsRefresh(args[0])
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"userId":       claims.UserID,
		"username":     claims.Username,
		"role":         claims.Role,
		"sessionId":    claims.SessionID,
		"expiresAt":    claims.ExpiresAt.Time,
		"needsRefresh": refresh,
	})
}
