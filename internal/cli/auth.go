package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tasker/internal/core"
)

var (
	loginEmail         string
	loginPassword      string
	loginPasswordStdin bool

	registerUsername      string
	registerEmail         string
	registerPassword      string
	registerPasswordStdin bool
)

// resolvePassword picks the password from the flag, then stdin when
// fromStdin is set, then TASKER_PASSWORD.
func resolvePassword(flagValue string, fromStdin bool, stdin io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", fmt.Errorf("no password on stdin")
		}
		return line, nil
	}
	if env := os.Getenv("TASKER_PASSWORD"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("password required: use --password, --password-stdin or TASKER_PASSWORD")
}

func requireAuthStore() error {
	if Auth == nil {
		return fmt.Errorf("auth store not initialized")
	}
	return nil
}

// requireLogin guards commands that call authenticated endpoints.
func requireLogin() error {
	if err := requireAuthStore(); err != nil {
		return err
	}
	if err := Auth.RequireAuth(); err != nil {
		return fmt.Errorf("%w: run 'tasker login' first", err)
	}
	return nil
}

// explainAuth adds a hint to errors caused by a missing or rejected session.
func explainAuth(err error) error {
	if err != nil && core.IsAuthFailure(err) {
		return fmt.Errorf("%w (session missing or expired; run 'tasker login')", err)
	}
	return err
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long: `Exchange an email and password for a session token. The token is stored
in credentials.yaml in the data directory and sent with every request until
'tasker logout'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuthStore(); err != nil {
			return err
		}
		password, err := resolvePassword(loginPassword, loginPasswordStdin, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := Auth.Login(commandContext(cmd), loginEmail, password); err != nil {
			return err
		}
		user, _ := Auth.User()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", user.Email)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	Long:  "Create a new account. Registration does not sign you in; run 'tasker login' afterwards.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuthStore(); err != nil {
			return err
		}
		password, err := resolvePassword(registerPassword, registerPasswordStdin, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := Auth.Register(commandContext(cmd), registerUsername, registerEmail, password); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Run 'tasker login' to sign in.\n", strings.TrimSpace(registerEmail))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuthStore(); err != nil {
			return err
		}
		if err := Auth.Logout(); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuthStore(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !Auth.IsAuthenticated() {
			_, _ = fmt.Fprintln(out, "Not logged in.")
			return nil
		}
		user, ok := Auth.User()
		if !ok {
			_, _ = fmt.Fprintln(out, "Logged in (unknown user: identity is not stored with the session).")
			return nil
		}
		line := "Logged in as " + user.Email
		if user.Role != "" {
			line += " (" + user.Role + ")"
		}
		_, _ = fmt.Fprintln(out, line+".")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	_ = loginCmd.MarkFlagRequired("email")
	loginCmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	registerCmd.Flags().StringVar(&registerUsername, "username", "", "Display name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Account password")
	registerCmd.Flags().BoolVar(&registerPasswordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	registerCmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
