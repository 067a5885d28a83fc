// Command stafftoken mints staff bearer tokens and bcrypt hashes for
// STAFF_ACCOUNTS without going through the login endpoint.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	"github.com/martialartscode/pta-portal/backend/internal/config"
)

func main() {
	_ = godotenv.Load()
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "stafftoken",
		Short:        "Staff credential helpers for the PTA chat backend",
		SilenceUsage: true,
	}
	cmd.AddCommand(buildMintCmd(), buildVerifyCmd(), buildHashPasswordCmd())
	return cmd
}

func buildMintCmd() *cobra.Command {
	var (
		email  string
		name   string
		role   string
		expiry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a staff token with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := tokenService(expiry)
			if err != nil {
				return err
			}
			token, err := tokens.Generate(auth.Identity{Email: email, Name: name, Role: role})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Staff email, used as the token subject")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "Role: admin or instructor")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "Token lifetime (defaults to JWT_EXPIRY)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func buildVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Check a token and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := tokenService(0)
			if err != nil {
				return err
			}
			identity, err := tokens.VerifyStaff(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subject=%s email=%s role=%s\n", identity.Subject, identity.Email, identity.Role)
			return nil
		},
	}
}

func buildHashPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print a bcrypt hash or a STAFF_ACCOUNTS .env line",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			if email == "" {
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), staffAccountsLine(email, hash))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Print a STAFF_ACCOUNTS line for this email")
	return cmd
}

// staffAccountsLine renders a .env line for one account. The value is single
// quoted because godotenv expands $ in unquoted and double-quoted values,
// which would eat the cost and salt of the bcrypt hash.
func staffAccountsLine(email, hash string) string {
	return fmt.Sprintf("STAFF_ACCOUNTS='%s:%s'", strings.ToLower(strings.TrimSpace(email)), hash)
}

func tokenService(expiry time.Duration) (*auth.JWTService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if expiry <= 0 {
		expiry = cfg.Auth.JWTExpiry
	}
	return auth.NewJWTService(cfg.Auth.JWTSecret, expiry), nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password on stdin")
	}
	return password, nil
}
