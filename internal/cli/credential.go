package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/giftkeep/giftkeep/internal/auth"
)

// NewHashCredentialCommand creates the hash-credential command.
func NewHashCredentialCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-credential <credential>",
		Short: "Hash an admin credential for the config file",
		Long: `Hash a credential with bcrypt for use as admin_credential_hash.

Example:
  giftkeep hash-credential "correct-horse-battery-staple"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashCredential(args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to hash credential", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	return cmd
}

// MintTokenOptions holds mint-token command configuration.
type MintTokenOptions struct {
	Subject string
	Role    string
	TTL     time.Duration
}

// NewMintTokenCommand creates the mint-token command.
func NewMintTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MintTokenOptions{}

	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Mint an API token",
		Long: `Mint a signed token for the admin HTTP API.

Uses the jwt_secret from the loaded config.

Example:
  giftkeep mint-token --subject alice --role admin --ttl 24h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMintToken(cmd.OutOrStdout(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&opts.Role, "role", string(auth.RoleAdmin), "token role (admin|viewer)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func runMintToken(stdout io.Writer, rootOpts *RootOptions, opts *MintTokenOptions) error {
	role := auth.Role(opts.Role)
	if role != auth.RoleAdmin && role != auth.RoleViewer {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid role %q: must be admin or viewer", opts.Role))
	}

	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	token, err := a.tokens.Mint(opts.Subject, role, opts.TTL)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to mint token", err)
	}
	fmt.Fprintln(stdout, token)
	return nil
}
