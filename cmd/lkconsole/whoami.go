package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
)

func whoamiCmd(o *globalOptions) *cobra.Command {
	var (
		matricule string
		password  string
		refresh   bool
		keep      bool
	)

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Sign in and print the operator's roles and permissions",
		Long: `Sign in with a matricule and password and print the operator profile.
The password is read from --password or LKC_PASSWORD. The session is logged
out afterwards unless --keep is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("LKC_PASSWORD")
			}
			if matricule == "" || password == "" {
				return fmt.Errorf("--matricule and a password are required")
			}

			h, err := o.openClient("")
			if err != nil {
				return err
			}
			defer h.cleanup()

			ctx := cmd.Context()
			user, err := h.client.Login(ctx, lkcosmetics.Credentials{Matricule: matricule, Password: password})
			if err != nil {
				return err
			}

			if refresh {
				if _, err := h.client.RefreshToken(ctx); err != nil {
					return fmt.Errorf("refresh: %w", err)
				}
			}

			perms := h.client.Authorizer().Effective(user)
			sort.Strings(perms)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", user.DisplayName(), user.Matricule)
			fmt.Fprintf(out, "  id:          %d\n", user.ID)
			fmt.Fprintf(out, "  email:       %s\n", user.Email)
			fmt.Fprintf(out, "  roles:       %s\n", strings.Join(user.RoleNames(), ", "))
			fmt.Fprintf(out, "  permissions: %s\n", strings.Join(perms, ", "))
			stats := h.client.RefreshStats()
			fmt.Fprintf(out, "  refreshes:   %d\n", stats.Exchanges)

			if !keep {
				h.client.Logout(ctx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&matricule, "matricule", "", "operator matricule")
	cmd.Flags().StringVar(&password, "password", "", "operator password (prefer LKC_PASSWORD)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "exercise a token refresh after signing in")
	cmd.Flags().BoolVar(&keep, "keep", false, "do not log out afterwards")
	return cmd
}
