package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/supporttools/GoNetGuard/pkg/auth"
	"github.com/supporttools/GoNetGuard/pkg/version"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenSave    bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with the server's AUTH_JWT_SECRET",
	Long: "Issues an HS256 token for --subject. The signing secret is read from AUTH_JWT_SECRET;\n" +
		"it must match the server's. With --save the token is stored in the profile.",
	Run: func(cmd *cobra.Command, args []string) {
		secret := os.Getenv("AUTH_JWT_SECRET")
		if secret == "" {
			fail("AUTH_JWT_SECRET is not set")
		}
		token, exp, err := auth.IssueToken(tokenSubject, []byte(secret), tokenTTL)
		if err != nil {
			fail("failed to issue token: %v", err)
		}

		if !tokenSave {
			fmt.Println(token)
			fmt.Fprintln(os.Stderr, dimStyle.Render("expires "+exp.Local().Format(time.RFC3339)))
			return
		}
		profile, err := loadProfile(flagProfile)
		if err != nil {
			fail("%v", err)
		}
		profile.Token = token
		p, err := saveProfile(flagProfile, profile)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] token for %s saved to %s (expires %s)", tokenSubject, p, exp.Local().Format(time.RFC3339))))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show client and server versions",
	Run: func(cmd *cobra.Command, args []string) {
		field("client", version.Version)
		field("commit", version.GitCommit)

		ctx, cancel := commandContext()
		defer cancel()
		server, err := newClient().Version(ctx)
		if err != nil {
			fmt.Println(errorStyle.Render("[error] server unreachable: " + err.Error()))
			return
		}
		field("server", orDash(server["version"]))
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "user name the token identifies")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "store the token in the profile")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(tokenCmd, versionCmd)
}
