package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vanpelt/livesync/internal/config"
	"github.com/vanpelt/livesync/internal/middleware"
	"github.com/vanpelt/livesync/internal/models"
)

var tokenCmd = &cobra.Command{
	Use:   "token <editor-id>",
	Short: "🔑 Mint a bearer token for an editor",
	Long: `# 🔑 Mint a Token

**Sign an HS256 token** with the server's **auth.secret** so a client can connect as the given editor.

## 💡 Examples

` + "```bash\nexport LIVESYNC_TOKEN=$(livesync token alice --name 'Alice')\nlivesync edit v1 img-1\n```",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if !cfg.AuthEnabled() {
			return fmt.Errorf("no auth secret configured; set auth.secret or LIVESYNC_AUTH_SECRET")
		}

		token, err := middleware.GenerateToken(cfg.Auth.Secret, models.Editor{ID: args[0], Name: tokenName}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var (
	tokenName string
	tokenTTL  time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name carried in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "How long the token stays valid")
}
