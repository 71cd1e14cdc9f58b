package command

// root.go defines the root command for gamebridgectl and its global flags.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gamebridge/cmd/cli/command/client"
)

var (
	apiURL string // control surface URL
	token  string // bearer token (jwt)
	secret string // mint a token locally from the shared secret
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gamebridgectl",
	Short: "gamebridgectl - control a running channel server or client",
	Long: `gamebridgectl talks to the HTTP control surface of channel-server or
channel-client. It can:
- show whether a peer is attached and the session counters
- push a message to the peer, synchronously or through the outbound queue

Use "gamebridgectl command -h" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("GAMEBRIDGE_API", "http://127.0.0.1:8080"), "control surface URL (server side :8080, client side :8081)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GAMEBRIDGE_TOKEN"), "bearer token for guarded endpoints")
	rootCmd.PersistentFlags().StringVar(&secret, "secret", os.Getenv("CONTROL_JWT_SECRET"), "shared secret used to mint a token when --token is empty")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetClient returns an HTTP client carrying the configured token, minting
// one from the secret when needed.
func GetClient() (*client.HTTPClient, error) {
	c := client.NewHTTPClient(apiURL)
	tok := token
	if tok == "" && secret != "" {
		var err error
		tok, err = mintToken(secret)
		if err != nil {
			return nil, err
		}
	}
	if tok != "" {
		c.SetToken(tok)
	}
	return c, nil
}
