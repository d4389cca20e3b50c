package main

import (
	"encoding/json"
	"fmt"
	"io"
	"pinger/client"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

// Config holds the CLI defaults, flags override them.
type Config struct {
	Addr    string `envconfig:"PINGER_ADDR" default:"localhost:8000"`
	Colours bool   `envconfig:"PINGER_COLOURS" default:"true"`
}

type app struct {
	config Config
	asJSON bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "pingerctl",
		Short:         "pingerctl talks to a pinger server",
		Long:          "pingerctl logs in, sends pings, lists online clients, listens on a WebSocket channel and reads server health.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := envconfig.Process("", &a.config); err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return fmt.Errorf("config error: %w", err)
		}
		return rootCmd
	}

	rootCmd.PersistentFlags().StringVar(&a.config.Addr, "addr", a.config.Addr, "server address (host:port or URL)")
	rootCmd.PersistentFlags().BoolVar(&a.config.Colours, "colours", a.config.Colours, "colourise output")
	rootCmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(
		newLoginCmd(a),
		newPingCmd(a),
		newClientsCmd(a),
		newListenCmd(a),
		newHealthCmd(a),
	)
	return rootCmd
}

func (a *app) client() (*client.Client, error) {
	return client.New(a.config.Addr)
}

func (a *app) paint(style color.Style, text string) string {
	if !a.config.Colours {
		return text
	}
	return style.Render(text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
