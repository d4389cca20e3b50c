package main

import (
	"fmt"
	"pinger/domain"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var identity domain.Identity
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a fresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			session, err := c.Login(cmd.Context(), identity)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), session)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), session.Token)
			return err
		},
	}
	identityFlags(cmd, &identity, "")
	return cmd
}

func newPingCmd(a *app) *cobra.Command {
	var (
		token string
		to    domain.Identity
	)
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping another client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			result, err := c.Ping(cmd.Context(), token, nil, to)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			style := color.Style{color.FgGreen}
			if result.Result == domain.Queued {
				style = color.Style{color.FgYellow}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (online=%t)\n",
				a.paint(style, string(result.Result)), to.String(), result.TargetOnline)
			return err
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token returned by login")
	_ = cmd.MarkFlagRequired("token")
	identityFlags(cmd, &to, "to-")
	return cmd
}

func newClientsCmd(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List online clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			clients, err := c.Clients(cmd.Context(), token)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), clients)
			}
			table := newTable(cmd, "#", "Username", "Unique ID")
			for i, identity := range clients {
				table.Append([]string{strconv.Itoa(i + 1), identity.Username, identity.UniqueID})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token, when the server protects the list")
	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health and counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), health)
			}
			status := a.paint(color.Style{color.FgGreen}, health.Status)
			if health.Status != "ok" {
				status = a.paint(color.Style{color.FgRed}, health.Status)
			}
			table := newTable(cmd, "Metric", "Value")
			table.AppendBulk([][]string{
				{"status", status},
				{"connected users", strconv.Itoa(health.ConnectedUsers)},
				{"queued pings", strconv.Itoa(health.QueuedPings)},
				{"active sessions", strconv.Itoa(health.ActiveSessions)},
				{"pings delivered", strconv.FormatUint(health.PingsDelivered, 10)},
				{"pings queued", strconv.FormatUint(health.PingsQueued, 10)},
				{"pings dropped", strconv.FormatUint(health.PingsDropped, 10)},
				{"rss", fmt.Sprintf("%.1f MiB", float64(health.RSSBytes)/(1<<20))},
				{"cpu", fmt.Sprintf("%.1f%%", health.CPUPercent)},
				{"goroutines", strconv.Itoa(health.Goroutines)},
			})
			table.Render()
			return nil
		},
	}
}

func identityFlags(cmd *cobra.Command, identity *domain.Identity, prefix string) {
	cmd.Flags().StringVar(&identity.Username, prefix+"username", "", "display name")
	cmd.Flags().StringVar(&identity.UniqueID, prefix+"unique-id", "", "unique id")
	_ = cmd.MarkFlagRequired(prefix + "unique-id")
	if prefix == "" {
		_ = cmd.MarkFlagRequired("username")
	}
}

func newTable(cmd *cobra.Command, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.TimeOnly)
}
