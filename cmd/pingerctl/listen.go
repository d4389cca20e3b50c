package main

import (
	"fmt"
	"pinger/domain"
	"pinger/protocol"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newListenCmd(a *app) *cobra.Command {
	var (
		identity  domain.Identity
		heartbeat time.Duration
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Log in, open a channel and print every frame received",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.client()
			if err != nil {
				return err
			}
			session, err := c.Login(ctx, identity)
			if err != nil {
				return err
			}
			listener, err := c.Listen(ctx, session.Token)
			if err != nil {
				return err
			}
			defer func() { _ = listener.Close() }()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s as %s\n",
				a.paint(color.Style{color.FgCyan, color.OpBold}, "listening"), session.Identity.String())

			if heartbeat > 0 {
				go func() {
					ticker := time.NewTicker(heartbeat)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							if err := listener.Send(protocol.Heartbeat{}); err != nil {
								return
							}
						}
					}
				}()
			}

			for {
				frame, err := listener.Next()
				if err != nil {
					return err
				}
				if a.asJSON {
					b, err := protocol.Encode(frame)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, string(b))
					continue
				}
				_, _ = fmt.Fprintln(out, a.describe(frame))
			}
		},
	}
	identityFlags(cmd, &identity, "")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 30*time.Second, "heartbeat period, 0 disables")
	return cmd
}

func (a *app) describe(frame protocol.Frame) string {
	switch f := frame.(type) {
	case protocol.ClientList:
		names := lo.Map(f.Clients, func(i domain.Identity, _ int) string { return i.String() })
		return fmt.Sprintf("%s %s", a.paint(color.Style{color.FgBlue}, "online"), strings.Join(names, ", "))
	case protocol.Ping:
		return fmt.Sprintf("%s from %s at %s", a.paint(color.Style{color.FgGreen, color.OpBold}, "ping"),
			f.From.String(), formatTime(f.At))
	case protocol.QueuedPing:
		return fmt.Sprintf("%s from %s at %s", a.paint(color.Style{color.FgYellow}, "queued ping"),
			f.From.String(), formatTime(f.At))
	case protocol.Pong:
		return a.paint(color.Style{color.FgGray}, "pong")
	case protocol.Error:
		return fmt.Sprintf("%s %s", a.paint(color.Style{color.FgRed}, "error"), f.Message)
	default:
		return string(frame.FrameType())
	}
}
