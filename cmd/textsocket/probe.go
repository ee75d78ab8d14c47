package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	websocket "github.com/cmz2012/textsocket"
)

func probeCmd() *cobra.Command {
	var (
		messages []string
		wait     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe <ws-url>",
		Short: "Connect to a server, print its greeting and send text frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			c, err := websocket.Dial(ctx, args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "greeting: %s\n", c.Greeting())

			for _, msg := range messages {
				c.SetDeadline(time.Now().Add(wait))
				if err := c.SendText(msg); err != nil {
					return err
				}
				f, err := c.ReadFrame()
				if err != nil {
					if errors.Is(err, os.ErrDeadlineExceeded) {
						continue
					}
					return err
				}
				fmt.Fprintf(out, "reply: %s\n", f.Text())
			}
			c.SetDeadline(time.Now().Add(wait))
			return c.SendClose(websocket.CloseNormalClosure, "")
		},
	}
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "text message to send, repeatable")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for the handshake and each reply")
	return cmd
}
