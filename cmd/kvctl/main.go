// kvctl sends single requests to a storage-http server.
//
// Usage:
//
//	kvctl add user '{"name":"ann"}'
//	kvctl get user
//	kvctl update user '"bob"'
//	kvctl delete user
//	kvctl raw PATCH /storage/user
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	storagehttp "github.com/raniellyferreira/storage-http"
	"github.com/raniellyferreira/storage-http/client"
)

var (
	addr    string
	base    string
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "kvctl",
	Short:         "Talk to a storage-http server",
	Version:       storagehttp.VersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", "127.0.0.1:8080", "server address")
	rootCmd.PersistentFlags().StringVarP(&base, "base", "b", "storage", "base path keys live under")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", client.DefaultTimeout, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print the status line and headers")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "add <key> <json-value>",
			Short: "Add a key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, func(ctx context.Context, c *client.Client) (*client.Response, error) {
					return c.Add(ctx, args[0], json.RawMessage(args[1]))
				})
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value stored under a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, func(ctx context.Context, c *client.Client) (*client.Response, error) {
					return c.Get(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "update <key> <json-value>",
			Short: "Replace the value stored under a key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, func(ctx context.Context, c *client.Client) (*client.Response, error) {
					return c.Update(ctx, args[0], json.RawMessage(args[1]))
				})
			},
		},
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Delete a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, func(ctx context.Context, c *client.Client) (*client.Response, error) {
					return c.Delete(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "raw <method> <path> [body]",
			Short: "Send an arbitrary request",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				var body []byte
				if len(args) == 3 {
					body = []byte(args[2])
				}
				return send(cmd, func(ctx context.Context, c *client.Client) (*client.Response, error) {
					return c.Do(ctx, args[0], args[1], body)
				})
			},
		},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kvctl:", err)
		os.Exit(1)
	}
}

type request func(ctx context.Context, c *client.Client) (*client.Response, error)

func send(cmd *cobra.Command, do request) error {
	c := client.New(addr, client.WithBaseRoot(base), client.WithTimeout(timeout))

	resp, err := do(cmd.Context(), c)
	if err != nil {
		return err
	}

	printResponse(cmd.OutOrStdout(), resp)
	if !resp.OK() {
		return fmt.Errorf("server answered %s", resp.StatusLine)
	}
	return nil
}

func printResponse(w io.Writer, resp *client.Response) {
	if verbose {
		fmt.Fprintln(w, resp.StatusLine)
		for name, value := range resp.Headers {
			fmt.Fprintf(w, "%s: %s\n", name, value)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, string(resp.Body))
}
