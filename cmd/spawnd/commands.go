package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spawnkit/spawnd/internal/config"
)

type clientFlags struct {
	APIUrl  string
	Timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon API base URL (default "+DefaultAPIURL+")")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 10*time.Second, "API request timeout")
}

func (f *clientFlags) dial() (*APIClient, error) {
	c := NewAPIClient(f.APIUrl, f.Timeout)
	if !c.IsReachable() {
		url := f.APIUrl
		if url == "" {
			url = DefaultAPIURL
		}
		return nil, fmt.Errorf("daemon not reachable at %s, start it with 'spawnd serve'", url)
	}
	return c, nil
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "spawnd",
		Short:         "Game server supervision daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newListCmd(),
		newStatusCmd(),
		newLifecycleCmd("start", "Start a server"),
		newLifecycleCmd("stop", "Stop a server gracefully"),
		newLifecycleCmd("restart", "Restart a server"),
		newLifecycleCmd("kill", "Force-terminate a server"),
		newSendCmd(),
		newConsoleCmd(),
	)
	return root
}

func newValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := config.Load(path)
			if err != nil {
				return err
			}
			cmd.Printf("ok: %d server(s) configured\n", len(fc.Servers))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "spawnd.toml", "path to config file")
	return cmd
}

func newListCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all servers and their states",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := f.dial()
			if err != nil {
				return err
			}
			raw, err := c.List()
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
	f.register(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "status <server-id>",
		Short: "Show one server's runtime snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.dial()
			if err != nil {
				return err
			}
			raw, err := c.Status(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
	f.register(cmd)
	return cmd
}

func newLifecycleCmd(action, short string) *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   action + " <server-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.dial()
			if err != nil {
				return err
			}
			raw, err := c.Lifecycle(args[0], action)
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
	f.register(cmd)
	return cmd
}

func newSendCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "send <server-id> <command...>",
		Short: "Send a console command to a running server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.dial()
			if err != nil {
				return err
			}
			command := args[1]
			for _, a := range args[2:] {
				command += " " + a
			}
			return c.SendCommand(args[0], command)
		},
	}
	f.register(cmd)
	return cmd
}

func newConsoleCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "console <server-id>",
		Short: "Print the buffered console history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.dial()
			if err != nil {
				return err
			}
			raw, err := c.Console(args[0])
			if err != nil {
				return err
			}
			var body struct {
				Lines []struct {
					Text string `json:"text"`
				} `json:"lines"`
			}
			if err := json.Unmarshal(raw, &body); err != nil {
				return err
			}
			for _, l := range body.Lines {
				cmd.Println(l.Text)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		cmd.Println(string(raw))
		return nil
	}
	cmd.Println(buf.String())
	return nil
}
