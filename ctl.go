package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"murmur/config"
	"murmur/ipc"
)

const ctlUsage = `usage: murmur ctl [-socket path] <command> [key=value ...]

keys: capability, mode, state, model, path, level, enabled, limit

examples:
  murmur ctl ping
  murmur ctl start mode=hands-free
  murmur ctl dictate model=base.en
  murmur ctl downloadModel model=small.en
  murmur ctl setOverlayState state=processing mode=assistant
  murmur ctl subscribe`

// parseCommand turns "cmd key=value..." into a request.
func parseCommand(args []string) (ipc.Command, error) {
	if len(args) == 0 {
		return ipc.Command{}, errors.New("missing command")
	}
	cmd := ipc.Command{Cmd: args[0]}
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return cmd, fmt.Errorf("argument %q is not key=value", kv)
		}
		switch key {
		case "capability":
			cmd.Capability = value
		case "mode":
			cmd.Mode = value
		case "state":
			cmd.State = value
		case "model":
			cmd.Model = value
		case "path":
			cmd.Path = value
		case "level":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return cmd, fmt.Errorf("level: %w", err)
			}
			cmd.Level = ipc.Float64Ptr(f)
		case "enabled":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return cmd, fmt.Errorf("enabled: %w", err)
			}
			cmd.Enabled = ipc.BoolPtr(b)
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return cmd, fmt.Errorf("limit: %w", err)
			}
			cmd.Limit = n
		default:
			return cmd, fmt.Errorf("unknown key %q", key)
		}
	}
	return cmd, nil
}

// runCtl sends one command to a running murmur and prints each line it
// gets back as JSON.
func runCtl(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("murmur ctl", flag.ContinueOnError)
	socket := fs.String("socket", "", "IPC socket path (default from config)")
	configPath := fs.String("config", "", "Path to config.yaml")
	fs.Usage = func() { fmt.Fprintln(os.Stderr, ctlUsage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s\n", err, ctlUsage)
		return 2
	}

	path := *socket
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		path = cfg.IPC.Socket
	}

	c, err := ipc.Dial(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (is murmur running?)\n", err)
		return 1
	}
	defer c.Close()

	enc := json.NewEncoder(out)
	if cmd.Cmd == "subscribe" {
		if err := c.Subscribe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		for {
			ev, err := c.ReadEvent()
			if err != nil {
				return 0
			}
			enc.Encode(ev)
		}
	}

	resp, err := c.Call(cmd, func(ev ipc.Event) { enc.Encode(ev) })
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	enc.Encode(resp)
	if !resp.OK {
		return 1
	}
	return 0
}
