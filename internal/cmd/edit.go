package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vanpelt/livesync/internal/client"
	"github.com/vanpelt/livesync/internal/config"
	"github.com/vanpelt/livesync/internal/protocol"
)

var editCmd = &cobra.Command{
	Use:   "edit <version> <resource>",
	Short: "✏️  Edit a stored resource from stdin",
	Long: `# ✏️  Edit a Resource

**Join the editing channel** of a version and stream field edits read from stdin, one per line.

## 📝 Input

- **field=value** sets a field; values that parse as JSON keep their type, anything else is a string
- **-field** clears that field on the server

Edits are coalesced and sent as at most one patch per **--window** (default **flush_window** from the config file). Pending edits are flushed when stdin ends.

## 💡 Examples

` + "```bash\necho 'tag=\"v2\"' | livesync edit v1 img-1\nlivesync edit v1 img-1 --editor alice\n```",
	Args: cobra.ExactArgs(2),
	RunE: runEdit,
}

var editWindow time.Duration

func init() {
	rootCmd.AddCommand(editCmd)
	addClientFlags(editCmd)
	editCmd.Flags().DurationVar(&editWindow, "window", 0, "Patch coalescing window (default flush_window from config)")
}

// coalescingWindow prefers an explicit --window over the configured flush window
func coalescingWindow(cmd *cobra.Command) (time.Duration, error) {
	if cmd.Flags().Changed("window") {
		if editWindow <= 0 {
			return 0, fmt.Errorf("--window must be positive")
		}
		return editWindow, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, err
	}
	return cfg.FlushWindow, nil
}

// countingSender tracks patches that the server has not acknowledged yet
type countingSender struct {
	*client.Client
	outstanding atomic.Int64
}

func (s *countingSender) Send(t protocol.MessageType, payload any) error {
	if t == protocol.TypePatch {
		s.outstanding.Add(1)
	}
	err := s.Client.Send(t, payload)
	if err != nil && t == protocol.TypePatch {
		s.outstanding.Add(-1)
	}
	return err
}

// parseEdit turns one input line into a field edit. reset is true for -field.
func parseEdit(line string) (field string, value any, reset bool, err error) {
	if name, ok := strings.CutPrefix(line, "-"); ok {
		if name == "" {
			return "", nil, false, fmt.Errorf("missing field name after '-'")
		}
		return name, nil, true, nil
	}
	name, raw, ok := strings.Cut(line, "=")
	if !ok || name == "" {
		return "", nil, false, fmt.Errorf("expected field=value, got %q", line)
	}
	name = strings.TrimSpace(name)
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	return name, value, false, nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	versionID, resourceID := args[0], args[1]
	window, err := coalescingWindow(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newClient()
	sender := &countingSender{Client: c}
	acked := make(chan struct{}, 1)

	c.SetMessageHandler(func(msg protocol.Message) {
		switch p := msg.Payload.(type) {
		case *protocol.PatchReceivedPayload:
			if sender.outstanding.Add(-1) <= 0 {
				select {
				case acked <- struct{}{}:
				default:
				}
			}
		case *protocol.UpdatePayload:
			data, _ := json.Marshal(p.Fields)
			fmt.Fprintf(os.Stderr, "%s %s\n", mutedStyle.Render("update"), data)
		case *protocol.PresencePayload:
			names := make([]string, 0, len(p.Editors))
			for _, e := range p.Editors {
				names = append(names, e.ID)
			}
			fmt.Fprintf(os.Stderr, "%s %s\n", mutedStyle.Render("editing:"), strings.Join(names, ", "))
		case *protocol.DeletedPayload:
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("resource %s was deleted", p.ID)))
			stop()
		case *protocol.ErrorPayload:
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("%s: %s", p.Code, p.Message)))
		}
	})
	c.SetErrorHandler(func(err error) {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
	})

	if err := c.Connect(ctx, clientFlags.server, client.EditingPath(versionID)); err != nil {
		return err
	}
	defer c.Close()

	if err := c.Watch(protocol.WatchRequestPayload{ResourceID: resourceID}); err != nil {
		return err
	}

	editor := client.NewEditor(sender, resourceID, window)
	defer editor.Close()
	if err := editor.Join(); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

read:
	for {
		select {
		case <-ctx.Done():
			break read
		case <-c.Done():
			return fmt.Errorf("connection to %s closed", clientFlags.server)
		case line, ok := <-lines:
			if !ok {
				break read
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			field, value, reset, err := parseEdit(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
				continue
			}
			if reset {
				if err := editor.Reset(field); err != nil {
					return err
				}
				continue
			}
			editor.Set(field, value)
		}
	}

	editor.Flush()
	if sender.outstanding.Load() > 0 {
		select {
		case <-acked:
		case <-time.After(2 * time.Second):
			fmt.Fprintln(os.Stderr, errorStyle.Render("timed out waiting for the server to acknowledge edits"))
		}
	}
	return editor.Leave()
}
