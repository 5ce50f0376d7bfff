package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/vanpelt/livesync/internal/client"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/services"
)

var watchCmd = &cobra.Command{
	Use:   "watch <node> <prefix>",
	Short: "👀 Watch the containers of a node prefix",
	Long: `# 👀 Watch Containers

**Subscribe to the status channel** of a node and render the merged container list every time the server pushes one.

Lists are merged into the local view, so a partial or empty push never erases containers you already know about. Removals arrive as explicit messages.

## 💡 Examples

` + "```bash\nlivesync watch node-1 shop\nlivesync watch node-1 shop --once\n```",
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

// Connection flags shared by the client commands
var clientFlags struct {
	server string
	token  string
	editor string
}

var watchOnce bool

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&clientFlags.server, "server", "s", "http://localhost:8090", "livesync server URL")
	cmd.Flags().StringVar(&clientFlags.token, "token", os.Getenv("LIVESYNC_TOKEN"), "Bearer token (defaults to $LIVESYNC_TOKEN)")
	cmd.Flags().StringVar(&clientFlags.editor, "editor", "", "Editor id to claim when the server runs without auth")
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addClientFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Print the first snapshot and exit (waits until the node reports containers)")
}

func newClient() *client.Client {
	return client.New(client.Options{Token: clientFlags.token, Editor: clientFlags.editor})
}

func runWatch(cmd *cobra.Command, args []string) error {
	nodeID, prefix := args[0], args[1]
	resourceID := services.StatusResourceID(nodeID, prefix)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interactive := isatty.IsTerminal(os.Stdout.Fd())
	view := client.NewContainerView(resourceID, nil)
	first := make(chan struct{})
	var firstSeen bool

	c := newClient()
	c.SetMessageHandler(func(msg protocol.Message) {
		if msg.Type == protocol.TypeError {
			p := msg.Payload.(*protocol.ErrorPayload)
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("%s: %s", p.Code, p.Message)))
			return
		}
		if !view.Apply(msg) && firstSeen {
			return
		}
		if interactive {
			fmt.Print("\033[H\033[2J")
		}
		fmt.Print(renderContainers(resourceID, view.Containers()))
		if !firstSeen && msg.Type == protocol.TypeContainersStateList {
			firstSeen = true
			close(first)
		}
	})
	c.SetErrorHandler(func(err error) {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
	})

	if err := c.Connect(ctx, clientFlags.server, client.StatusPath(nodeID)); err != nil {
		return err
	}
	defer c.Close()

	if err := c.Watch(protocol.WatchRequestPayload{ResourceID: resourceID, Prefix: prefix}); err != nil {
		return err
	}

	// A nil channel never fires, so without --once only ctx ends the watch
	var firstSnapshot <-chan struct{}
	if watchOnce {
		firstSnapshot = first
	}

	select {
	case <-ctx.Done():
	case <-firstSnapshot:
	case <-c.Done():
		return fmt.Errorf("connection to %s closed", clientFlags.server)
	}
	return nil
}
