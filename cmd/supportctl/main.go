// Command supportctl is a terminal client for the supportdesk server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/adapter/sseclient"
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/logging"
	"github.com/xiaot623/supportdesk/internal/transport/rpc"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "Talk to a supportdesk server from the terminal",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.NewDevelopment()
	},
	SilenceUsage: true,
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message over the streaming HTTP endpoint",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, _ := cmd.Flags().GetString("url")
		userID, _ := cmd.Flags().GetString("user")
		convID, _ := cmd.Flags().GetString("conversation")

		client := sseclient.NewClient(baseURL, userID)
		printer := &framePrinter{out: cmd.OutOrStdout()}
		req := domain.SendMessageRequest{ConversationID: convID, Content: strings.Join(args, " ")}
		return client.Stream(cmd.Context(), req, func(ev sseclient.SSEEvent) error {
			return printer.print(ev.Event, []byte(ev.Data))
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [message]",
	Short: "Ask the router which responder would take a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialRPC(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.Classify(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "responder: %s\nsource:    %s\nnotice:    %s\n", reply.Responder, reply.Source, reply.Notice)
		if reply.Analysis != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "analysis:  %s\n", reply.Analysis)
		}
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the responders and their tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialRPC(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.ListAgents(cmd.Context())
		if err != nil {
			return err
		}
		for _, a := range reply.Agents {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s (%s)\n", a.Type, a.Name, a.Status)
			for _, t := range a.Tools {
				fmt.Fprintf(cmd.OutOrStdout(), "         - %s\n", t.Name)
			}
		}
		return nil
	},
}

func dialRPC(cmd *cobra.Command) (*rpc.Client, error) {
	addr, _ := cmd.Flags().GetString("rpc")
	return rpc.Dial(cmd.Context(), addr)
}

// framePrinter renders stream frames as a running transcript.
type framePrinter struct {
	out       io.Writer
	inReply   bool
	agentName string
}

func (p *framePrinter) print(event string, data []byte) error {
	switch event {
	case domain.StreamEventRouting:
		var r domain.RoutingEventData
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("failed to parse routing frame: %w", err)
		}
		p.agentName = r.AgentName
		fmt.Fprintf(p.out, "[Router] %s\n", r.Content)
		fmt.Fprintf(p.out, "(conversation %s)\n", r.ConversationID)
	case domain.StreamEventDelta:
		var d domain.DeltaEventData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("failed to parse delta frame: %w", err)
		}
		if !p.inReply {
			fmt.Fprintf(p.out, "[%s] ", p.agentName)
			p.inReply = true
		}
		fmt.Fprint(p.out, d.Text)
	case domain.StreamEventData:
		var card domain.RichData
		if err := json.Unmarshal(data, &card); err != nil {
			return fmt.Errorf("failed to parse data frame: %w", err)
		}
		p.endReply()
		printCard(p.out, &card)
	case domain.StreamEventDone:
		p.endReply()
	case domain.StreamEventError:
		var e domain.ErrorEventData
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to parse error frame: %w", err)
		}
		p.endReply()
		fmt.Fprintf(p.out, "error (%s): %s\n", e.Code, e.Message)
	}
	return nil
}

func (p *framePrinter) endReply() {
	if p.inReply {
		fmt.Fprintln(p.out)
		p.inReply = false
	}
}

func printCard(w io.Writer, d *domain.RichData) {
	switch {
	case d.Order != nil:
		fmt.Fprintf(w, "  order %s: %s, %s", d.Order.ID, d.Order.Status, d.Order.Total)
		if d.Order.ETA != "" {
			fmt.Fprintf(w, ", eta %s", d.Order.ETA)
		}
		fmt.Fprintln(w)
		for _, item := range d.Order.Items {
			fmt.Fprintf(w, "    - %s\n", item)
		}
	case d.Invoice != nil:
		fmt.Fprintf(w, "  invoice %s: %s, %s\n", d.Invoice.ID, d.Invoice.Status, d.Invoice.Amount)
	}
}

func init() {
	rootCmd.PersistentFlags().String("user", "", "user id sent with each request (server default when empty)")

	askCmd.Flags().String("url", "http://localhost:8080", "supportdesk HTTP base URL")
	askCmd.Flags().String("conversation", "", "continue an existing conversation")

	chatCmd.Flags().String("addr", "ws://localhost:8080/ws", "supportdesk WebSocket address")
	chatCmd.Flags().String("conversation", "", "join an existing conversation")

	for _, c := range []*cobra.Command{classifyCmd, agentsCmd} {
		c.Flags().String("rpc", "localhost:8082", "supportdesk JSON-RPC address")
	}

	rootCmd.AddCommand(askCmd, chatCmd, classifyCmd, agentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
