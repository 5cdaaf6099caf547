package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/transport/ws"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat over the WebSocket endpoint",
	RunE:  runChat,
}

// wsClient is a WebSocket chat client.
type wsClient struct {
	conn   *websocket.Conn
	out    io.Writer
	userID string

	mu             sync.Mutex
	conversationID string
	printer        *framePrinter
	done           chan struct{}
}

func dialWS(addr string, out io.Writer) (*wsClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &wsClient{
		conn:    conn,
		out:     out,
		printer: &framePrinter{out: out},
		done:    make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *wsClient) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// hello sends a hello message and waits for hello_ack.
func (c *wsClient) hello(userID, conversationID string) error {
	msg := ws.HelloMessage{
		BaseMessage: ws.BaseMessage{
			Type:           ws.TypeHello,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		UserID: userID,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var base ws.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if base.Type == ws.TypeError {
		var errMsg ws.ErrorMessage
		_ = json.Unmarshal(data, &errMsg)
		return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if base.Type != ws.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	var ack ws.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	c.userID = ack.UserID
	c.conversationID = base.ConversationID
	return nil
}

func (c *wsClient) send(content string) error {
	c.mu.Lock()
	convID := c.conversationID
	c.mu.Unlock()

	return c.conn.WriteJSON(ws.ChatMessage{
		BaseMessage: ws.BaseMessage{
			Type:           ws.TypeChat,
			Ts:             time.Now().UnixMilli(),
			RequestID:      fmt.Sprintf("req_%d", time.Now().UnixNano()),
			ConversationID: convID,
		},
		Content: content,
	})
}

func (c *wsClient) cancel() error {
	return c.conn.WriteJSON(ws.CancelMessage{
		BaseMessage: ws.BaseMessage{Type: ws.TypeCancel, Ts: time.Now().UnixMilli()},
	})
}

// readLoop prints frames until the connection closes.
func (c *wsClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			return
		}

		var frame ws.StreamMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("unmarshal error", zap.Error(err))
			continue
		}

		switch frame.Type {
		case ws.TypeCancelled:
			c.printer.endReply()
			fmt.Fprintln(c.out, "(cancelled)")
		case ws.TypeError:
			var errMsg ws.ErrorMessage
			_ = json.Unmarshal(data, &errMsg)
			c.printer.endReply()
			fmt.Fprintf(c.out, "error (%s): %s\n", errMsg.Code, errMsg.Message)
		default:
			if frame.ConversationID != "" {
				c.mu.Lock()
				c.conversationID = frame.ConversationID
				c.mu.Unlock()
			}
			if err := c.printer.print(frame.Type, frame.Data); err != nil {
				logger.Warn("bad frame", zap.String("type", frame.Type), zap.Error(err))
			}
		}
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	userID, _ := cmd.Flags().GetString("user")
	convID, _ := cmd.Flags().GetString("conversation")
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Connecting to %s...\n", addr)
	client, err := dialWS(addr, out)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.hello(userID, convID); err != nil {
		return err
	}

	fmt.Fprintf(out, "Connected as %s\n", client.userID)
	fmt.Fprintln(out, "Type a message and press Enter to send.")
	fmt.Fprintln(out, "Commands: /cancel to stop a reply, /new to start a new conversation, /quit to exit")
	fmt.Fprintln(out)

	go client.readLoop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupt:
			fmt.Fprintln(out, "\nInterrupted")
			return nil
		case <-client.done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			switch input {
			case "":
				continue
			case "/quit":
				fmt.Fprintln(out, "Bye!")
				return nil
			case "/cancel":
				if err := client.cancel(); err != nil {
					return fmt.Errorf("send cancel: %w", err)
				}
			case "/new":
				client.mu.Lock()
				client.conversationID = ""
				client.mu.Unlock()
				fmt.Fprintln(out, "(new conversation)")
			default:
				if err := client.send(input); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
		}
	}
}
