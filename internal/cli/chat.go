package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// ansi color codes, translated from the reference CLI's Colors class.
const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiGreen = "\033[32m"
	ansiCyan  = "\033[36m"

	ansiBrightRed   = "\033[91m"
	ansiBrightGreen = "\033[92m"
	ansiBrightBlue  = "\033[94m"
	ansiBrightCyan  = "\033[96m"
)

var chatCmd = &cobra.Command{
	Use:   "chat [query]",
	Short: "Query the gateway from the terminal",
	Long: `chat connects to a running gateway over WebSocket and either runs
one query and exits, or drops into an interactive REPL with -i.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

var (
	chatURL         string
	chatInteractive bool
	chatVerbose     bool
	chatJSON        bool
	chatNoColor     bool
	chatTimeout     time.Duration
)

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "ws://localhost:8787/ws/chat", "Gateway WebSocket URL")
	chatCmd.Flags().BoolVarP(&chatInteractive, "interactive", "i", false, "Run in interactive mode (REPL)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Show tool usage and thinking chunks")
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "Output raw JSON chunks")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", 60*time.Second, "Per-query timeout")
}

func runChat(cmd *cobra.Command, args []string) error {
	useColor := !chatNoColor
	if chatInteractive {
		if len(args) > 0 {
			printError("cannot specify a query in interactive mode", useColor)
			return fmt.Errorf("query given with --interactive")
		}
		return interactiveMode(chatURL, chatVerbose, useColor, chatTimeout)
	}
	if len(args) == 0 {
		return cmd.Help()
	}
	return singleQueryMode(chatURL, args[0], chatVerbose, chatJSON, useColor, chatTimeout)
}

func colored(text, color string, useColor bool) string {
	if !useColor {
		return text
	}
	return color + text + ansiReset
}

func printStatus(icon, message, color string, useColor bool) {
	fmt.Println(colored(icon+" "+message, color, useColor))
}

func printError(message string, useColor bool) {
	printStatus("x", "ERROR: "+message, ansiBrightRed, useColor)
}

type wireChunk struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Completed bool   `json:"completed"`
}

func connectChat(url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return conn, nil
}

// sendQuery sends one prompt frame and streams chunks until the turn
// completes or chatTimeout elapses.
func sendQuery(conn *websocket.Conn, query string, verbose, jsonOutput, useColor bool, timeout time.Duration) (string, bool) {
	frame, _ := json.Marshal(map[string]string{"message": query})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		printError("failed to send query: "+err.Error(), useColor)
		return "", false
	}

	deadline := time.Now().Add(timeout)
	var full strings.Builder
	success := true

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			printError(fmt.Sprintf("query timeout after %s", timeout), useColor)
			return full.String(), false
		}
		conn.SetReadDeadline(time.Now().Add(remaining))
		_, data, err := conn.ReadMessage()
		if err != nil {
			printError("connection closed unexpectedly", useColor)
			return full.String(), false
		}

		if jsonOutput {
			fmt.Println(string(data))
			var c wireChunk
			if json.Unmarshal(data, &c) == nil && c.Completed {
				return full.String(), success
			}
			continue
		}

		var c wireChunk
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}

		switch c.Type {
		case "connected":
			if verbose {
				printStatus("*", c.Content, ansiBrightCyan, useColor)
			}
		case "text":
			if c.Content != "" {
				fmt.Print(c.Content)
				full.WriteString(c.Content)
			}
		case "tool_use":
			if verbose {
				fmt.Print(colored(fmt.Sprintf("\n[tool: %s]", c.Content), ansiBrightBlue, useColor))
			}
		case "thinking":
			if verbose {
				fmt.Print(colored("\n[thinking...]", ansiDim, useColor))
			}
		case "tool_result":
			if verbose {
				preview := c.Content
				if len(preview) > 100 {
					preview = preview[:100]
				}
				fmt.Print(colored(fmt.Sprintf("\n[tool result: %s...]", preview), ansiDim, useColor))
			}
		case "error":
			printError(c.Content, useColor)
			success = false
		}

		if c.Completed {
			if full.Len() > 0 {
				fmt.Println()
			}
			return full.String(), success
		}
	}
}

func singleQueryMode(url, query string, verbose, jsonOutput, useColor bool, timeout time.Duration) error {
	if !jsonOutput {
		printStatus("*", "Connecting to netboxgw...", ansiCyan, useColor)
	}
	conn, err := connectChat(url)
	if err != nil {
		printError(err.Error(), useColor)
		return err
	}
	defer conn.Close()

	if !jsonOutput {
		printStatus("+", "Connected!", ansiGreen, useColor)
		if verbose {
			fmt.Println()
		}
	}

	_, success := sendQuery(conn, query, verbose, jsonOutput, useColor, timeout)
	if !success {
		return fmt.Errorf("query completed with errors")
	}
	return nil
}

func interactiveMode(url string, verbose, useColor bool, timeout time.Duration) error {
	printStatus("*", "Connecting to netboxgw...", ansiCyan, useColor)
	conn, err := connectChat(url)
	if err != nil {
		printError(err.Error(), useColor)
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, data, err := conn.ReadMessage(); err == nil {
		var c wireChunk
		if json.Unmarshal(data, &c) == nil && c.Type == "connected" && verbose {
			printStatus("*", c.Content, ansiBrightCyan, useColor)
		}
	}

	printStatus("+", "Connected! Type your query or 'exit' to quit.", ansiGreen, useColor)
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(colored("netbox> ", ansiBrightGreen, useColor))
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			break
		}
		query := strings.TrimSpace(line)
		switch strings.ToLower(query) {
		case "exit", "quit", "q":
			fmt.Println()
			printStatus("bye", "Goodbye!", ansiCyan, useColor)
			return nil
		case "":
			continue
		}

		sendQuery(conn, query, verbose, false, useColor, timeout)
		fmt.Println()
	}

	printStatus("bye", "Goodbye!", ansiCyan, useColor)
	return nil
}
