// Command agent is a ReAct CLI driver: it connects internal/adapter to
// an MCP server, wires an OpenAI-chat-completions-shaped language
// model behind internal/reactor.Brain, and runs one user query to
// completion.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/adapter"
	"github.com/solomonsjoseph/reportalin-mcp/internal/reactor"
)

const defaultSystemPrompt = "You are a careful clinical-data analyst. Use the available tools to answer questions about aggregate counts and distributions. Never claim to have seen an individual record."

func main() {
	serverURL := flag.String("server-url", "http://127.0.0.1:8000", "MCP server base URL")
	authToken := flag.String("auth-token", os.Getenv("REPORTALIN_AGENT_TOKEN"), "bearer token for the MCP server")
	brainURL := flag.String("brain-url", os.Getenv("REPORTALIN_BRAIN_URL"), "OpenAI-chat-completions-compatible endpoint")
	brainAPIKey := flag.String("brain-api-key", os.Getenv("REPORTALIN_BRAIN_API_KEY"), "bearer token for the brain endpoint")
	brainModel := flag.String("brain-model", envOr("REPORTALIN_BRAIN_MODEL", "gpt-4o-mini"), "model name sent to the brain endpoint")
	systemPrompt := flag.String("system-prompt", defaultSystemPrompt, "system prompt for the agent")
	toolBudget := flag.Int("tool-budget", 8, "maximum tool-call turns before forcing a final answer")
	query := flag.String("query", "", "user query; reads stdin if omitted")
	connectTimeout := flag.Duration("connect-timeout", 15*time.Second, "timeout for the initial SSE handshake")
	flag.Parse()

	if *brainURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --brain-url (or REPORTALIN_BRAIN_URL) is required")
		os.Exit(1)
	}

	userQuery := *query
	if userQuery == "" {
		var err error
		userQuery, err = readQueryFromStdin()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read query from stdin: %v\n", err)
			os.Exit(1)
		}
	}
	if strings.TrimSpace(userQuery) == "" {
		fmt.Fprintln(os.Stderr, "Error: empty query")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupted, finishing current tool call before exiting...")
		cancel()
	}()

	cfg := adapter.DefaultConfig(*serverURL)
	cfg.AuthToken = *authToken
	client := adapter.New(cfg)

	connectCtx, connectCancel := context.WithTimeout(ctx, *connectTimeout)
	defer connectCancel()
	if err := client.Connect(connectCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", *serverURL, err)
		os.Exit(1)
	}
	defer client.Close()

	brain := newOpenAIBrain(*brainURL, *brainAPIKey, *brainModel)

	answer, err := reactor.Run(ctx, brain, client, userQuery, *systemPrompt, *toolBudget)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: agent run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(answer)
}

func readQueryFromStdin() (string, error) {
	scanner := bufio.NewScanner(os.Stdin)
	var b strings.Builder
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
