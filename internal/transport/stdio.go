package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

// StdioServer runs the MCP protocol over newline-delimited JSON-RPC
// frames on stdin/stdout, for embedding the server in a parent process
// that owns the trust boundary itself. Per spec.md §4.7, stdio mode
// carries no auth, rate-limit, or security-header middleware: the host
// process is implicitly trusted, and there is no network listener to
// protect.
type StdioServer struct {
	Dispatcher Dispatcher
	Principal  string

	in  io.Reader
	out io.Writer

	mu sync.Mutex // serializes writes to out
}

func NewStdioServer(dispatcher Dispatcher, in io.Reader, out io.Writer) *StdioServer {
	return &StdioServer{Dispatcher: dispatcher, in: in, out: out}
}

// Run reads one JSON-RPC request per line until ctx is cancelled or the
// input stream closes. Every log line goes to stderr via slog's default
// handler, never to stdout, since stdout is the protocol channel.
func (s *StdioServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, append([]byte(nil), line...))
	}
	return scanner.Err()
}

func (s *StdioServer) handleLine(ctx context.Context, line []byte) {
	var req mcp.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(mcp.NewError(nil, mcp.CodeParseError, "invalid JSON-RPC request line", nil))
		return
	}

	resp := s.Dispatcher.Dispatch(ctx, s.Principal, &req)
	if resp != nil {
		s.writeResponse(resp)
	}
}

func (s *StdioServer) writeResponse(resp *mcp.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		slog.Error("stdio transport: failed to marshal response", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(b)
	s.out.Write([]byte("\n"))
}
