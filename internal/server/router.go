package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"go.uber.org/zap"
)

// Router serves the document store over a line-based TCP protocol:
//
//	ADD <collection> <json>   -> OK <id>
//	GET <document>            -> OK <json>
//	MERGE <document> <json>   -> OK
//	LIST <collection>         -> OK <json array>
//	BATCH <json array>        -> OK <count>
//	PING                      -> PONG
//	QUIT
type Router struct {
	store  sdk.DocumentStore
	cert   *tls.Certificate
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewRouter(s sdk.DocumentStore, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: s, logger: logger}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	semaphore := make(chan struct{}, 100) // Max 100 concurrent connections

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return nil
			}
			continue
		}

		// Set aggressive timeouts for light traffic to prevent resource exhaustion
		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Addr returns the bound address once Listen is running.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop closes the listener.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// HandleConnection serves commands from one client until it quits or times out.
func (r *Router) HandleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			return // Connection closed or timeout
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		command = strings.ToUpper(command)

		if command == "QUIT" {
			return
		}
		fmt.Fprintln(conn, r.execute(command, rest))
	}
}

func (r *Router) execute(command, rest string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command {
	case "PING":
		return "PONG"

	case "ADD":
		collection, body, ok := strings.Cut(rest, " ")
		if !ok {
			return "ERR usage: ADD <collection> <json>"
		}
		doc, err := schema.UnmarshalDocument([]byte(body))
		if err != nil {
			return "ERR invalid json value"
		}
		id, err := r.store.Add(ctx, collection, doc)
		if err != nil {
			return r.fail(command, err)
		}
		return "OK " + id

	case "GET":
		if rest == "" {
			return "ERR usage: GET <document>"
		}
		doc, err := r.store.Get(ctx, rest)
		if err != nil {
			return r.fail(command, err)
		}
		return okJSON(schema.EncodeValue(doc))

	case "MERGE":
		path, body, ok := strings.Cut(rest, " ")
		if !ok {
			return "ERR usage: MERGE <document> <json>"
		}
		fields, err := schema.UnmarshalDocument([]byte(body))
		if err != nil {
			return "ERR invalid json value"
		}
		if err := r.store.Merge(ctx, path, fields); err != nil {
			return r.fail(command, err)
		}
		return "OK"

	case "LIST":
		if rest == "" {
			return "ERR usage: LIST <collection>"
		}
		docs, err := r.store.List(ctx, rest)
		if err != nil {
			return r.fail(command, err)
		}
		for i := range docs {
			encoded, _ := schema.EncodeValue(docs[i].Data).(map[string]any)
			docs[i].Data = encoded
		}
		return okJSON(docs)

	case "BATCH":
		var updates []sdk.BatchUpdate
		if err := json.Unmarshal([]byte(rest), &updates); err != nil {
			return "ERR invalid json value"
		}
		batch := r.store.Batch()
		for _, u := range updates {
			fields, _ := schema.DecodeValue(u.Fields).(map[string]any)
			batch.Update(u.Path, fields)
		}
		if err := batch.Commit(ctx); err != nil {
			return r.fail(command, err)
		}
		return fmt.Sprintf("OK %d", len(updates))

	default:
		return "ERR unknown command " + command
	}
}

func (r *Router) fail(command string, err error) string {
	r.logger.Debug("TCP command failed", zap.String("command", command), zap.Error(err))
	return "ERR " + strings.ReplaceAll(err.Error(), "\n", " ")
}

func okJSON(v any) string {
	res, err := json.Marshal(v)
	if err != nil {
		return "ERR internal error"
	}
	return "OK " + string(res)
}
