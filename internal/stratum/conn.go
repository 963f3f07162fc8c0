package stratum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

// conn binds a Session to its TCP connection, mirroring the teacher's
// Client (pool/client.go): a bufio.Reader-driven read loop, a mutex-guarded
// write path, and a context-free run that simply returns when the
// connection closes (the server tears down via net.Conn.Close, not
// cancellation, since each conn owns exactly one goroutine).
type conn struct {
	nc      net.Conn
	session *Session

	writeMu sync.Mutex
	enc     *json.Encoder
}

func newConn(nc net.Conn, session *Session) *conn {
	return &conn{
		nc:      nc,
		session: session,
		enc:     json.NewEncoder(nc),
	}
}

// send writes one JSON-RPC line. Safe for concurrent use: the server may
// broadcast a notification on one goroutine while the conn's own read loop
// is replying to a request on another.
func (c *conn) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(v)
}

func (c *conn) sendResponse(resp *Response) error {
	return c.send(resp)
}

func (c *conn) sendNotification(n *Request) error {
	return c.send(n)
}

// readLoop runs the per-connection dispatch loop until the connection
// closes or the server shuts the session down. handle is invoked
// synchronously for each decoded request; the server supplies it so conn
// stays ignorant of job/share semantics.
func (c *conn) readLoop(handle func(*conn, *Request)) {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		req, _, err := IdentifyMessage(line)
		if err != nil || req == nil {
			// A server only expects requests/notifications from the miner;
			// malformed or response-shaped lines are ignored rather than
			// killing the connection, but a malformed frame is dumped for
			// diagnosis since it usually indicates a misbehaving ASIC
			// firmware rather than a transient issue.
			if err != nil {
				log.Debugf("malformed stratum frame: %v\n%s", err, spew.Sdump(line))
			}
			continue
		}
		handle(c, req)
	}
}

func paramString(params []interface{}, i int) (string, error) {
	if i >= len(params) {
		return "", fmt.Errorf("missing parameter %d", i)
	}
	s, ok := params[i].(string)
	if !ok {
		return "", fmt.Errorf("parameter %d is not a string", i)
	}
	return s, nil
}

func paramFloat(params []interface{}, i int) (float64, error) {
	if i >= len(params) {
		return 0, fmt.Errorf("missing parameter %d", i)
	}
	switch v := params[i].(type) {
	case float64:
		return v, nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
			return 0, err
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %d is not numeric", i)
	}
}
