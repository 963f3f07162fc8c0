package stratum

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/config"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
)

// testClient is a minimal line-oriented Stratum client for exercising the
// server end to end over a real TCP connection.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Scanner
	id   int
}

func dialServer(t *testing.T, addr string) *testClient {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &testClient{t: t, conn: conn, r: bufio.NewScanner(conn)}
}

func (c *testClient) call(method string, params ...interface{}) *Response {
	c.id++
	req := NewRequest(c.id, method, params...)
	b, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("marshal request: %v", err)
	}
	b = append(b, '\n')
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
	return c.nextResponse()
}

// nextResponse reads lines until one decodes as a Response (skipping any
// notifications that arrive first).
func (c *testClient) nextResponse() *Response {
	for c.r.Scan() {
		line := c.r.Bytes()
		req, resp, err := IdentifyMessage(line)
		if err != nil {
			c.t.Fatalf("identify: %v", err)
		}
		if req != nil {
			continue
		}
		return resp
	}
	c.t.Fatalf("connection closed before a response arrived")
	return nil
}

func (c *testClient) nextNotification() *Request {
	for c.r.Scan() {
		line := c.r.Bytes()
		req, _, err := IdentifyMessage(line)
		if err != nil {
			c.t.Fatalf("identify: %v", err)
		}
		if req != nil {
			return req
		}
	}
	c.t.Fatalf("connection closed before a notification arrived")
	return nil
}

func TestServerSubscribeAuthorizeSubmitFlow(t *testing.T) {
	// An arbitrarily low initial difficulty clamps every session's target to
	// MaxTarget, so the submitted share only needs to clear the job-lookup
	// and dedup checks to be accepted - independent of what it actually
	// hashes to.
	srv := New(Config{ListenAddr: "127.0.0.1:0", InitialDifficulty: 1e-30})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	srv.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Serve(ctx)

	c := dialServer(t, addr)
	defer c.conn.Close()

	subResp := c.call(MethodSubscribe)
	if subResp.Error != nil {
		t.Fatalf("subscribe error: %+v", subResp.Error)
	}

	authResp := c.call(MethodAuthorize, "worker1", "x")
	if authResp.Error != nil || authResp.Result != true {
		t.Fatalf("authorize failed: %+v", authResp)
	}

	// Authorize triggers a set_difficulty + notify pair since a job is
	// already active by the time this session authorizes.
	var work core.Work
	target := core.MaxTarget()
	sink := make(chan worker.Solution, 4)
	if err := srv.Mine(ctx, work, target, sink); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	c2 := dialServer(t, addr)
	defer c2.conn.Close()
	c2.call(MethodSubscribe)
	c2.call(MethodAuthorize, "worker2", "x")

	n1 := c2.nextNotification()
	if n1.Method != MethodSetDifficulty && n1.Method != MethodNotify {
		t.Fatalf("unexpected notification method: %s", n1.Method)
	}
	n2 := c2.nextNotification()
	methods := map[string]bool{n1.Method: true, n2.Method: true}
	if !methods[MethodSetDifficulty] || !methods[MethodNotify] {
		t.Fatalf("expected set_difficulty and notify, got %s and %s", n1.Method, n2.Method)
	}

	jobID, ok := n2.Params[0].(string)
	if n2.Method != MethodNotify {
		jobID, ok = n1.Params[0].(string)
	}
	if !ok {
		t.Fatalf("could not extract job id from notify params")
	}

	submitResp := c2.call(MethodSubmit, "worker2", jobID, "00000000", "00000000", "0000000000000000")
	if submitResp.Error != nil {
		t.Fatalf("submit rejected: %+v", submitResp.Error)
	}

	select {
	case sol := <-sink:
		if !target.MeetsTarget(sol.Hash) {
			t.Fatal("forwarded solution does not meet block target")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the accepted share to reach the sink")
	}
}

func TestServerWatchAppliesDifficulty(t *testing.T) {
	srv := New(Config{ListenAddr: "127.0.0.1:0", InitialDifficulty: 1})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	srv.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	c := dialServer(t, addr)
	defer c.conn.Close()
	c.call(MethodSubscribe)
	c.call(MethodAuthorize, "worker1", "x")

	reload := make(chan config.Reloadable, 1)
	go srv.Watch(ctx, reload)
	reload <- config.Reloadable{Difficulty: 42}

	n := c.nextNotification()
	if n.Method != MethodSetDifficulty {
		t.Fatalf("expected set_difficulty notification, got %s", n.Method)
	}
	got, ok := n.Params[0].(float64)
	if !ok || got != 42 {
		t.Fatalf("set_difficulty params = %+v, want [42]", n.Params)
	}
}

func TestServerRejectsSubmitBeforeAuthorize(t *testing.T) {
	srv := New(Config{ListenAddr: "127.0.0.1:0"})
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().String()
	ln.Close()
	srv.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	c := dialServer(t, addr)
	defer c.conn.Close()

	resp := c.call(MethodSubmit, "w", "job", "00000000", "00000000", "0000000000000000")
	if resp.Error == nil || resp.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected ErrCodeUnauthorized, got %+v", resp.Error)
	}
}
