// Package stratum's server.go implements the TCP accept loop, session
// registry, job broadcast, and the worker.Worker adaptor that lets the
// mining coordinator treat a pool of connected ASICs as a single mining
// source (spec.md §4.6, component C6).
//
// The goroutine-per-connection shape, and the accept loop itself, are
// grounded on the teacher's Client.run/read/process/send lifecycle
// (pool/client.go), turned inside-out: there the process is a single
// client talking to one pool connection, here it is a server managing many.
package stratum

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/config"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
)

var log = chainlog.NewSubLogger("STRT")

// Config configures the Stratum server.
type Config struct {
	ListenAddr        string
	InitialDifficulty float64
}

func (c Config) normalized() Config {
	if c.InitialDifficulty <= 0 {
		c.InitialDifficulty = 1
	}
	return c
}

// Server accepts ASIC miner connections, broadcasts jobs to them, validates
// their submitted shares, and forwards any share that meets the current
// block target onto whichever sink its Mine call was given. It implements
// worker.Worker so a coordinator.Coordinator can drive it exactly like a CPU
// worker.
type Server struct {
	cfg Config

	listener net.Listener
	wg       sync.WaitGroup

	mu            sync.RWMutex
	sessions      map[uuid.UUID]*conn
	usedExtra1    map[[4]byte]struct{}
	currentJob    *JobTemplate
	blockTarget   core.Target
	sink          chan worker.Solution
	mining        bool
	acceptCancel  context.CancelFunc
	totalAccepted uint64 // atomic
}

// New creates a Stratum server. Call Serve to begin accepting connections.
func New(cfg Config) *Server {
	return &Server{
		cfg:        cfg.normalized(),
		sessions:   make(map[uuid.UUID]*conn),
		usedExtra1: make(map[[4]byte]struct{}),
	}
}

// Kind implements worker.Worker.
func (s *Server) Kind() string { return "Stratum" }

// Serve binds the listen address and accepts connections until ctx is
// canceled or the listener errors. Safe to run in its own goroutine for the
// lifetime of the process; unlike Mine/Stop, this is not part of the
// preemptible mining lifecycle.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("stratum listen: %w", err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Infof("stratum server listening on %s", s.cfg.ListenAddr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Errorf("accept: %v", err)
				return err
			}
		}
		atomic.AddUint64(&s.totalAccepted, 1)
		s.wg.Add(1)
		go s.handleConn(nc)
	}
}

// Shutdown closes the listener and waits for in-flight connections to
// finish their current read.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.RLock()
	for _, c := range s.sessions {
		c.nc.Close()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

func (s *Server) allocateExtraNonce1() [4]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		var e [4]byte
		if _, err := rand.Read(e[:]); err != nil {
			// crypto/rand failure is unrecoverable; fall back to a counter
			// derived value so allocation can never block forever.
			n := uint32(len(s.usedExtra1)) + 1
			e[0], e[1], e[2], e[3] = byte(n), byte(n>>8), byte(n>>16), byte(n>>24)
		}
		if _, taken := s.usedExtra1[e]; taken {
			continue
		}
		s.usedExtra1[e] = struct{}{}
		return e
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()
	defer nc.Close()

	extranonce1 := s.allocateExtraNonce1()
	session := NewSession(extranonce1)
	session.SetDifficulty(s.cfg.InitialDifficulty)
	c := newConn(nc, session)

	s.mu.Lock()
	s.sessions[session.ID] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, session.ID)
		s.mu.Unlock()
		session.Close()
	}()

	log.Debugf("session %s connected from %s", session.ID, nc.RemoteAddr())

	c.readLoop(func(c *conn, req *Request) {
		s.dispatch(c, req)
	})
}

func (s *Server) dispatch(c *conn, req *Request) {
	switch req.Method {
	case MethodSubscribe:
		s.handleSubscribe(c, req)
	case MethodAuthorize:
		s.handleAuthorize(c, req)
	case MethodSuggestDifficulty:
		s.handleSuggestDifficulty(c, req)
	case MethodSubmit:
		s.handleSubmit(c, req)
	default:
		if !req.IsNotification() {
			c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther,
				"unknown method: "+req.Method))
		}
	}
}

func (s *Server) handleSubscribe(c *conn, req *Request) {
	c.session.MarkSubscribed()
	en1 := c.session.ExtraNonce1()
	result := []interface{}{
		[][]string{
			{MethodNotify, c.session.ID.String()},
		},
		fmt.Sprintf("%x", en1[:]),
		extraNonce2Size,
	}
	c.sendResponse(NewResultResponse(req.ID, result))
}

func (s *Server) handleAuthorize(c *conn, req *Request) {
	if !c.session.IsSubscribed() {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeNotSubscribed, nil))
		return
	}
	workerName, err := paramString(req.Params, 0)
	if err != nil {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, err.Error()))
		return
	}
	c.session.Authorize(workerName)
	c.sendResponse(NewResultResponse(req.ID, true))

	s.mu.RLock()
	job := s.currentJob
	diff := c.session.Difficulty()
	s.mu.RUnlock()
	if job != nil {
		s.sendJobTo(c, job, diff, true)
	}
}

func (s *Server) handleSuggestDifficulty(c *conn, req *Request) {
	d, err := paramFloat(req.Params, 0)
	if err != nil || d <= 0 {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, "invalid difficulty"))
		return
	}
	if err := c.session.SetDifficulty(d); err != nil {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, err.Error()))
		return
	}
	c.sendResponse(NewResultResponse(req.ID, true))
	c.sendNotification(NewNotification(MethodSetDifficulty, d))
}

func (s *Server) handleSubmit(c *conn, req *Request) {
	if !c.session.IsAuthorized() {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeUnauthorized, nil))
		return
	}
	if !c.session.Allow() {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, "rate limited"))
		return
	}

	jobID, err1 := paramString(req.Params, 1)
	en2Hex, err2 := paramString(req.Params, 2)
	ntimeHex, err3 := paramString(req.Params, 3)
	nonceHex, err4 := paramString(req.Params, 4)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, "malformed submit"))
		return
	}

	en2, err := decodeFixed4(en2Hex)
	if err != nil {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, err.Error()))
		return
	}
	ntime, err := decodeFixed4(ntimeHex)
	if err != nil {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, err.Error()))
		return
	}
	nonce, err := decodeNonceHex(nonceHex)
	if err != nil {
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeOther, err.Error()))
		return
	}

	s.mu.RLock()
	job := s.currentJob
	blockTarget := s.blockTarget
	sink := s.sink
	mining := s.mining
	s.mu.RUnlock()

	outcome, work, hash := c.session.ValidateShare(jobID, en2, ntime, nonce, blockTarget, job)

	switch outcome {
	case ShareRejectedStale:
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeJobNotFound, nil))
		return
	case ShareRejectedDuplicate:
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeDuplicateShare, nil))
		return
	case ShareRejectedLowDifficulty:
		c.sendResponse(NewErrorResponse(req.ID, ErrCodeLowDifficultyShare, nil))
		return
	}

	c.sendResponse(NewResultResponse(req.ID, true))

	if outcome == ShareAcceptedMeetsBlockTarget && mining && sink != nil {
		sol := worker.Solution{Work: work, Nonce: nonce, Hash: hash}
		select {
		case sink <- sol:
		default:
			log.Warnf("block solution from session %s dropped: sink full", c.session.ID)
		}
	}
}

func (s *Server) sendJobTo(c *conn, job *JobTemplate, difficulty float64, cleanJobs bool) {
	// Hold the write lock across both encodes so no other write on this
	// connection can land between set_difficulty and notify.
	c.writeMu.Lock()
	c.enc.Encode(NewNotification(MethodSetDifficulty, difficulty))
	c.enc.Encode(NewNotification(MethodNotify, job.NotifyParams(cleanJobs)...))
	c.writeMu.Unlock()
	c.session.SetCurrentJob(job.ID)
}

// broadcast pushes job to every authorized-or-later session, pairing a
// set_difficulty with the notify atomically per session so no session ever
// observes a notify without first knowing the difficulty it judges shares
// against.
func (s *Server) broadcast(job *JobTemplate) {
	s.mu.RLock()
	sessions := make([]*conn, 0, len(s.sessions))
	for _, c := range s.sessions {
		sessions = append(sessions, c)
	}
	s.mu.RUnlock()

	for _, c := range sessions {
		if !c.session.IsAuthorized() {
			continue
		}
		s.sendJobTo(c, job, c.session.Difficulty(), true)
	}
}

// Mine implements worker.Worker: it records the new (work, target) as the
// current job, assigns it a fresh job id, broadcasts it to every authorized
// session, and arranges for any share meeting target to be forwarded to
// sink. Preemption semantics mirror cpuworker.Worker: any job broadcast
// before this call becomes unreachable (ValidateShare rejects its job id as
// stale), and sink is drained of solutions left over from the prior job
// before the new one is announced.
func (s *Server) Mine(ctx context.Context, work core.Work, target core.Target,
	sink chan worker.Solution) error {

	s.mu.Lock()
	drainSink(sink)
	job := NewJobTemplate(jobID(work), work, target)
	s.currentJob = job
	s.blockTarget = target
	s.sink = sink
	s.mining = true
	s.mu.Unlock()

	s.broadcast(job)
	return nil
}

// Stop implements worker.Worker: the server stops treating any subsequent
// submit as validatable (job id no longer matches) but keeps listening for
// connections, since a Stratum server's socket lifecycle is independent of
// the mining lifecycle (see Serve/Shutdown).
func (s *Server) Stop() error {
	s.mu.Lock()
	s.mining = false
	s.sink = nil
	s.currentJob = nil
	s.mu.Unlock()
	return nil
}

// Hashrate implements worker.Worker with a coarse proxy, since individual
// ASIC hash rates are never directly observable by the server (only their
// shares are): it returns the total number of accepted shares of every
// currently connected session. This is a cumulative count, not a per-second
// or decayed rate, and it is not zero while the server is not mining.
func (s *Server) Hashrate() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, c := range s.sessions {
		_, valid, _ := c.session.Stats()
		total += valid
	}
	return total
}

// SetInitialDifficulty updates the difficulty assigned to newly connected
// sessions and applies it to, and re-notifies, every already-authorized
// session (sessions not yet authorized keep their difficulty), the live-reload
// counterpart to the --stratum.difficulty flag.
func (s *Server) SetInitialDifficulty(d float64) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.InitialDifficulty = d
	sessions := make([]*conn, 0, len(s.sessions))
	for _, c := range s.sessions {
		sessions = append(sessions, c)
	}
	s.mu.Unlock()

	for _, c := range sessions {
		if !c.session.IsAuthorized() {
			continue
		}
		if err := c.session.SetDifficulty(d); err != nil {
			continue
		}
		c.sendNotification(NewNotification(MethodSetDifficulty, d))
	}
}

// Watch consumes config.Reloadable values from reload until ctx is
// canceled, applying difficulty changes live. Other fields are the
// coordinator's or CPU worker's concern and are ignored here.
func (s *Server) Watch(ctx context.Context, reload <-chan config.Reloadable) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reload:
			if !ok {
				return
			}
			if r.Difficulty > 0 {
				s.SetInitialDifficulty(r.Difficulty)
				log.Infof("initial difficulty reloaded to %g", r.Difficulty)
			}
		}
	}
}

func drainSink(sink chan worker.Solution) {
	for {
		select {
		case <-sink:
		default:
			return
		}
	}
}

func jobID(work core.Work) string {
	h := work.Hash()
	return fmt.Sprintf("%x", h[:8])
}
