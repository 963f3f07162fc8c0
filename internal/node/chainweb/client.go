// Package chainweb implements node.Client against a chainweb-style node's
// HTTP mining API. Per spec.md §6 the exact response framing beyond the
// 286-byte work buffer is left to node documentation; this package pins a
// concrete, simple framing (work || 32-byte target || opaque job token) so
// the rest of the system has something byte-exact to test against.
package chainweb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/minererr"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/node"
)

var log = chainlog.NewSubLogger("NODE")

// Config configures a Client.
type Config struct {
	BaseURL    string
	Network    string
	HTTPClient *http.Client
}

func (c Config) normalized() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Client implements node.Client against a single chainweb node.
type Client struct {
	cfg Config
}

// New creates a chainweb HTTP node client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.normalized()}
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/chainweb/0.0/%s/mining/%s", c.cfg.BaseURL, c.cfg.Network, path)
}

// GetWork implements node.Client. The response body is framed as
// work (286B) || target (32B, big-endian) || an opaque job token trailer
// of whatever length the node appends; the trailer is carried through
// verbatim on the MiningJob and must be returned unchanged to SubmitSolution.
func (c *Client) GetWork(ctx context.Context, chain core.ChainId) (*node.MiningJob, error) {
	url := fmt.Sprintf("%s?chain=%d", c.endpoint("work"), chain.Value())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, minererr.Wrap(minererr.Network, "building get-work request", err)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, minererr.Wrap(minererr.Network, "get-work request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, minererr.New(minererr.Network,
			fmt.Sprintf("get-work: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, minererr.Wrap(minererr.Network, "reading get-work body", err)
	}
	if len(body) < core.WorkSize+core.TargetSize {
		return nil, minererr.New(minererr.InvalidWork,
			"get-work response too short")
	}

	var workBytes [core.WorkSize]byte
	copy(workBytes[:], body[:core.WorkSize])
	work := core.WorkFromBytes(workBytes)

	var targetBytes [core.TargetSize]byte
	copy(targetBytes[:], body[core.WorkSize:core.WorkSize+core.TargetSize])
	target := core.TargetFromBytes(targetBytes)

	token := node.JobToken(append([]byte(nil), body[core.WorkSize+core.TargetSize:]...))
	jobID := fmt.Sprintf("%x", token)
	if len(token) == 0 {
		wb := work.AsBytes()
		jobID = fmt.Sprintf("%x", wb[:8])
	}

	return &node.MiningJob{
		JobID:      jobID,
		ChainId:    chain,
		Work:       work,
		Target:     target,
		Token:      token,
		ReceivedAt: time.Now(),
	}, nil
}

// SubmitSolution implements node.Client, appending job.Token back onto the
// solved Work buffer so the node can match the submission to the job it
// issued, symmetric with GetWork's response framing.
func (c *Client) SubmitSolution(ctx context.Context, job *node.MiningJob, solved core.Work) error {
	url := fmt.Sprintf("%s?chain=%d", c.endpoint("solved"), job.ChainId.Value())
	b := solved.AsBytes()

	body := make([]byte, 0, len(b)+len(job.Token))
	body = append(body, b[:]...)
	body = append(body, job.Token...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return minererr.Wrap(minererr.Network, "building submit-solution request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return minererr.Wrap(minererr.Network, "submit-solution request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return minererr.New(minererr.Network,
			fmt.Sprintf("submit-solution: unexpected status %d", resp.StatusCode))
	}
	return nil
}

// SubscribeUpdates implements node.Client against a long-lived
// server-sent-event stream. Each event whose data line parses as a decimal
// chain id is forwarded; anything else is ignored rather than failing the
// whole subscription, since keep-alive comment lines are common in SSE.
func (c *Client) SubscribeUpdates(ctx context.Context, chain core.ChainId) (<-chan node.Update, error) {
	url := fmt.Sprintf("%s?chain=%d", c.endpoint("updates"), chain.Value())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, minererr.Wrap(minererr.Network, "building subscribe-updates request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, minererr.Wrap(minererr.Network, "subscribe-updates request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, minererr.New(minererr.Network,
			fmt.Sprintf("subscribe-updates: unexpected status %d", resp.StatusCode))
	}

	out := make(chan node.Update)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			n, err := strconv.ParseUint(payload, 10, 16)
			if err != nil {
				log.Debugf("subscribe-updates: ignoring non-numeric event %q", payload)
				continue
			}

			select {
			case out <- node.Update{ChainId: core.NewChainId(uint16(n))}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
