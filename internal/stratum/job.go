package stratum

import (
	"encoding/hex"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/minererr"
)

// Byte layout this server imposes on the 278-byte prefix (everything before
// the nonce field) of a Work buffer, so that a flat opaque chainweb header
// can be carried over a protocol designed around Bitcoin-style coinbase
// splicing. There is no merkle tree in a chainweb header, so merkle_branches
// is always sent empty; coinb1/coinb2 simply bracket the splice region.
const (
	prevHashOffset = 0
	prevHashSize   = 32

	versionOffset = prevHashOffset + prevHashSize // 32
	versionSize   = 4

	nbitsOffset = versionOffset + versionSize // 36
	nbitsSize   = 4

	ntimeOffset = nbitsOffset + nbitsSize // 40
	ntimeSize   = 4

	extraNonce1Offset = ntimeOffset + ntimeSize // 44
	extraNonce1Size   = 4

	extraNonce2Offset = extraNonce1Offset + extraNonce1Size // 48
	extraNonce2Size   = 4

	coinb2Offset = extraNonce2Offset + extraNonce2Size // 52
)

// JobTemplate is a node work item translated into the splice layout above,
// ready to be broadcast to Stratum sessions and reassembled from their
// submissions.
type JobTemplate struct {
	ID     string
	Work   core.Work
	Target core.Target
}

// NewJobTemplate wraps a (Work, Target) pair received from the node under a
// job id.
func NewJobTemplate(id string, work core.Work, target core.Target) *JobTemplate {
	return &JobTemplate{ID: id, Work: work, Target: target}
}

func (j *JobTemplate) prefix() []byte {
	return j.Work.AsBytes()[:core.NonceOffset]
}

// NotifyParams builds the 9 mining.notify parameters for this job.
// extranonce1 is not itself a parameter (it was given to the session at
// subscribe time); the miner places it, followed by its own extranonce2,
// between coinb1 and coinb2, which is the region Splice fills back in.
func (j *JobTemplate) NotifyParams(cleanJobs bool) []interface{} {
	p := j.prefix()
	coinb1 := p[:extraNonce1Offset]
	coinb2 := p[coinb2Offset:]
	return []interface{}{
		j.ID,
		hex.EncodeToString(p[prevHashOffset : prevHashOffset+prevHashSize]),
		hex.EncodeToString(coinb1),
		hex.EncodeToString(coinb2),
		[]string{}, // merkle_branches: chainweb headers carry no merkle tree.
		hex.EncodeToString(p[versionOffset : versionOffset+versionSize]),
		hex.EncodeToString(p[nbitsOffset : nbitsOffset+nbitsSize]),
		hex.EncodeToString(p[ntimeOffset : ntimeOffset+ntimeSize]),
		cleanJobs,
	}
}

// Splice reassembles a full Work buffer from this job's template plus the
// session's extranonce1 and the miner-submitted extranonce2/ntime/nonce,
// per spec.md §4.6 point 2.
func (j *JobTemplate) Splice(extranonce1, extranonce2, ntime [4]byte, nonce core.Nonce) core.Work {
	work := j.Work
	b := work.AsBytes()
	copy(b[ntimeOffset:ntimeOffset+ntimeSize], ntime[:])
	copy(b[extraNonce1Offset:extraNonce1Offset+extraNonce1Size], extranonce1[:])
	copy(b[extraNonce2Offset:extraNonce2Offset+extraNonce2Size], extranonce2[:])
	work = core.WorkFromBytes(*b)
	work.SetNonce(nonce)
	return work
}

func decodeFixed4(s string) ([4]byte, error) {
	var out [4]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, minererr.Wrap(minererr.Protocol, "invalid hex field", err)
	}
	if len(b) != 4 {
		return out, minererr.New(minererr.Protocol, "field must be 4 bytes")
	}
	copy(out[:], b)
	return out, nil
}

func decodeNonceHex(s string) (core.Nonce, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, minererr.Wrap(minererr.Protocol, "invalid nonce hex", err)
	}
	if len(b) != core.NonceSize {
		return 0, minererr.New(minererr.Protocol, "nonce must be 8 bytes")
	}
	var arr [8]byte
	copy(arr[:], b)
	return core.NonceFromLeBytes(arr), nil
}
