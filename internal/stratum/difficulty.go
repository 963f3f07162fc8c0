package stratum

import (
	"math/big"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/minererr"
)

// target1 is the difficulty-1 target, 2^224 - 1, following the worked
// example in spec.md §4.5 (a difficulty of 1 maps to a 224-bit-range
// target). Session (pool) difficulty is always expressed relative to this
// constant, independent of the block target the node supplies.
var target1 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))

// DifficultyToTarget computes floor(target1 / difficulty) as a 32-byte
// big-endian Target. Monotonic: a larger difficulty yields a strictly
// smaller-or-equal target (P8).
func DifficultyToTarget(difficulty float64) (core.Target, error) {
	if difficulty <= 0 {
		return core.Target{}, minererr.New(minererr.Protocol,
			"difficulty must be positive")
	}

	num := new(big.Float).SetInt(target1)
	den := big.NewFloat(difficulty)
	quo := new(big.Float).Quo(num, den)

	i, _ := quo.Int(nil)
	if i.Sign() < 0 {
		i.SetInt64(0)
	}

	b := i.Bytes()
	if len(b) > core.TargetSize {
		return core.MaxTarget(), nil
	}

	var t core.Target
	copy(t[core.TargetSize-len(b):], b)
	return t, nil
}
