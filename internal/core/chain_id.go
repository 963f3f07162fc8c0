package core

import (
	"encoding/json"
	"strconv"
)

// ChainId identifies a chain within a multi-chain network. It serializes
// transparently to a JSON number, never a wrapping object.
type ChainId uint16

// NewChainId creates a ChainId from a raw value.
func NewChainId(id uint16) ChainId {
	return ChainId(id)
}

// Value returns the underlying numeric value.
func (c ChainId) Value() uint16 {
	return uint16(c)
}

// String implements fmt.Stringer.
func (c ChainId) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// MarshalJSON emits the chain id as a bare JSON number.
func (c ChainId) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint16(c))
}

// UnmarshalJSON reads a bare JSON number into the chain id.
func (c *ChainId) UnmarshalJSON(data []byte) error {
	var v uint16
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = ChainId(v)
	return nil
}
