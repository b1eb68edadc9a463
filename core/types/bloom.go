package types

import "github.com/ethereum/go-ethereum/crypto"

// bloomAdd sets the three filter bits derived from the keccak256 of data,
// per the Yellow Paper M3:2048 function.
func (b *Bloom) bloomAdd(data []byte) {
	h := crypto.Keccak256(data)
	for i := 0; i < 6; i += 2 {
		bit := (uint(h[i+1]) + (uint(h[i]) << 8)) & 2047
		b[BloomLength-1-bit/8] |= byte(1 << (bit % 8))
	}
}

// Add inserts data into the filter.
func (b *Bloom) Add(data []byte) { b.bloomAdd(data) }

// Test reports whether data may be present in the filter.
func (b Bloom) Test(data []byte) bool {
	h := crypto.Keccak256(data)
	for i := 0; i < 6; i += 2 {
		bit := (uint(h[i+1]) + (uint(h[i]) << 8)) & 2047
		if b[BloomLength-1-bit/8]&byte(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// Or merges other into the filter.
func (b *Bloom) Or(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// LogsBloom computes the bloom filter covering the given logs.
func LogsBloom(logs []*Log) Bloom {
	var bloom Bloom
	for _, l := range logs {
		bloom.bloomAdd(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.bloomAdd(topic.Bytes())
		}
	}
	return bloom
}

// CreateBloom computes the union bloom filter over all receipts.
func CreateBloom(receipts []*Receipt) Bloom {
	var bloom Bloom
	for _, r := range receipts {
		bloom.Or(LogsBloom(r.Logs))
	}
	return bloom
}
