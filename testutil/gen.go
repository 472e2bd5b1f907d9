package testutil

import (
	"math/rand"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// RandomBytes returns a byte array of the given size with random values.
func RandomBytes(n int64) []byte {
	bz := make([]byte, n)
	rand.Read(bz)
	return bz
}

// GenerateCids produces n content identifiers over random payloads.
func GenerateCids(n int) []cid.Cid {
	cids := make([]cid.Cid, 0, n)
	for i := 0; i < n; i++ {
		cids = append(cids, GenerateCid())
	}
	return cids
}

func GenerateCid() cid.Cid {
	digest, err := mh.Sum(RandomBytes(32), mh.BLAKE3, 32)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, digest)
}

// GenerateAddr produces a random ID address.
func GenerateAddr() address.Address {
	addr, err := address.NewIDAddress(uint64(rand.Int63n(1_000_000)))
	if err != nil {
		panic(err)
	}
	return addr
}

// GenerateAddrs produces n distinct ID addresses.
func GenerateAddrs(n int) []address.Address {
	addrs := make([]address.Address, 0, n)
	for i := 0; i < n; i++ {
		addr, err := address.NewIDAddress(uint64(1000 + i))
		if err != nil {
			panic(err)
		}
		addrs = append(addrs, addr)
	}
	return addrs
}
