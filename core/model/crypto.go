package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

func Keccak256(data string) string {
	hasher := sha3.NewLegacyKeccak256()

	hasher.Write([]byte(data))

	hash := hasher.Sum(nil)

	return fmt.Sprintf("%x", hash)
}

// ListingRef derives a 32-byte listing reference id from free text. A value
// that already is a 0x-prefixed 32-byte hex string is used as is.
func ListingRef(s string) common.Hash {
	if len(s) == 2+2*common.HashLength && (s[:2] == "0x" || s[:2] == "0X") {
		if b := common.FromHex(s); len(b) == common.HashLength {
			return common.BytesToHash(b)
		}
	}
	return common.HexToHash(Keccak256(s))
}
