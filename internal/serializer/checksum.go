// internal/serializer/checksum.go
package serializer

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"

	"device-dispatch/internal/model"
)

// CRC-8/SMBUS: polynomial x^8 + x^2 + x + 1, init 0x00, no reflection, no final xor
const crc8Poly = 0x07

var crc8Table = makeCRC8Table(crc8Poly)

func makeCRC8Table(poly byte) [256]byte {
	var table [256]byte
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CRC8 computes CRC-8/SMBUS over data
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}

// CRC32 computes the IEEE CRC-32 over data
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// XOR folds every byte of data together. It only detects corruption that
// flips an odd number of bits in some bit position.
func XOR(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// Checksum returns the big-endian checksum bytes of data for alg
func Checksum(alg model.ChecksumAlgorithm, data []byte) ([]byte, error) {
	switch alg {
	case model.ChecksumCRC8:
		return []byte{CRC8(data)}, nil
	case model.ChecksumXOR:
		return []byte{XOR(data)}, nil
	case model.ChecksumCRC32:
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, CRC32(data))
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %q", alg)
	}
}

// ChecksumHex renders the checksum of data as upper-case hex
func ChecksumHex(alg model.ChecksumAlgorithm, data []byte) (string, error) {
	sum, err := Checksum(alg, data)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(sum)), nil
}
