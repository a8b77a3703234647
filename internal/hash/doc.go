// Package hash provides the CRC32-Castagnoli checksum that protects framed
// segment payloads in the disk and blob tiers.
//
// CRC32C is hardware accelerated on x86 (SSE4.2) and ARM (CRC extension),
// so checksumming bodies on every tier read costs little next to the IO.
//
//	sum := hash.CRC32C(payload)
//
//	h := hash.NewCRC32C()
//	h.Write(header)
//	h.Write(body)
//	sum := h.Sum32()
package hash
