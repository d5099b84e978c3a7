package ftp

import (
	"hash/crc32"
	"io"
	"os"
)

// CRC32 accumulates the checksum used by CalcFileCRC32.
//
// It is the reflected IEEE polynomial started from zero with no final
// inversion, which is what autopilot firmware computes. A zero value is
// ready to use.
type CRC32 struct {
	sum uint32
}

// Add feeds p into the checksum.
func (c *CRC32) Add(p []byte) {
	c.sum = ^crc32.Update(^c.sum, crc32.IEEETable, p)
}

// Write implements io.Writer.
func (c *CRC32) Write(p []byte) (int, error) {
	c.Add(p)
	return len(p), nil
}

// Sum32 returns the current checksum.
func (c *CRC32) Sum32() uint32 {
	return c.sum
}

// FileCRC32 computes the checksum of the file at path.
func FileCRC32(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var c CRC32
	if _, err := io.Copy(&c, f); err != nil {
		return 0, err
	}
	return c.Sum32(), nil
}
