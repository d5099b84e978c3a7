package ftp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opd-ai/groundlink/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketLayout(t *testing.T) {
	p := &Packet{
		Seq:           0x1234,
		Session:       7,
		Opcode:        OpReadFile,
		Size:          3,
		ReqOpcode:     OpOpenFileRO,
		BurstComplete: 1,
		Offset:        0xA1B2C3D4,
	}
	copy(p.Data[:], []byte{9, 8, 7})

	b := p.Encode()
	assert.Len(t, b, 251)
	assert.Equal(t, []byte{0x34, 0x12, 7, 5, 3, 4, 1, 0, 0xD4, 0xC3, 0xB2, 0xA1, 9, 8, 7}, b[:15])

	decoded, err := DecodePacket(b[:])
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.Equal(t, []byte{9, 8, 7}, decoded.Payload())
}

func TestDecodePacketShort(t *testing.T) {
	_, err := DecodePacket(make([]byte, limits.FTPHeaderSize-1))
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestPacketValidate(t *testing.T) {
	p := &Packet{Size: limits.MaxFTPData}
	assert.NoError(t, p.Validate())

	p.Size = limits.MaxFTPData + 1
	assert.ErrorIs(t, p.Validate(), ErrInvalidSize)
	assert.Len(t, p.Payload(), limits.MaxFTPData)
}

func TestPacketPaths(t *testing.T) {
	p := &Packet{}
	require.NoError(t, p.SetPath("/fs/microsd/log"))
	assert.Equal(t, uint8(len("/fs/microsd/log")+1), p.Size)
	assert.Equal(t, "/fs/microsd/log", p.PathAt(0))

	require.NoError(t, p.SetPathPair("/a.txt", "/b.txt"))
	assert.Equal(t, "/a.txt", p.PathAt(0))
	assert.Equal(t, "/b.txt", p.PathAt(1))
	assert.Equal(t, "", p.PathAt(5))

	assert.ErrorIs(t, p.SetPath(strings.Repeat("x", limits.MaxFTPData-1)), limits.ErrPathTooLong)
	assert.NoError(t, p.SetPath(strings.Repeat("x", limits.MaxFTPData-2)))
	assert.ErrorIs(t, p.SetPathPair(strings.Repeat("x", 200), strings.Repeat("y", 38)), limits.ErrPathTooLong)
}

func TestPacketUint32AndNak(t *testing.T) {
	p := &Packet{}
	p.SetUint32(0xDEADBEEF)
	assert.Equal(t, uint8(4), p.Size)
	assert.Equal(t, uint32(0xDEADBEEF), p.Uint32())

	p.nak(ServerErrFailErrno, errnoENOENT)
	assert.Equal(t, OpNak, p.Opcode)
	assert.Equal(t, []byte{uint8(ServerErrFailErrno), errnoENOENT}, p.Payload())
	assert.Equal(t, FileDoesNotExist, resultFromNak(p))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		server ServerResult
		client ClientResult
	}{
		{ServerSuccess, Success},
		{ServerErrTimeout, Timeout},
		{ServerErrFileIO, FileIoError},
		{ServerErrFileExists, FileExists},
		{ServerErrFileProtected, FileProtected},
		{ServerErrUnknownCommand, Unsupported},
		{ServerErrFileDoesNotExist, FileDoesNotExist},
		{ServerErrFail, ProtocolError},
		{ServerErrEOF, ProtocolError},
		{ServerResult(99), ProtocolError},
	}
	for _, tt := range tests {
		t.Run(tt.server.String(), func(t *testing.T) {
			assert.Equal(t, tt.client, translate(tt.server))
		})
	}
}

func TestOpcodeStrings(t *testing.T) {
	assert.Equal(t, "BurstReadFile", OpBurstReadFile.String())
	assert.Equal(t, "Opcode(42)", Opcode(42).String())
	assert.True(t, OpAck.IsResponse())
	assert.True(t, OpNak.IsResponse())
	assert.False(t, OpReadFile.IsResponse())
	assert.Equal(t, "FileIoError", FileIoError.String())
	assert.EqualError(t, Timeout.Err(), "ftp operation failed: Timeout")
	assert.NoError(t, Success.Err())
}

// referenceCRC32 is the bitwise form of the checksum autopilots compute.
func referenceCRC32(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xEDB88320
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func TestCRC32MatchesReference(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")

	var c CRC32
	assert.Equal(t, uint32(0), c.Sum32())
	c.Add(data[:10])
	c.Add(data[10:])
	assert.Equal(t, referenceCRC32(data), c.Sum32())

	var whole CRC32
	whole.Add(data)
	assert.Equal(t, c.Sum32(), whole.Sum32())
}

func TestFileCRC32(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.bin")
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sum, err := FileCRC32(path)
	require.NoError(t, err)
	assert.Equal(t, referenceCRC32(data), sum)

	_, err = FileCRC32(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
