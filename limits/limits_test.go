package limits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstants(t *testing.T) {
	assert.Equal(t, 239, MaxFTPData)
	assert.Equal(t, 251, MaxFTPPayload)
	assert.Equal(t, MaxFTPPayload, FTPHeaderSize+MaxFTPData)
}

func TestValidateFTPData(t *testing.T) {
	assert.NoError(t, ValidateFTPData(nil))
	assert.NoError(t, ValidateFTPData(make([]byte, MaxFTPData)))
	assert.ErrorIs(t, ValidateFTPData(make([]byte, MaxFTPData+1)), ErrMessageTooLarge)
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath(""))
	assert.NoError(t, ValidatePath("/fs/microsd/log.ulg"))
	assert.NoError(t, ValidatePath(strings.Repeat("a", MaxFTPData-2)))
	assert.ErrorIs(t, ValidatePath(strings.Repeat("a", MaxFTPData-1)), ErrPathTooLong)
}

func TestValidatePathPair(t *testing.T) {
	assert.NoError(t, ValidatePathPair("a", "b"))

	half := strings.Repeat("x", (MaxFTPData-2)/2)
	assert.NoError(t, ValidatePathPair(half, half))
	assert.ErrorIs(t, ValidatePathPair(half, half+"yy"), ErrPathTooLong)
}

func TestValidateFileSize(t *testing.T) {
	assert.NoError(t, ValidateFileSize(0))
	assert.NoError(t, ValidateFileSize(MaxFileSize))
	assert.ErrorIs(t, ValidateFileSize(MaxFileSize+1), ErrFileTooLarge)
	assert.ErrorIs(t, ValidateFileSize(-1), ErrFileTooLarge)
}
