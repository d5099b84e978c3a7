package ftp

import "fmt"

// Opcode identifies the operation a payload carries.
type Opcode uint8

const (
	OpNone              Opcode = 0
	OpTerminateSession  Opcode = 1
	OpResetSessions     Opcode = 2
	OpListDirectory     Opcode = 3
	OpOpenFileRO        Opcode = 4
	OpReadFile          Opcode = 5
	OpCreateFile        Opcode = 6
	OpWriteFile         Opcode = 7
	OpRemoveFile        Opcode = 8
	OpCreateDirectory   Opcode = 9
	OpRemoveDirectory   Opcode = 10
	OpOpenFileWO        Opcode = 11
	OpTruncateFile      Opcode = 12
	OpRename            Opcode = 13
	OpCalcFileCRC32     Opcode = 14
	OpBurstReadFile     Opcode = 15
	OpAck               Opcode = 128
	OpNak               Opcode = 129
)

var opcodeNames = map[Opcode]string{
	OpNone:             "None",
	OpTerminateSession: "TerminateSession",
	OpResetSessions:    "ResetSessions",
	OpListDirectory:    "ListDirectory",
	OpOpenFileRO:       "OpenFileRO",
	OpReadFile:         "ReadFile",
	OpCreateFile:       "CreateFile",
	OpWriteFile:        "WriteFile",
	OpRemoveFile:       "RemoveFile",
	OpCreateDirectory:  "CreateDirectory",
	OpRemoveDirectory:  "RemoveDirectory",
	OpOpenFileWO:       "OpenFileWO",
	OpTruncateFile:     "TruncateFile",
	OpRename:           "Rename",
	OpCalcFileCRC32:    "CalcFileCRC32",
	OpBurstReadFile:    "BurstReadFile",
	OpAck:              "Ack",
	OpNak:              "Nak",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// IsResponse reports whether o is Ack or Nak.
func (o Opcode) IsResponse() bool {
	return o == OpAck || o == OpNak
}

// ServerResult is the error code a server puts in data[0] of a Nak.
type ServerResult uint8

const (
	ServerSuccess             ServerResult = 0
	ServerErrFail             ServerResult = 1
	ServerErrFailErrno        ServerResult = 2
	ServerErrInvalidDataSize  ServerResult = 3
	ServerErrInvalidSession   ServerResult = 4
	ServerErrNoSessions       ServerResult = 5
	ServerErrEOF              ServerResult = 6
	ServerErrUnknownCommand   ServerResult = 7
	ServerErrFileExists       ServerResult = 8
	ServerErrFileProtected    ServerResult = 9
	ServerErrFileDoesNotExist ServerResult = 10
	ServerErrTimeout          ServerResult = 200
	ServerErrFileIO           ServerResult = 201
)

var serverResultNames = map[ServerResult]string{
	ServerSuccess:             "Success",
	ServerErrFail:             "Fail",
	ServerErrFailErrno:        "FailErrno",
	ServerErrInvalidDataSize:  "InvalidDataSize",
	ServerErrInvalidSession:   "InvalidSession",
	ServerErrNoSessions:       "NoSessionsAvailable",
	ServerErrEOF:              "EOF",
	ServerErrUnknownCommand:   "UnknownCommand",
	ServerErrFileExists:       "FileExists",
	ServerErrFileProtected:    "FileProtected",
	ServerErrFileDoesNotExist: "FileDoesNotExist",
	ServerErrTimeout:          "Timeout",
	ServerErrFileIO:           "FileIoError",
}

func (r ServerResult) String() string {
	if name, ok := serverResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ServerResult(%d)", uint8(r))
}
