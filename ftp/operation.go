package ftp

import (
	"os"

	"github.com/google/uuid"
)

// OperationID identifies a queued operation.
type OperationID = uuid.UUID

// TransferCallback receives Next progress updates followed by exactly one
// terminal result.
type TransferCallback func(result ClientResult, progress Progress)

// ResultCallback receives the terminal result of a single request operation.
type ResultCallback func(result ClientResult)

// ListCallback receives the sorted directory and file names of a listing.
type ListCallback func(result ClientResult, dirs, files []string)

// CompareCallback receives whether a local and a remote file are identical.
type CompareCallback func(result ClientResult, identical bool)

// operation is the closed set of queued client operations.
type operation interface {
	kind() string
	// fail reports a terminal result to the operation's callback.
	fail(result ClientResult) func()
	// release closes any local file the operation holds.
	release()
}

type downloadOp struct {
	remotePath  string
	localFolder string
	file        *os.File
	fileSize    uint32
	transferred uint32
	callback    TransferCallback
}

// missingRange is a gap discovered during a burst download.
type missingRange struct {
	offset uint32
	size   uint32
}

type burstDownloadOp struct {
	remotePath    string
	localFolder   string
	file          *os.File
	fileSize      uint32
	sizeKnown     bool
	currentOffset uint32
	missing       []missingRange
	callback      TransferCallback
}

type uploadOp struct {
	localPath    string
	remoteFolder string
	file         *os.File
	fileSize     uint32
	transferred  uint32
	callback     TransferCallback
}

type removeFileOp struct {
	path     string
	callback ResultCallback
}

type renameOp struct {
	from     string
	to       string
	callback ResultCallback
}

type createDirOp struct {
	path     string
	callback ResultCallback
}

type removeDirOp struct {
	path     string
	callback ResultCallback
}

type compareOp struct {
	localPath  string
	remotePath string
	localCRC   uint32
	callback   CompareCallback
}

type listDirOp struct {
	path     string
	offset   uint32
	dirs     []string
	files    []string
	callback ListCallback
}

type resetOp struct {
	callback ResultCallback
}

func (*downloadOp) kind() string      { return "download" }
func (*burstDownloadOp) kind() string { return "download_burst" }
func (*uploadOp) kind() string        { return "upload" }
func (*removeFileOp) kind() string    { return "remove_file" }
func (*renameOp) kind() string        { return "rename" }
func (*createDirOp) kind() string     { return "create_directory" }
func (*removeDirOp) kind() string     { return "remove_directory" }
func (*compareOp) kind() string       { return "compare" }
func (*listDirOp) kind() string       { return "list_directory" }
func (*resetOp) kind() string         { return "reset" }

func (o *downloadOp) fail(r ClientResult) func() {
	return transferNotice(o.callback, r, Progress{})
}

func (o *burstDownloadOp) fail(r ClientResult) func() {
	return transferNotice(o.callback, r, Progress{})
}

func (o *uploadOp) fail(r ClientResult) func() {
	return transferNotice(o.callback, r, Progress{})
}

func (o *removeFileOp) fail(r ClientResult) func() { return resultNotice(o.callback, r) }
func (o *renameOp) fail(r ClientResult) func()     { return resultNotice(o.callback, r) }
func (o *createDirOp) fail(r ClientResult) func()  { return resultNotice(o.callback, r) }
func (o *removeDirOp) fail(r ClientResult) func()  { return resultNotice(o.callback, r) }
func (o *resetOp) fail(r ClientResult) func()      { return resultNotice(o.callback, r) }

func (o *compareOp) fail(r ClientResult) func() {
	cb := o.callback
	if cb == nil {
		return nil
	}
	return func() { cb(r, false) }
}

func (o *listDirOp) fail(r ClientResult) func() {
	cb := o.callback
	if cb == nil {
		return nil
	}
	return func() { cb(r, nil, nil) }
}

func (o *downloadOp) release()      { closeFile(&o.file) }
func (o *burstDownloadOp) release() { closeFile(&o.file) }
func (o *uploadOp) release()        { closeFile(&o.file) }
func (*removeFileOp) release()      {}
func (*renameOp) release()          {}
func (*createDirOp) release()       {}
func (*removeDirOp) release()       {}
func (*compareOp) release()         {}
func (*listDirOp) release()         {}
func (*resetOp) release()           {}

func transferNotice(cb TransferCallback, r ClientResult, p Progress) func() {
	if cb == nil {
		return nil
	}
	return func() { cb(r, p) }
}

func resultNotice(cb ResultCallback, r ClientResult) func() {
	if cb == nil {
		return nil
	}
	return func() { cb(r) }
}

func closeFile(f **os.File) {
	if *f != nil {
		_ = (*f).Close()
		*f = nil
	}
}

// bytesTransferred counts the contiguous bytes minus the recorded gaps.
func (o *burstDownloadOp) bytesTransferred() uint32 {
	total := o.currentOffset
	for _, m := range o.missing {
		total -= m.size
	}
	return total
}
