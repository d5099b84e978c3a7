package ftp

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/opd-ai/groundlink/limits"
	"github.com/sirupsen/logrus"
)

// DownloadAsync queues a download of remotePath into localFolder. With burst
// set the server streams the file and lost chunks are requested afterwards.
func (c *Client) DownloadAsync(remotePath, localFolder string, burst bool, cb TransferCallback, opts ...Option) OperationID {
	if burst {
		return c.enqueue(&burstDownloadOp{remotePath: remotePath, localFolder: localFolder, callback: cb}, opts)
	}
	return c.enqueue(&downloadOp{remotePath: remotePath, localFolder: localFolder, callback: cb}, opts)
}

// UploadAsync queues an upload of localPath into remoteFolder.
func (c *Client) UploadAsync(localPath, remoteFolder string, cb TransferCallback) OperationID {
	return c.enqueue(&uploadOp{localPath: localPath, remoteFolder: remoteFolder, callback: cb}, nil)
}

// ListDirectoryAsync queues a listing of the remote directory at path.
func (c *Client) ListDirectoryAsync(path string, cb ListCallback) OperationID {
	return c.enqueue(&listDirOp{path: path, callback: cb}, nil)
}

// CreateDirectoryAsync queues creation of a remote directory.
func (c *Client) CreateDirectoryAsync(path string, cb ResultCallback) OperationID {
	return c.enqueue(&createDirOp{path: path, callback: cb}, nil)
}

// RemoveDirectoryAsync queues removal of an empty remote directory.
func (c *Client) RemoveDirectoryAsync(path string, cb ResultCallback) OperationID {
	return c.enqueue(&removeDirOp{path: path, callback: cb}, nil)
}

// RemoveFileAsync queues removal of a remote file.
func (c *Client) RemoveFileAsync(path string, cb ResultCallback) OperationID {
	return c.enqueue(&removeFileOp{path: path, callback: cb}, nil)
}

// RenameAsync queues a remote rename.
func (c *Client) RenameAsync(from, to string, cb ResultCallback) OperationID {
	return c.enqueue(&renameOp{from: from, to: to, callback: cb}, nil)
}

// AreFilesIdenticalAsync queues a CRC32 comparison of a local and a remote file.
func (c *Client) AreFilesIdenticalAsync(localPath, remotePath string, cb CompareCallback) OperationID {
	return c.enqueue(&compareOp{localPath: localPath, remotePath: remotePath, callback: cb}, nil)
}

// ResetAsync asks the server to close all of its sessions.
func (c *Client) ResetAsync(cb ResultCallback) OperationID {
	return c.enqueue(&resetOp{callback: cb}, nil)
}

// openLocalTarget creates the file a download is written to.
func openLocalTarget(localFolder, remotePath string) (*os.File, error) {
	local := filepath.Join(localFolder, path.Base(remotePath))
	return os.OpenFile(local, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

// openRequest builds the OpenFileRO request shared by both download kinds.
func openRequest(remotePath string) (*Packet, error) {
	p := &Packet{Opcode: OpOpenFileRO}
	if err := p.SetPath(remotePath); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Client) downloadStart(w *work, op *downloadOp) bool {
	req, err := openRequest(op.remotePath)
	if err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}
	f, err := openLocalTarget(op.localFolder, op.remotePath)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "downloadStart",
			"folder":   op.localFolder,
			"error":    err.Error(),
		}).Error("Could not open local file for download")
		c.finish(w, FileIoError, false)
		return false
	}
	op.file = f
	c.send(w, req)
	return true
}

func (c *Client) onDownload(w *work, op *downloadOp, p *Packet) {
	if p.Opcode == OpNak {
		c.finish(w, resultFromNak(p), true)
		return
	}

	switch p.ReqOpcode {
	case OpOpenFileRO:
		w.retries = c.retries
		if p.Size < 4 {
			c.finish(w, ProtocolError, true)
			return
		}
		op.fileSize = p.Uint32()
		logrus.WithFields(logrus.Fields{
			"function": "onDownload",
			"path":     op.remotePath,
			"size":     op.fileSize,
		}).Debug("Download opened")

	case OpReadFile:
		if p.Offset != op.transferred {
			logrus.WithFields(logrus.Fields{
				"function": "onDownload",
				"offset":   p.Offset,
				"expected": op.transferred,
			}).Warn("Ignoring read response for another offset")
			return
		}
		w.retries = c.retries
		data := p.Payload()
		if len(data) == 0 {
			c.finish(w, ProtocolError, true)
			return
		}
		if remaining := op.fileSize - op.transferred; uint32(len(data)) > remaining {
			data = data[:remaining]
		}
		if _, err := op.file.WriteAt(data, int64(op.transferred)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "onDownload",
				"error":    err.Error(),
			}).Error("Could not write downloaded data")
			c.finish(w, FileIoError, true)
			return
		}
		op.transferred += uint32(len(data))
		c.notify(transferNotice(op.callback, Next, Progress{op.transferred, op.fileSize}))

	case OpTerminateSession:
		c.finish(w, Success, false)
		return

	default:
		return
	}

	if op.transferred < op.fileSize {
		c.send(w, &Packet{
			Opcode: OpReadFile,
			Offset: op.transferred,
			Size:   uint8(min(uint32(limits.MaxFTPData), op.fileSize-op.transferred)),
		})
		return
	}
	c.endSession(w)
}

func (c *Client) uploadStart(w *work, op *uploadOp) bool {
	info, err := os.Stat(op.localPath)
	if errors.Is(err, fs.ErrNotExist) {
		c.finish(w, FileDoesNotExist, false)
		return false
	}
	if err != nil || !info.Mode().IsRegular() {
		c.finish(w, FileIoError, false)
		return false
	}
	if err := limits.ValidateFileSize(info.Size()); err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}

	req := &Packet{Opcode: OpCreateFile}
	if err := req.SetPath(path.Join(op.remoteFolder, filepath.Base(op.localPath))); err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}

	f, err := os.Open(op.localPath)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "uploadStart",
			"path":     op.localPath,
			"error":    err.Error(),
		}).Error("Could not open local file for upload")
		c.finish(w, FileIoError, false)
		return false
	}
	op.file = f
	op.fileSize = uint32(info.Size())
	c.send(w, req)
	return true
}

func (c *Client) onUpload(w *work, op *uploadOp, p *Packet) {
	if p.Opcode == OpNak {
		c.finish(w, resultFromNak(p), true)
		return
	}

	switch p.ReqOpcode {
	case OpCreateFile, OpOpenFileWO:
		w.retries = c.retries
	case OpWriteFile:
		w.retries = c.retries
		c.notify(transferNotice(op.callback, Next, Progress{op.transferred, op.fileSize}))
	case OpTerminateSession:
		c.finish(w, Success, false)
		return
	default:
		return
	}

	if op.transferred >= op.fileSize {
		c.endSession(w)
		return
	}

	want := min(uint32(limits.MaxFTPData), op.fileSize-op.transferred)
	buf := make([]byte, want)
	n, err := op.file.ReadAt(buf, int64(op.transferred))
	if uint32(n) != want || (err != nil && err != io.EOF) {
		logrus.WithFields(logrus.Fields{
			"function": "onUpload",
			"offset":   op.transferred,
			"read":     n,
		}).Error("Could not read local file for upload")
		c.finish(w, FileIoError, true)
		return
	}

	req := &Packet{Opcode: OpWriteFile, Offset: op.transferred}
	if err := req.SetPayload(buf); err != nil {
		c.finish(w, FileIoError, true)
		return
	}
	op.transferred += want
	c.send(w, req)
}

// pathStart sends a request carrying a single path.
func (c *Client) pathStart(w *work, opcode Opcode, remotePath string) bool {
	req := &Packet{Opcode: opcode}
	if err := req.SetPath(remotePath); err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}
	c.send(w, req)
	return true
}

func (c *Client) renameStart(w *work, op *renameOp) bool {
	req := &Packet{Opcode: OpRename}
	if err := req.SetPathPair(op.from, op.to); err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}
	c.send(w, req)
	return true
}

func (c *Client) compareStart(w *work, op *compareOp) bool {
	req := &Packet{Opcode: OpCalcFileCRC32}
	if err := req.SetPath(op.remotePath); err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}

	sum, err := FileCRC32(op.localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.finish(w, FileDoesNotExist, false)
		return false
	case err != nil:
		c.finish(w, FileIoError, false)
		return false
	}
	op.localCRC = sum

	c.send(w, req)
	return true
}

func (c *Client) onCompare(w *work, op *compareOp, p *Packet) {
	if p.Opcode == OpNak {
		c.finish(w, resultFromNak(p), false)
		return
	}
	if p.Size < 4 {
		c.finish(w, ProtocolError, false)
		return
	}

	remote := p.Uint32()
	identical := remote == op.localCRC
	logrus.WithFields(logrus.Fields{
		"function": "onCompare",
		"local":    op.localCRC,
		"remote":   remote,
	}).Debug("Compared checksums")

	cb := op.callback
	op.callback = nil
	c.finish(w, Success, false)
	if cb != nil {
		c.notify(func() { cb(Success, identical) })
	}
}

func (c *Client) listStart(w *work, op *listDirOp) bool {
	return c.pathStart(w, OpListDirectory, op.path)
}

func (c *Client) onList(w *work, op *listDirOp, p *Packet) {
	if p.Opcode == OpNak {
		if ServerResult(p.Data[0]) == ServerErrEOF {
			c.listDone(w, op)
			return
		}
		c.finish(w, resultFromNak(p), false)
		return
	}

	w.retries = c.retries
	if p.Size == 0 {
		c.listDone(w, op)
		return
	}

	for _, entry := range bytes.Split(p.Payload(), []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		op.offset++

		name := entry[1:]
		if tab := bytes.IndexByte(name, '\t'); tab >= 0 {
			name = name[:tab]
		}
		switch entry[0] {
		case 'S':
		case 'D':
			op.dirs = append(op.dirs, string(name))
		case 'F':
			op.files = append(op.files, string(name))
		default:
			logrus.WithFields(logrus.Fields{
				"function": "onList",
				"entry":    string(entry),
			}).Warn("Unknown directory entry")
		}
	}

	req := &Packet{Opcode: OpListDirectory, Offset: op.offset}
	if err := req.SetPath(op.path); err != nil {
		c.finish(w, InvalidParameter, true)
		return
	}
	c.send(w, req)
}

func (c *Client) listDone(w *work, op *listDirOp) {
	sort.Strings(op.dirs)
	sort.Strings(op.files)
	dirs, files := op.dirs, op.files
	if dirs == nil {
		dirs = []string{}
	}
	if files == nil {
		files = []string{}
	}

	cb := op.callback
	op.callback = nil
	c.finish(w, Success, true)
	if cb != nil {
		c.notify(func() { cb(Success, dirs, files) })
	}
}
