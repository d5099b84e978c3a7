package ftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/opd-ai/groundlink/limits"
	"github.com/opd-ai/groundlink/transport"
	"github.com/sirupsen/logrus"
)

// resolve maps a request path onto the local filesystem below the root.
// Caller holds s.mu.
func (s *Server) resolve(name string) (string, ServerResult) {
	if s.rootDir == "" {
		return "", ServerErrFail
	}
	full := filepath.Join(s.rootDir, filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if !within(s.rootDir, full) {
		logrus.WithFields(logrus.Fields{
			"function": "resolve",
			"path":     name,
			"root":     s.rootDir,
		}).Warn("FTP path outside root directory")
		return "", ServerErrFail
	}

	resolved, err := canonicalPath(full)
	if err != nil || !within(s.rootDir, resolved) {
		fields := logrus.Fields{
			"function": "resolve",
			"path":     name,
			"root":     s.rootDir,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		logrus.WithFields(fields).Warn("FTP path leaves root directory through a link")
		return "", ServerErrFail
	}
	return full, ServerSuccess
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// canonicalPath resolves the links in p. Trailing components that do not
// exist yet are kept as written; a dangling link is an error.
func canonicalPath(p string) (string, error) {
	rest := ""
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(p); lerr == nil {
			return "", fmt.Errorf("dangling link %q", p)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// resolveOpen is resolve with temporary file aliases taking precedence.
func (s *Server) resolveOpen(name string) (string, ServerResult) {
	if alias, ok := s.tempFiles[name]; ok {
		return alias, ServerSuccess
	}
	return s.resolve(name)
}

// statResult maps a stat error onto a server result.
func statResult(err error) ServerResult {
	if errors.Is(err, fs.ErrNotExist) {
		return ServerErrFileDoesNotExist
	}
	return ServerErrFail
}

// errnoNak fills reply with ERR_FAIL_ERRNO when err carries an errno.
func errnoNak(reply *Packet, err error) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		reply.nak(ServerErrFailErrno, uint8(errno))
		return
	}
	reply.nak(ServerErrFail)
}

func (s *Server) workList(req, reply *Packet) {
	dir, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "workList",
			"path":     dir,
			"error":    err.Error(),
		}).Warn("Could not list directory")
		reply.nak(statResult(err))
		return
	}

	var data []byte
	skip := req.Offset
	for _, entry := range entries {
		if skip > 0 {
			skip--
			continue
		}

		var line string
		info, err := entry.Info()
		switch {
		case err != nil:
			line = "S"
		case info.Mode().IsRegular():
			line = "F" + entry.Name() + "\t" + strconv.FormatInt(info.Size(), 10)
		case info.IsDir():
			line = "D" + entry.Name()
		default:
			// Keeps entry offsets in step with the directory.
			line = "S"
		}

		if len(data)+len(line)+1 > limits.MaxFTPData {
			break
		}
		data = append(data, line...)
		data = append(data, 0)
	}

	if len(data) == 0 {
		reply.nak(ServerErrEOF)
		return
	}
	reply.ack()
	_ = reply.SetPayload(data)
}

func (s *Server) workOpenRead(req, reply *Packet) {
	s.resetSession()

	path, res := s.resolveOpen(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		reply.nak(statResult(err))
		return
	}
	if !info.Mode().IsRegular() || limits.ValidateFileSize(info.Size()) != nil {
		reply.nak(ServerErrFail)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "workOpenRead",
			"path":     path,
			"error":    err.Error(),
		}).Warn("Open failed")
		reply.nak(ServerErrFail)
		return
	}

	s.session = session{mode: sessionRead, file: f, path: path, size: uint32(info.Size())}
	reply.ack()
	reply.SetUint32(s.session.size)
}

func (s *Server) workOpenWrite(req, reply *Packet) {
	s.resetSession()

	path, res := s.resolveOpen(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		reply.nak(statResult(err))
		return
	}
	if !info.Mode().IsRegular() || limits.ValidateFileSize(info.Size()) != nil {
		reply.nak(ServerErrFail)
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		reply.nak(ServerErrFail)
		return
	}

	s.session = session{mode: sessionWrite, file: f, path: path, size: uint32(info.Size())}
	reply.ack()
	reply.SetUint32(s.session.size)
}

func (s *Server) workCreate(req, reply *Packet) {
	s.resetSession()

	path, res := s.resolveOpen(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "workCreate",
			"path":     path,
			"error":    err.Error(),
		}).Warn("Create failed")
		reply.nak(ServerErrFail)
		return
	}

	s.session = session{mode: sessionWrite, file: f, path: path}
	reply.ack()
}

func (s *Server) workRead(req, reply *Packet) {
	if s.session.mode != sessionRead {
		reply.nak(ServerErrInvalidSession)
		return
	}
	if req.Offset >= s.session.size {
		reply.nak(ServerErrEOF)
		return
	}

	want := min(uint32(req.Size), s.session.size-req.Offset)
	n, err := s.session.file.ReadAt(reply.Data[:want], int64(req.Offset))
	if n == 0 && err != nil && err != io.EOF {
		logrus.WithFields(logrus.Fields{
			"function": "workRead",
			"offset":   req.Offset,
			"error":    err.Error(),
		}).Warn("Read failed")
		reply.Data = [limits.MaxFTPData]byte{}
		reply.nak(ServerErrFail)
		return
	}

	reply.ack()
	reply.Offset = req.Offset
	reply.Size = uint8(n)
}

func (s *Server) workWrite(req, reply *Packet) {
	if s.session.mode != sessionWrite {
		reply.nak(ServerErrInvalidSession)
		return
	}

	data := req.Payload()
	if _, err := s.session.file.WriteAt(data, int64(req.Offset)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "workWrite",
			"offset":   req.Offset,
			"error":    err.Error(),
		}).Warn("Write failed")
		reply.nak(ServerErrFail)
		return
	}
	if end := req.Offset + uint32(len(data)); end > s.session.size {
		s.session.size = end
	}
	reply.ack()
}

// workBurst starts streaming from the open file. DoWork sends the chunks.
func (s *Server) workBurst(peer transport.Address, req, reply *Packet) bool {
	if s.session.mode != sessionRead {
		reply.nak(ServerErrInvalidSession)
		return true
	}
	if req.Offset >= s.session.size {
		reply.nak(ServerErrEOF)
		return true
	}

	chunk := req.Size
	if chunk == 0 {
		chunk = limits.MaxFTPData
	}
	s.session.burst = &burstStream{
		peer:   peer,
		offset: req.Offset,
		chunk:  chunk,
		seq:    req.Seq + 1,
	}
	// Stream sequence numbers would collide with a cached reply.
	s.lastReply = nil

	logrus.WithFields(logrus.Fields{
		"function": "workBurst",
		"path":     s.session.path,
		"offset":   req.Offset,
		"chunk":    chunk,
	}).Debug("Burst read started")
	return false
}

func (s *Server) workRemoveFile(req, reply *Packet) {
	path, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	info, err := os.Lstat(path)
	if err != nil {
		reply.nak(statResult(err))
		return
	}
	if info.IsDir() {
		reply.nak(ServerErrFail)
		return
	}
	if err := os.Remove(path); err != nil {
		reply.nak(ServerErrFail)
		return
	}
	reply.ack()
}

func (s *Server) workCreateDirectory(req, reply *Packet) {
	path, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	if _, err := os.Lstat(path); err == nil {
		reply.nak(ServerErrFileExists)
		return
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		errnoNak(reply, err)
		return
	}
	reply.ack()
}

func (s *Server) workRemoveDirectory(req, reply *Packet) {
	path, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	if path == s.rootDir {
		reply.nak(ServerErrFileProtected)
		return
	}
	info, err := os.Lstat(path)
	if err != nil {
		reply.nak(statResult(err))
		return
	}
	if !info.IsDir() {
		reply.nak(ServerErrFail)
		return
	}
	if err := os.Remove(path); err != nil {
		reply.nak(ServerErrFail)
		return
	}
	reply.ack()
}

func (s *Server) workRename(req, reply *Packet) {
	from, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	to, res := s.resolve(req.PathAt(1))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	if _, err := os.Lstat(from); err != nil {
		reply.nak(statResult(err))
		return
	}
	if err := os.Rename(from, to); err != nil {
		reply.nak(ServerErrFail)
		return
	}
	reply.ack()
}

func (s *Server) workCRC32(req, reply *Packet) {
	path, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	if _, err := os.Stat(path); err != nil {
		reply.nak(statResult(err))
		return
	}
	sum, err := FileCRC32(path)
	if err != nil {
		reply.nak(ServerErrFileIO)
		return
	}
	reply.ack()
	reply.SetUint32(sum)
}

// workTruncate cuts the file named in the payload to req.Offset bytes.
func (s *Server) workTruncate(req, reply *Packet) {
	path, res := s.resolve(req.PathAt(0))
	if res != ServerSuccess {
		reply.nak(res)
		return
	}
	if _, err := os.Stat(path); err != nil {
		reply.nak(statResult(err))
		return
	}
	if err := os.Truncate(path, int64(req.Offset)); err != nil {
		errnoNak(reply, err)
		return
	}
	reply.ack()
}
