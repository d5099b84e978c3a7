package ftp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/opd-ai/groundlink/limits"
	"github.com/opd-ai/groundlink/transport"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// DefaultBurstPacketsPerTick is how many burst chunks DoWork sends per call.
const DefaultBurstPacketsPerTick = 16

// ErrInvalidBurstRate is returned when setting a non-positive burst rate.
var ErrInvalidBurstRate = errors.New("burst packets per tick must be positive")

type sessionMode int

const (
	sessionClosed sessionMode = iota
	sessionRead
	sessionWrite
)

// session is the single open file of the server.
type session struct {
	mode  sessionMode
	file  *os.File
	path  string
	size  uint32
	burst *burstStream
}

// burstStream is an unsolicited read in progress.
type burstStream struct {
	peer   transport.Address
	offset uint32
	chunk  uint8
	seq    uint16
}

// cachedReply is the last reply sent, kept for retransmitted requests.
type cachedReply struct {
	peer      transport.Address
	seq       uint16
	reqOpcode Opcode
	payload   [limits.MaxFTPPayload]byte
}

// Server answers FTP requests from a root directory.
//
// Every path in a request is resolved below the root; nothing is served
// until SetRootDirectory succeeds. The server keeps one session. A request
// that repeats the sequence number of the last one answered gets the cached
// reply again instead of being executed twice.
type Server struct {
	mu           sync.Mutex
	transport    transport.Transport
	rootDir      string
	tempFiles    map[string]string
	session      session
	lastReply    *cachedReply
	burstPerTick int

	requestCounter tally.Counter
	replayCounter  tally.Counter
	nakCounter     tally.Counter
	burstCounter   tally.Counter
}

// NewServer creates a server and registers its FILE_TRANSFER_PROTOCOL
// handler. A nil scope disables metrics.
func NewServer(tr transport.Transport, scope tally.Scope) *Server {
	if scope == nil {
		scope = tally.NoopScope
	}
	scope = scope.SubScope("ftp_server")

	s := &Server{
		transport:      tr,
		tempFiles:      make(map[string]string),
		burstPerTick:   DefaultBurstPacketsPerTick,
		requestCounter: scope.Counter("requests"),
		replayCounter:  scope.Counter("replays"),
		nakCounter:     scope.Counter("naks"),
		burstCounter:   scope.Counter("burst_packets"),
	}

	tr.RegisterHandler(transport.MessageID(&common.MessageFileTransferProtocol{}), s.handleMessage)

	logrus.WithFields(logrus.Fields{
		"function": "NewServer",
		"local":    tr.LocalAddr().String(),
	}).Info("FTP server created")

	return s
}

// SetRootDirectory sets the directory requests are resolved against.
func (s *Server) SetRootDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", canonical)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootDir = canonical

	logrus.WithFields(logrus.Fields{
		"function": "SetRootDirectory",
		"root":     canonical,
	}).Info("FTP root directory set")
	return nil
}

// AddTemporaryFile makes the local file at path available for opening
// under name. Such aliases are served even when they live outside the root.
func (s *Server) AddTemporaryFile(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempFiles[name] = path
}

// SetBurstPacketsPerTick limits how many burst chunks each DoWork call sends.
func (s *Server) SetBurstPacketsPerTick(n int) error {
	if n <= 0 {
		return ErrInvalidBurstRate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.burstPerTick = n
	return nil
}

// Close ends the open session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetSession()
	return nil
}

// DoWork sends the next chunks of an active burst read.
func (s *Server) DoWork() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.burstPerTick && s.session.burst != nil; i++ {
		s.sendBurstPacket()
	}
}

func (s *Server) handleMessage(env *transport.Envelope) error {
	msg, ok := env.Message.(*common.MessageFileTransferProtocol)
	if !ok {
		return nil
	}

	req, err := DecodePacket(msg.Payload[:])
	if err != nil || req.Opcode.IsResponse() {
		// Responses belong to a client sharing the transport.
		return nil
	}

	local := s.transport.LocalAddr()
	if (msg.TargetSystem != 0 && msg.TargetSystem != local.SystemID) ||
		(msg.TargetComponent != 0 && msg.TargetComponent != local.ComponentID) {
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"from":     env.Sender().String(),
			"to":       transport.Address{SystemID: msg.TargetSystem, ComponentID: msg.TargetComponent}.String(),
		}).Debug("Ignoring FTP request addressed elsewhere")
		return nil
	}

	peer := env.Sender()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestCounter.Inc(1)

	if c := s.lastReply; c != nil && c.peer == peer && req.Seq+1 == c.seq && req.Opcode == c.reqOpcode {
		s.replayCounter.Inc(1)
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"opcode":   req.Opcode.String(),
			"seq":      req.Seq,
		}).Debug("Replaying cached FTP reply")
		s.transmit(peer, c.payload)
		return nil
	}

	reply := &Packet{Seq: req.Seq + 1, ReqOpcode: req.Opcode}
	if err := req.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"from":     peer.String(),
			"error":    err.Error(),
		}).Warn("FTP request with invalid size")
		reply.nak(ServerErrInvalidDataSize)
		s.reply(peer, reply)
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleMessage",
		"opcode":   req.Opcode.String(),
		"size":     req.Size,
		"offset":   req.Offset,
		"seq":      req.Seq,
	}).Debug("FTP request")

	if !s.execute(peer, req, reply) {
		return nil
	}
	s.reply(peer, reply)
	return nil
}

// execute runs req and fills reply. It returns false when no reply is due.
// Caller holds s.mu.
func (s *Server) execute(peer transport.Address, req, reply *Packet) bool {
	switch req.Opcode {
	case OpNone:
		return false
	case OpTerminateSession, OpResetSessions:
		s.resetSession()
		reply.ack()
	case OpListDirectory:
		s.workList(req, reply)
	case OpOpenFileRO:
		s.workOpenRead(req, reply)
	case OpOpenFileWO:
		s.workOpenWrite(req, reply)
	case OpCreateFile:
		s.workCreate(req, reply)
	case OpReadFile:
		s.workRead(req, reply)
	case OpWriteFile:
		s.workWrite(req, reply)
	case OpBurstReadFile:
		return s.workBurst(peer, req, reply)
	case OpRemoveFile:
		s.workRemoveFile(req, reply)
	case OpCreateDirectory:
		s.workCreateDirectory(req, reply)
	case OpRemoveDirectory:
		s.workRemoveDirectory(req, reply)
	case OpRename:
		s.workRename(req, reply)
	case OpCalcFileCRC32:
		s.workCRC32(req, reply)
	case OpTruncateFile:
		s.workTruncate(req, reply)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "execute",
			"opcode":   req.Opcode.String(),
		}).Warn("Unknown FTP opcode")
		reply.nak(ServerErrUnknownCommand)
	}
	return true
}

// reply sends p to peer and caches it. Caller holds s.mu.
func (s *Server) reply(peer transport.Address, p *Packet) {
	if p.Opcode == OpNak {
		s.nakCounter.Inc(1)
	}
	payload := p.Encode()
	s.lastReply = &cachedReply{peer: peer, seq: p.Seq, reqOpcode: p.ReqOpcode, payload: payload}
	s.transmit(peer, payload)
}

func (s *Server) transmit(peer transport.Address, payload [limits.MaxFTPPayload]byte) {
	msg := &common.MessageFileTransferProtocol{
		TargetSystem:    peer.SystemID,
		TargetComponent: peer.ComponentID,
		Payload:         payload,
	}
	if err := s.transport.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "transmit",
			"peer":     peer.String(),
			"error":    err.Error(),
		}).Error("Failed to send FTP reply")
	}
}

// sendBurstPacket sends one chunk of the active burst. Caller holds s.mu.
func (s *Server) sendBurstPacket() {
	b := s.session.burst
	p := &Packet{Seq: b.seq, ReqOpcode: OpBurstReadFile, Offset: b.offset}
	b.seq++

	want := min(uint32(b.chunk), s.session.size-b.offset)
	n, err := s.session.file.ReadAt(p.Data[:want], int64(b.offset))
	if uint32(n) != want {
		logrus.WithFields(logrus.Fields{
			"function": "sendBurstPacket",
			"offset":   b.offset,
			"error":    fmt.Sprint(err),
		}).Warn("Burst read failed")
		p.nak(ServerErrFail)
		s.session.burst = nil
		s.transmit(b.peer, p.Encode())
		return
	}

	p.Opcode = OpAck
	p.Size = uint8(n)
	b.offset += uint32(n)
	if b.offset >= s.session.size {
		p.BurstComplete = 1
		s.session.burst = nil
	}
	s.burstCounter.Inc(1)
	s.transmit(b.peer, p.Encode())
}

// resetSession closes the open file and stops any burst. Caller holds s.mu.
func (s *Server) resetSession() {
	if s.session.file != nil {
		if err := s.session.file.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "resetSession",
				"path":     s.session.path,
				"error":    err.Error(),
			}).Warn("Closing session file failed")
		}
	}
	s.session = session{}
}
