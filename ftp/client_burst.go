package ftp

import (
	"github.com/opd-ai/groundlink/limits"
	"github.com/sirupsen/logrus"
)

// A burst download opens the file, asks the server to stream it and writes
// every chunk at its own offset. Chunks that never arrive leave gaps which
// are recorded as missing ranges and fetched with plain ReadFile requests
// once the stream has ended.

func (c *Client) burstStart(w *work, op *burstDownloadOp) bool {
	req, err := openRequest(op.remotePath)
	if err != nil {
		c.finish(w, InvalidParameter, false)
		return false
	}
	f, err := openLocalTarget(op.localFolder, op.remotePath)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "burstStart",
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

// onBurstDownload handles a response for a burst download. It returns false
// when the response must not count as seen.
func (c *Client) onBurstDownload(w *work, op *burstDownloadOp, p *Packet) bool {
	if p.Opcode == OpNak {
		if ServerResult(p.Data[0]) == ServerErrNoSessions {
			logrus.WithFields(logrus.Fields{
				"function": "onBurstDownload",
				"path":     op.remotePath,
				"backoff":  noSessionsBackoff,
			}).Info("No FTP session available, trying again later")
			c.startTimer(noSessionsBackoff)
			return false
		}
		c.finish(w, resultFromNak(p), true)
		return true
	}

	switch p.ReqOpcode {
	case OpOpenFileRO:
		w.retries = c.retries
		c.burstOpened(w, op, p)
	case OpBurstReadFile:
		c.burstChunk(w, op, p)
	case OpReadFile:
		c.burstRepair(w, op, p)
	case OpTerminateSession:
		c.finish(w, Success, false)
	}
	return true
}

func (c *Client) burstOpened(w *work, op *burstDownloadOp, p *Packet) {
	if p.Size < 4 {
		c.finish(w, ProtocolError, true)
		return
	}
	op.fileSize = p.Uint32()
	op.sizeKnown = true

	logrus.WithFields(logrus.Fields{
		"function": "burstOpened",
		"path":     op.remotePath,
		"size":     op.fileSize,
	}).Debug("Burst download opened")

	if op.fileSize == 0 {
		c.endSession(w)
		return
	}
	c.requestBurst(w, op)
}

func (c *Client) burstChunk(w *work, op *burstDownloadOp, p *Packet) {
	if p.Offset < op.currentOffset || p.Offset >= op.fileSize {
		logrus.WithFields(logrus.Fields{
			"function": "burstChunk",
			"offset":   p.Offset,
			"expected": op.currentOffset,
			"size":     op.fileSize,
		}).Warn("Ignoring burst chunk outside the stream")
		return
	}
	w.retries = c.retries

	if p.Offset > op.currentOffset {
		gap := missingRange{offset: op.currentOffset, size: p.Offset - op.currentOffset}
		op.missing = append(op.missing, gap)
		c.gapCounter.Inc(1)
		logrus.WithFields(logrus.Fields{
			"function": "burstChunk",
			"offset":   gap.offset,
			"size":     gap.size,
		}).Debug("Burst chunk missing")
	}

	// Writing past the end leaves the gap zero-filled.
	data := p.Payload()
	if remaining := op.fileSize - p.Offset; uint32(len(data)) > remaining {
		data = data[:remaining]
	}
	if _, err := op.file.WriteAt(data, int64(p.Offset)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "burstChunk",
			"error":    err.Error(),
		}).Error("Could not write downloaded data")
		c.finish(w, FileIoError, true)
		return
	}
	op.currentOffset = p.Offset + uint32(len(data))
	c.notify(transferNotice(op.callback, Next, Progress{op.bytesTransferred(), op.fileSize}))

	if op.currentOffset >= op.fileSize {
		if len(op.missing) == 0 {
			c.endSession(w)
			return
		}
		c.requestNextMissing(w, op)
		return
	}

	if p.BurstComplete != 0 {
		c.requestBurst(w, op)
		return
	}
	// More chunks are on their way.
	c.startTimer(c.timeout)
}

func (c *Client) burstRepair(w *work, op *burstDownloadOp, p *Packet) {
	data := p.Payload()
	if len(op.missing) == 0 || op.missing[0].offset != p.Offset || len(data) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "burstRepair",
			"offset":   p.Offset,
			"size":     len(data),
			"missing":  len(op.missing),
		}).Error("Repair response does not match the missing range")
		c.finish(w, ProtocolError, true)
		return
	}
	w.retries = c.retries

	front := &op.missing[0]
	if uint32(len(data)) > front.size {
		data = data[:front.size]
	}
	if _, err := op.file.WriteAt(data, int64(p.Offset)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "burstRepair",
			"error":    err.Error(),
		}).Error("Could not write downloaded data")
		c.finish(w, FileIoError, true)
		return
	}

	if front.size == uint32(len(data)) {
		op.missing = op.missing[1:]
	} else {
		front.offset += uint32(len(data))
		front.size -= uint32(len(data))
	}

	transferred := op.bytesTransferred()
	c.notify(transferNotice(op.callback, Next, Progress{transferred, op.fileSize}))
	if len(op.missing) == 0 && transferred == op.fileSize {
		c.endSession(w)
		return
	}
	c.requestNextMissing(w, op)
}

// burstTimeout decides how to continue after silence. Once the size is
// known and data has arrived, whatever is still outstanding is fetched with
// plain reads instead of restarting the stream.
func (c *Client) burstTimeout(w *work, op *burstDownloadOp) {
	if !op.sizeKnown || op.fileSize == 0 || op.currentOffset == 0 {
		c.retransmit(w)
		return
	}
	if op.currentOffset == op.fileSize && len(op.missing) == 0 {
		c.finish(w, Success, true)
		return
	}
	c.retryCounter.Inc(1)
	c.requestNextMissing(w, op)
}

func (c *Client) requestBurst(w *work, op *burstDownloadOp) {
	c.send(w, &Packet{
		Opcode: OpBurstReadFile,
		Offset: op.currentOffset,
		Size:   limits.MaxFTPData,
	})
}

// requestNextMissing asks for the front missing range with a plain read.
// An unreceived tail becomes a missing range first.
func (c *Client) requestNextMissing(w *work, op *burstDownloadOp) {
	if op.currentOffset < op.fileSize {
		op.missing = append(op.missing, missingRange{
			offset: op.currentOffset,
			size:   op.fileSize - op.currentOffset,
		})
		op.currentOffset = op.fileSize
	}
	if len(op.missing) == 0 {
		c.endSession(w)
		return
	}

	front := op.missing[0]
	logrus.WithFields(logrus.Fields{
		"function": "requestNextMissing",
		"offset":   front.offset,
		"size":     front.size,
	}).Debug("Requesting missing range")

	c.send(w, &Packet{
		Opcode: OpReadFile,
		Offset: front.offset,
		Size:   uint8(min(front.size, uint32(limits.MaxFTPData))),
	})
}
