package ftp

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/opd-ai/groundlink/timeout"
	"github.com/opd-ai/groundlink/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link is a client and a server joined by an in-memory pipe.
type link struct {
	client  *Client
	server  *Server
	ground  *transport.PipeEnd
	vehicle *transport.PipeEnd
	clock   *clock.Mock
	sched   *timeout.Scheduler
	root    string
	local   string
}

func newLink(t *testing.T) *link {
	ground, vehicle := transport.NewPipe(groundAddr, vehicleAddr)
	mock := clock.NewMock()
	sched := timeout.NewScheduler(mock)

	server := NewServer(vehicle, nil)
	root := t.TempDir()
	require.NoError(t, server.SetRootDirectory(root))
	t.Cleanup(func() { _ = server.Close() })

	return &link{
		client:  NewClient(ground, sched, nil, vehicleAddr),
		server:  server,
		ground:  ground,
		vehicle: vehicle,
		clock:   mock,
		sched:   sched,
		root:    root,
		local:   t.TempDir(),
	}
}

// iterate runs one turn of the cooperative loop.
func (l *link) iterate() {
	l.client.DoWork()
	l.server.DoWork()
	transport.PumpAll(8, l.ground, l.vehicle)
	l.clock.Add(10 * time.Millisecond)
	l.sched.RunOnce()
}

func (l *link) runUntil(t *testing.T, done func() bool) {
	t.Helper()
	for i := 0; i < 20000; i++ {
		if done() {
			return
		}
		l.iterate()
	}
	t.Fatal("operation did not finish")
}

func (l *link) transfer(t *testing.T, start func(TransferCallback)) []ClientResult {
	t.Helper()
	rec := &transferRecorder{}
	start(rec.callback)
	l.runUntil(t, func() bool { return len(rec.terminal()) > 0 })
	return rec.terminal()
}

func (l *link) simple(t *testing.T, start func(ResultCallback)) ClientResult {
	t.Helper()
	rec := &resultRecorder{}
	start(rec.callback)
	l.runUntil(t, func() bool { return len(rec.get()) > 0 })
	require.Len(t, rec.get(), 1)
	return rec.get()[0]
}

// decodeFTP returns the FTP packet carried by msg, or nil.
func decodeFTP(msg message.Message) *Packet {
	fm, ok := msg.(*common.MessageFileTransferProtocol)
	if !ok {
		return nil
	}
	p, err := DecodePacket(fm.Payload[:])
	if err != nil {
		return nil
	}
	return p
}

func TestEndToEndUploadThenDownload(t *testing.T) {
	l := newLink(t)
	data := patterned(5000)
	local := filepath.Join(l.local, "flight.ulg")
	require.NoError(t, os.WriteFile(local, data, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(l.root, "log"), 0o755))

	results := l.transfer(t, func(cb TransferCallback) {
		l.client.UploadAsync(local, "/log", cb)
	})
	require.Equal(t, []ClientResult{Success}, results)

	stored, err := os.ReadFile(filepath.Join(l.root, "log", "flight.ulg"))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	for _, burst := range []bool{false, true} {
		into := t.TempDir()
		results = l.transfer(t, func(cb TransferCallback) {
			l.client.DownloadAsync("/log/flight.ulg", into, burst, cb)
		})
		require.Equal(t, []ClientResult{Success}, results, "burst=%v", burst)

		got, err := os.ReadFile(filepath.Join(into, "flight.ulg"))
		require.NoError(t, err)
		assert.Equal(t, data, got, "burst=%v", burst)
	}
}

func TestEndToEndBurstRepairsDroppedChunks(t *testing.T) {
	l := newLink(t)
	data := patterned(10000)
	require.NoError(t, os.WriteFile(filepath.Join(l.root, "big.bin"), data, 0o644))

	dropped := map[uint32]bool{}
	l.vehicle.SetDropFunc(func(msg message.Message) bool {
		p := decodeFTP(msg)
		if p == nil || p.ReqOpcode != OpBurstReadFile {
			return false
		}
		lose := p.Offset == 239*3 || p.Offset == 239*4 || p.Offset == 239*20
		if lose && !dropped[p.Offset] {
			dropped[p.Offset] = true
			return true
		}
		return false
	})

	results := l.transfer(t, func(cb TransferCallback) {
		l.client.DownloadAsync("/big.bin", l.local, true, cb)
	})
	require.Equal(t, []ClientResult{Success}, results)
	assert.Len(t, dropped, 3)

	got, err := os.ReadFile(filepath.Join(l.local, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEndToEndBurstLosesCompletionFlag(t *testing.T) {
	l := newLink(t)
	data := patterned(1000)
	require.NoError(t, os.WriteFile(filepath.Join(l.root, "tail.bin"), data, 0o644))

	// Every chunk from the third on is lost, the completion flag included.
	l.vehicle.SetDropFunc(func(msg message.Message) bool {
		p := decodeFTP(msg)
		return p != nil && p.ReqOpcode == OpBurstReadFile && p.Offset >= 2*239
	})

	results := l.transfer(t, func(cb TransferCallback) {
		l.client.DownloadAsync("/tail.bin", l.local, true, cb)
	})
	require.Equal(t, []ClientResult{Success}, results)

	got, err := os.ReadFile(filepath.Join(l.local, "tail.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEndToEndLossyLink(t *testing.T) {
	l := newLink(t)
	data := patterned(3000)
	local := filepath.Join(l.local, "params.bin")
	require.NoError(t, os.WriteFile(local, data, 0o644))

	lossy := func(every int) transport.DropFunc {
		var mu sync.Mutex
		n := 0
		return func(message.Message) bool {
			mu.Lock()
			defer mu.Unlock()
			n++
			return n%every == 0
		}
	}
	l.ground.SetDropFunc(lossy(7))
	l.vehicle.SetDropFunc(lossy(5))

	results := l.transfer(t, func(cb TransferCallback) {
		l.client.UploadAsync(local, "/", cb)
	})
	require.Equal(t, []ClientResult{Success}, results)

	into := t.TempDir()
	results = l.transfer(t, func(cb TransferCallback) {
		l.client.DownloadAsync("/params.bin", into, false, cb)
	})
	require.Equal(t, []ClientResult{Success}, results)

	got, err := os.ReadFile(filepath.Join(into, "params.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEndToEndDirectoryOperations(t *testing.T) {
	l := newLink(t)
	require.NoError(t, os.WriteFile(filepath.Join(l.root, "readme.txt"), []byte("hi"), 0o644))

	assert.Equal(t, Success, l.simple(t, func(cb ResultCallback) {
		l.client.CreateDirectoryAsync("/missions", cb)
	}))
	assert.Equal(t, FileExists, l.simple(t, func(cb ResultCallback) {
		l.client.CreateDirectoryAsync("/missions", cb)
	}))
	assert.Equal(t, Success, l.simple(t, func(cb ResultCallback) {
		l.client.RenameAsync("/readme.txt", "/missions/readme.txt", cb)
	}))

	var dirs, files []string
	var result ClientResult
	done := false
	l.client.ListDirectoryAsync("/missions", func(r ClientResult, d, f []string) {
		result, dirs, files, done = r, d, f, true
	})
	l.runUntil(t, func() bool { return done })
	assert.Equal(t, Success, result)
	assert.Empty(t, dirs)
	assert.Equal(t, []string{"readme.txt"}, files)

	assert.Equal(t, FileDoesNotExist, l.simple(t, func(cb ResultCallback) {
		l.client.RemoveFileAsync("/readme.txt", cb)
	}))
	assert.Equal(t, Success, l.simple(t, func(cb ResultCallback) {
		l.client.RemoveFileAsync("/missions/readme.txt", cb)
	}))
	assert.Equal(t, Success, l.simple(t, func(cb ResultCallback) {
		l.client.RemoveDirectoryAsync("/missions", cb)
	}))
	assert.Equal(t, Success, l.simple(t, func(cb ResultCallback) {
		l.client.ResetAsync(cb)
	}))

	entries, err := os.ReadDir(l.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEndToEndCompare(t *testing.T) {
	l := newLink(t)
	data := patterned(4096)
	local := filepath.Join(l.local, "params.bin")
	require.NoError(t, os.WriteFile(local, data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(l.root, "params.bin"), data, 0o644))

	compare := func() (ClientResult, bool) {
		var result ClientResult
		var identical, done bool
		l.client.AreFilesIdenticalAsync(local, "/params.bin", func(r ClientResult, same bool) {
			result, identical, done = r, same, true
		})
		l.runUntil(t, func() bool { return done })
		return result, identical
	}

	result, identical := compare()
	assert.Equal(t, Success, result)
	assert.True(t, identical)

	data[100] ^= 0xFF
	require.NoError(t, os.WriteFile(local, data, 0o644))
	result, identical = compare()
	assert.Equal(t, Success, result)
	assert.False(t, identical)
}

func TestEndToEndBlockingAPI(t *testing.T) {
	l := newLink(t)
	require.NoError(t, os.WriteFile(filepath.Join(l.root, "a.txt"), []byte("abc"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			l.iterate()
			time.Sleep(time.Millisecond)
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	opCtx, opCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer opCancel()

	var progress []Progress
	result := l.client.Download(opCtx, "/a.txt", l.local, false, func(p Progress) {
		progress = append(progress, p)
	})
	require.Equal(t, Success, result)
	assert.Equal(t, []Progress{{BytesTransferred: 3, TotalBytes: 3}}, progress)

	dirs, files, result := l.client.ListDirectory(opCtx, "/")
	require.Equal(t, Success, result)
	assert.Empty(t, dirs)
	assert.Equal(t, []string{"a.txt"}, files)

	identical, result := l.client.AreFilesIdentical(opCtx, filepath.Join(l.local, "a.txt"), "/a.txt")
	require.Equal(t, Success, result)
	assert.True(t, identical)

	assert.Equal(t, Success, l.client.CreateDirectory(opCtx, "/d"))
	assert.Equal(t, Success, l.client.RemoveDirectory(opCtx, "/d"))
	assert.Equal(t, Success, l.client.Rename(opCtx, "/a.txt", "/b.txt"))
	assert.Equal(t, Success, l.client.RemoveFile(opCtx, "/b.txt"))
	assert.Equal(t, Success, l.client.Reset(opCtx))
}
