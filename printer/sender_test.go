package printer

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alephprint/gsprintd/events"
	"github.com/alephprint/gsprintd/job"
	"github.com/alephprint/gsprintd/queue"
)

func startEchoListener(t *testing.T) (addr string, received func() [][]byte, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var payloads [][]byte

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				data, _ := io.ReadAll(conn)
				mu.Lock()
				payloads = append(payloads, data)
				mu.Unlock()
			}()
		}
	}()

	return ln.Addr().String(), func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		return append([][]byte(nil), payloads...)
	}, func() { ln.Close() }
}

func newOutputJob(t *testing.T, dir string, printers []string, content []byte) *job.Job {
	t.Helper()
	j, err := job.New(dir, "doc", "pxlmono", nil, printers)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(j.InputPath, []byte("%PDF fake"), 0o644))
	require.NoError(t, os.WriteFile(j.OutputPath, content, 0o644))
	return j
}

func runOnceSender(t *testing.T, s *Sender, in *queue.Queue, j *job.Job) {
	t.Helper()
	require.True(t, in.TryEnqueue(j))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s.Run(ctx)
}

func TestSenderStreamsFileToEachPrinter(t *testing.T) {
	addr1, recv1, stop1 := startEchoListener(t)
	defer stop1()
	addr2, recv2, stop2 := startEchoListener(t)
	defer stop2()

	dir := t.TempDir()
	content := []byte("this is the converted PCL payload")
	j := newOutputJob(t, dir, []string{addr1, addr2}, content)

	in := queue.New(4)
	var gotEvents []events.JobEvent
	s := New("s1", in, Config{
		DequeueTimeout: 50 * time.Millisecond,
		Readonly:       false,
		Disposal:       false,
		ConnectTimeout: time.Second,
		IOTimeout:      time.Second,
		SoftTimeout:    time.Minute,
	}, func(e events.JobEvent) { gotEvents = append(gotEvents, e) }, zerolog.Nop())

	runOnceSender(t, s, in, j)
	time.Sleep(50 * time.Millisecond) // let the echo goroutines finish reading

	require.Len(t, recv1(), 1)
	require.Len(t, recv2(), 1)
	assert.Equal(t, content, recv1()[0])
	assert.Equal(t, content, recv2()[0])

	require.NotEmpty(t, gotEvents)
	assert.Equal(t, string(job.StatusSent), gotEvents[len(gotEvents)-1].Status)

	// Disposal was off: files remain.
	_, err := os.Stat(j.InputPath)
	assert.NoError(t, err)
	_, err = os.Stat(j.OutputPath)
	assert.NoError(t, err)
}

func TestSenderDisposesFilesOnAllSuccess(t *testing.T) {
	addr, _, stop := startEchoListener(t)
	defer stop()

	dir := t.TempDir()
	j := newOutputJob(t, dir, []string{addr}, []byte("payload"))

	in := queue.New(4)
	s := New("s1", in, Config{
		DequeueTimeout: 50 * time.Millisecond,
		Readonly:       false,
		Disposal:       true,
		ConnectTimeout: time.Second,
		IOTimeout:      time.Second,
		SoftTimeout:    time.Minute,
	}, nil, zerolog.Nop())

	runOnceSender(t, s, in, j)
	time.Sleep(50 * time.Millisecond)

	_, err := os.Stat(j.InputPath)
	assert.True(t, os.IsNotExist(err), "input should be deleted after disposal")
	_, err = os.Stat(j.OutputPath)
	assert.True(t, os.IsNotExist(err), "output should be deleted after disposal")
}

func TestSenderKeepsFilesWhenOnePrinterFails(t *testing.T) {
	addr, _, stop := startEchoListener(t)
	defer stop()

	dir := t.TempDir()
	unreachable := "127.0.0.1:1" // nothing listens on a privileged port in test sandboxes
	j := newOutputJob(t, dir, []string{addr, unreachable}, []byte("payload"))

	in := queue.New(4)
	var gotEvents []events.JobEvent
	s := New("s1", in, Config{
		DequeueTimeout: 50 * time.Millisecond,
		Readonly:       false,
		Disposal:       true,
		ConnectTimeout: 200 * time.Millisecond,
		IOTimeout:      time.Second,
		SoftTimeout:    time.Minute,
	}, func(e events.JobEvent) { gotEvents = append(gotEvents, e) }, zerolog.Nop())

	runOnceSender(t, s, in, j)

	_, err := os.Stat(j.InputPath)
	assert.NoError(t, err, "files must be retained when any printer fails")
	_, err = os.Stat(j.OutputPath)
	assert.NoError(t, err)

	require.NotEmpty(t, gotEvents)
	assert.Equal(t, string(job.StatusSendError), gotEvents[len(gotEvents)-1].Status)
}

func TestSenderReadonlySkipsConnect(t *testing.T) {
	dir := t.TempDir()
	j := newOutputJob(t, dir, []string{"10.255.255.1:9100"}, []byte("payload"))

	in := queue.New(4)
	var gotEvents []events.JobEvent
	s := New("s1", in, Config{
		DequeueTimeout: 50 * time.Millisecond,
		Readonly:       true,
		Disposal:       false,
		ConnectTimeout: 50 * time.Millisecond,
		IOTimeout:      time.Second,
		SoftTimeout:    time.Minute,
	}, func(e events.JobEvent) { gotEvents = append(gotEvents, e) }, zerolog.Nop())

	// Run itself only returns when runOnceSender's context expires, so time
	// the job up to its final event rather than up to Run's return.
	start := time.Now()
	runOnceSender(t, s, in, j)
	require.NotEmpty(t, gotEvents)
	last := gotEvents[len(gotEvents)-1]
	assert.Equal(t, string(job.StatusSent), last.Status, "readonly mode reports success without connecting")
	assert.Less(t, last.OccurredAt.Sub(start), 300*time.Millisecond, "readonly mode must not attempt a real connect")
}

func TestSenderFailsWhenOutputFileMissing(t *testing.T) {
	addr, _, stop := startEchoListener(t)
	defer stop()

	dir := t.TempDir()
	j, err := job.New(dir, "doc", "pxlmono", nil, []string{addr})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(j.InputPath, []byte("%PDF"), 0o644))
	// Deliberately do not create the output file.
	_ = filepath.Join(dir, "doc.pcl")

	in := queue.New(4)
	var gotEvents []events.JobEvent
	s := New("s1", in, Config{
		DequeueTimeout: 50 * time.Millisecond,
		Readonly:       false,
		ConnectTimeout: time.Second,
		IOTimeout:      time.Second,
		SoftTimeout:    time.Minute,
	}, func(e events.JobEvent) { gotEvents = append(gotEvents, e) }, zerolog.Nop())

	runOnceSender(t, s, in, j)

	require.NotEmpty(t, gotEvents)
	assert.Equal(t, string(job.StatusSendError), gotEvents[len(gotEvents)-1].Status)
}
