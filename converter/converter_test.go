package converter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alephprint/gsprintd/engine"
	"github.com/alephprint/gsprintd/events"
	"github.com/alephprint/gsprintd/job"
	"github.com/alephprint/gsprintd/queue"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestJob(t *testing.T, dir string, printers []string) *job.Job {
	t.Helper()
	j, err := job.New(dir, "doc", "pxlmono", []string{"-q", "-dNOPAUSE"}, printers)
	require.NoError(t, err)
	writeFile(t, j.InputPath, []byte("%PDF-1.4 fake"))
	return j
}

func runOnce(t *testing.T, c *Converter, in *queue.Queue, j *job.Job) {
	t.Helper()
	require.True(t, in.TryEnqueue(j))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)
}

func TestConverterForwardsToSendQueueOnSuccess(t *testing.T) {
	dir := t.TempDir()
	j := newTestJob(t, dir, []string{"10.0.0.5:9100"})

	fake := &engine.Fake{
		Err: nil,
	}
	// The fake engine doesn't actually write the output file, so write it
	// ourselves to simulate what a real gs invocation would produce.
	writeFile(t, j.OutputPath, []byte("PCL bytes"))

	in, out := queue.New(4), queue.New(4)
	var gotEvents []events.JobEvent
	c := New("w1", in, out, fake, 50*time.Millisecond, func(e events.JobEvent) {
		gotEvents = append(gotEvents, e)
	}, zerolog.Nop())

	runOnce(t, c, in, j)

	require.Equal(t, 1, out.Len())
	sent, ok := out.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, j.ID, sent.ID)
	assert.Equal(t, job.StatusSending, sent.Status)

	require.Len(t, fake.Runs, 1)
	assert.Equal(t, j.GSArgs, fake.Runs[0])

	require.Len(t, gotEvents, 3)
	assert.Equal(t, string(job.StatusConverting), gotEvents[0].Status)
	assert.Equal(t, string(job.StatusConverted), gotEvents[1].Status)
	assert.Equal(t, string(job.StatusSending), gotEvents[2].Status)
}

func TestConverterDropsConvertOnlyJob(t *testing.T) {
	dir := t.TempDir()
	j := newTestJob(t, dir, nil)
	writeFile(t, j.OutputPath, []byte("PCL bytes"))

	fake := &engine.Fake{}
	in, out := queue.New(4), queue.New(4)
	c := New("w1", in, out, fake, 50*time.Millisecond, nil, zerolog.Nop())

	runOnce(t, c, in, j)

	assert.Equal(t, 0, out.Len())
}

func TestConverterKeepsInputOnEngineFailure(t *testing.T) {
	dir := t.TempDir()
	j := newTestJob(t, dir, []string{"10.0.0.5:9100"})

	fake := &engine.Fake{Err: assertErr("boom")}
	in, out := queue.New(4), queue.New(4)
	var gotEvents []events.JobEvent
	c := New("w1", in, out, fake, 50*time.Millisecond, func(e events.JobEvent) {
		gotEvents = append(gotEvents, e)
	}, zerolog.Nop())

	runOnce(t, c, in, j)

	_, err := os.Stat(j.InputPath)
	assert.NoError(t, err, "input file must be retained on conversion failure")
	assert.Equal(t, 0, out.Len())

	require.NotEmpty(t, gotEvents)
	assert.Equal(t, string(job.StatusConvertError), gotEvents[len(gotEvents)-1].Status)
}

func TestConverterFailsWhenOutputFileMissing(t *testing.T) {
	dir := t.TempDir()
	j := newTestJob(t, dir, []string{"10.0.0.5:9100"})
	// Engine reports success but never wrote the output file.
	fake := &engine.Fake{}

	in, out := queue.New(4), queue.New(4)
	c := New("w1", in, out, fake, 50*time.Millisecond, nil, zerolog.Nop())

	runOnce(t, c, in, j)

	assert.Equal(t, 0, out.Len())
	_, statErr := os.Stat(filepath.Join(dir, "doc.pcl"))
	assert.Error(t, statErr)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
