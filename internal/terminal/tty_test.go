package terminal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/muesli/cancelreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func openPTY(t *testing.T) (master, slave *os.File) {
	t.Helper()

	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = slave.Close()
		_ = master.Close()
	})

	return master, slave
}

func TestTTY_MakeRawRestore(t *testing.T) {
	_, slave := openPTY(t)
	tty := NewTTY(slave, slave)

	require.True(t, tty.IsTerminal())

	restore, err := tty.MakeRaw()
	require.NoError(t, err)
	assert.True(t, tty.IsRaw())

	_, err = tty.MakeRaw()
	require.Error(t, err, "raw mode is not reentrant")

	require.NoError(t, restore())
	require.NoError(t, restore(), "restore is idempotent")
	assert.False(t, tty.IsRaw())
}

func TestTTY_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	tty := NewTTY(f, f)

	assert.False(t, tty.IsTerminal())

	_, err = tty.MakeRaw()
	require.ErrorIs(t, err, ErrNotTerminal)
	assert.False(t, tty.IsRaw())
	assert.ErrorIs(t, CheckRawMode(tty), ErrNotTerminal)
}

func TestCheckRawMode_PTY(t *testing.T) {
	_, slave := openPTY(t)
	tty := NewTTY(slave, slave)

	require.NoError(t, CheckRawMode(tty))
	assert.False(t, tty.IsRaw())
}

func TestTTY_ReaderCountReturnsToBaseline(t *testing.T) {
	defer goleak.VerifyNone(t)

	master, slave := openPTY(t)
	tty := NewTTY(slave, slave)

	restore, err := tty.MakeRaw()
	require.NoError(t, err)
	defer func() { _ = restore() }()

	r, err := tty.NewReader()
	require.NoError(t, err)
	assert.Equal(t, 1, tty.OpenReaders())

	_, err = master.Write([]byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 0, tty.OpenReaders())
}

func TestPipe_CancelUnblocksRead(t *testing.T) {
	defer goleak.VerifyNone(t)

	p, err := NewPipe(io.Discard, 80, 24)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	r, err := p.NewReader()
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() {
		buf := make([]byte, 4)
		_, readErr := r.Read(buf)
		done <- readErr
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, r.Cancel())

	select {
	case readErr := <-done:
		assert.True(t, errors.Is(readErr, cancelreader.ErrCanceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Cancel")
	}

	require.NoError(t, r.Close())
	assert.Equal(t, 0, p.OpenReaders())
}

func TestPipe_RawTracking(t *testing.T) {
	var out bytes.Buffer

	p, err := NewPipe(&out, 40, 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	w, h := p.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 10, h)
	assert.Same(t, &out, p.Output())

	require.NoError(t, CheckRawMode(p))
	assert.False(t, p.IsRaw())
}
