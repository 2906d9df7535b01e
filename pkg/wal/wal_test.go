package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, path string, recs ...string) *Writer {
	t.Helper()
	w, err := OpenWriter(path, WriterOptions{})
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Append([]byte(r)))
	}
	require.NoError(t, w.Flush())
	return w
}

func collect(t *testing.T, path string, opts ReaderOptions) ([]string, ReplayStats, error) {
	t.Helper()
	var got []string
	st, err := Replay(path, opts, func(p []byte) error {
		got = append(got, string(p))
		return nil
	})
	return got, st, err
}

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j", "events.wal")
	w := writeRecords(t, path, "a", "bb", "")
	assert.Equal(t, int64(3*headerSize+3), w.Offset())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append([]byte("x")), ErrClosed)

	got, st, err := collect(t, path, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bb", ""}, got)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, int64(3*headerSize+3), st.LastGoodOffset)
	assert.False(t, st.TruncatedTail)

	// 追加打开，偏移从文件尾开始
	w = writeRecords(t, path, "ccc")
	assert.Equal(t, int64(4*headerSize+6), w.Offset())
	require.NoError(t, w.Close())
	got, _, err = collect(t, path, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bb", "", "ccc"}, got)
}

func TestReplay_MissingFile(t *testing.T) {
	got, st, err := collect(t, filepath.Join(t.TempDir(), "nope.wal"), ReaderOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, st.Records)
}

func TestReplay_TruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.wal")
	w := writeRecords(t, path, "first", "second")
	good := int64(headerSize + len("first"))
	require.NoError(t, w.Close())

	// 砍掉第二条的最后几个字节，模拟半写
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-3))

	_, _, err = collect(t, path, ReaderOptions{})
	assert.ErrorIs(t, err, ErrCorruptPayload)

	got, st, err := collect(t, path, ReaderOptions{AllowTruncatedTail: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got)
	assert.True(t, st.TruncatedTail)
	assert.Equal(t, good, st.LastGoodOffset)

	require.NoError(t, TruncateTo(path, st.LastGoodOffset))
	got, st, err = collect(t, path, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got)
	assert.False(t, st.TruncatedTail)
}

func TestReplay_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.wal")
	require.NoError(t, writeRecords(t, path, "payload").Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[len(b)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, b, 0o644))

	_, _, err = collect(t, path, ReaderOptions{AllowTruncatedTail: true})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReader_FromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.wal")
	require.NoError(t, writeRecords(t, path, "one", "two").Close())

	r, err := OpenReader(path, int64(headerSize+3), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	p, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", string(p))
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPayloadLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.wal")
	w := writeRecords(t, path, "0123456789")
	assert.ErrorIs(t, w.Append(make([]byte, DefaultMaxPayload+1)), ErrPayloadTooLarge)
	require.NoError(t, w.Close())

	_, _, err := collect(t, path, ReaderOptions{MaxPayload: 4})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestTruncateTo_Edges(t *testing.T) {
	assert.Error(t, TruncateTo("x", -1))
	assert.NoError(t, TruncateTo(filepath.Join(t.TempDir(), "missing"), 10))
}
