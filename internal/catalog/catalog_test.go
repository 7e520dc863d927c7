package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/mjr"
)

// writeTestMJR writes a minimal valid new-generation MJR file so a test can
// exercise loadDescriptor's real codec probe (mjr.OpenReader), rather than
// relying on the .nfo descriptor to carry a codec field it never does.
func writeTestMJR(t *testing.T, dir string, medium mjr.Medium, codec, name string) string {
	t.Helper()
	w, err := mjr.Open(dir, medium, codec, name)
	require.NoError(t, err)
	require.NoError(t, w.Save(make([]byte, 12)))
	require.NoError(t, w.Close())
	return w.Path()
}

func testLogger(t *testing.T) logger.Writer {
	t.Helper()
	l, err := logger.New(logger.Debug, nil, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestPayloadTypeFixedAndDynamic(t *testing.T) {
	require.Equal(t, uint8(0), PayloadType("pcmu", false))
	require.Equal(t, uint8(8), PayloadType("pcma", false))
	require.Equal(t, uint8(9), PayloadType("g722", false))
	require.Equal(t, uint8(111), PayloadType("opus", false))
	require.Equal(t, uint8(100), PayloadType("vp8", true))
}

func TestScanLoadsAndReconciles(t *testing.T) {
	dir := t.TempDir()
	cat := New(dir, testLogger(t))

	audioPath := writeTestMJR(t, dir, mjr.MediumAudio, "opus", "rec-1-audio")
	videoPath := writeTestMJR(t, dir, mjr.MediumVideo, "vp8", "rec-1-video")

	e := &Entry{
		ID:        "rec-1",
		Name:      "test capture",
		Date:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
		AudioPath: audioPath,
		VideoPath: videoPath,
	}
	require.NoError(t, cat.WriteDescriptor(e))

	require.NoError(t, cat.Scan())
	got := cat.Get("rec-1")
	require.NotNil(t, got)
	require.Equal(t, "test capture", got.Name)
	require.True(t, got.HasAudio())
	require.True(t, got.HasVideo())
	require.Equal(t, "opus", got.AudioCodec, "codec is derived by opening the MJR info header, not stored in the .nfo")
	require.Equal(t, "vp8", got.VideoCodec)
	require.False(t, got.Legacy, "a current-generation MJR header carries no legacy marker")

	// removing the descriptor drops the entry on the next scan.
	require.NoError(t, os.Remove(filepath.Join(dir, "rec-1.nfo")))
	require.NoError(t, cat.Scan())
	require.Nil(t, cat.Get("rec-1"))
}

// TestScanRecognizesHandAuthoredDescriptor exercises spec.md §6's actual
// external .nfo interface directly: a single section named by the decimal
// id, flat name/date/audio/video keys, CRLF line endings, no codec field
// anywhere in the file.
func TestScanRecognizesHandAuthoredDescriptor(t *testing.T) {
	dir := t.TempDir()
	cat := New(dir, testLogger(t))

	writeTestMJR(t, dir, mjr.MediumAudio, "pcma", "42-audio")

	raw := "[42]\r\n" +
		"name = hand authored\r\n" +
		"date = 2026-03-04 05:06:07\r\n" +
		"audio = 42-audio.mjr\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "42.nfo"), []byte(raw), 0o644))

	require.NoError(t, cat.Scan())
	got := cat.Get("42")
	require.NotNil(t, got)
	require.Equal(t, "hand authored", got.Name)
	require.True(t, got.HasAudio())
	require.False(t, got.HasVideo())
	require.Equal(t, "pcma", got.AudioCodec)
}

func TestScanDoesNotPruneRegisteredInProgressEntry(t *testing.T) {
	dir := t.TempDir()
	cat := New(dir, testLogger(t))

	e := &Entry{ID: "rec-live", Name: "in progress"}
	cat.Register(e)

	require.NoError(t, cat.Scan())
	require.NotNil(t, cat.Get("rec-live"), "an in-progress entry with no .nfo yet must survive a scan while refs > 0")

	cat.Release("rec-live")
	require.NoError(t, cat.Scan())
	require.Nil(t, cat.Get("rec-live"), "once released with no descriptor on disk, the entry is pruned")
}

func TestOfferSDPIsSendonlyWithNoDataChannel(t *testing.T) {
	e := &Entry{
		ID:         "rec-2",
		Name:       "offer test",
		Date:       time.Now(),
		AudioPath:  "a.mjr",
		AudioCodec: "opus",
		VideoPath:  "v.mjr",
		VideoCodec: "vp8",
	}

	s, err := OfferSDPString(e)
	require.NoError(t, err)
	require.Contains(t, s, "sendonly")
	require.NotContains(t, s, "sendrecv")
	require.NotContains(t, s, "application")
	require.Contains(t, s, "m=audio")
	require.Contains(t, s, "m=video")
}

func TestParseNFOSection(t *testing.T) {
	raw := "[abc]\r\nname = hello world\r\ndate = 2026-01-02 03:04:05\r\naudio = abc-audio.mjr\r\n"
	doc, err := parseNFO(strings.NewReader(raw))
	require.NoError(t, err)

	id, fields, ok := doc.section()
	require.True(t, ok)
	require.Equal(t, "abc", id)
	require.Equal(t, "hello world", fields["name"])
	require.Equal(t, "abc-audio.mjr", fields["audio"])
}

func TestWriteNFOFileUsesSpecFormat(t *testing.T) {
	dir := t.TempDir()
	e := &Entry{
		ID:        "99",
		Name:      "written",
		Date:      time.Date(2026, 5, 6, 7, 8, 9, 0, time.Local),
		AudioPath: "/tmp/wherever/99-audio.mjr",
	}
	path := filepath.Join(dir, "99.nfo")
	require.NoError(t, writeNFOFile(path, e))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[99]\r\n")
	require.Contains(t, string(raw), "audio = 99-audio.mjr\r\n", "stored relative to the capture directory, not the writer's absolute path")
	require.NotContains(t, string(raw), "codec", "codec is never part of the .nfo format")
}
