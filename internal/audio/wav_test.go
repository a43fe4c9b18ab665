package audio

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func TestWAVBytesProducesDecodableHeader(t *testing.T) {
	pcm := intsToPCM([]int{0, 1000, -1000, 32767, -32768})

	data, err := WAVBytes(pcm, 16000)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[:4]))
	require.Equal(t, "WAVE", string(data[8:12]))

	decoder := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, decoder.IsValidFile())
	require.Equal(t, uint32(16000), decoder.SampleRate)
	require.Equal(t, uint16(1), decoder.NumChans)

	buffer, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1000, -1000, 32767, -32768}, buffer.Data)
}

func TestEncodeWAVRejectsInvalidSampleRate(t *testing.T) {
	_, err := WAVBytes([]byte{0, 0}, 0)
	require.ErrorContains(t, err, "invalid sample rate")
}

func TestIntsToPCMClamps(t *testing.T) {
	require.Equal(t, []int{32767, -32768}, pcmToInts(intsToPCM([]int{40000, -40000})))
}

func TestMemWriteSeekerOverwritesAfterSeek(t *testing.T) {
	var ws memWriteSeeker
	_, err := ws.Write([]byte("hello world"))
	require.NoError(t, err)

	pos, err := ws.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.Zero(t, pos)
	_, err = ws.Write([]byte("HELLO"))
	require.NoError(t, err)

	pos, err = ws.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(11), pos)
	require.Equal(t, "HELLO world", string(ws.Bytes()))

	_, err = ws.Seek(-1, io.SeekStart)
	require.Error(t, err)
}

func TestDecodeFileReadsMatchingWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lecture.wav")
	pcm := intsToPCM([]int{1, 2, 3, 4})
	require.NoError(t, WriteWAVFile(path, pcm, 16000))

	got, err := DecodeFile(context.Background(), path, 16000, nil)
	require.NoError(t, err)
	require.Equal(t, pcm, got)
}

func TestDecodeFileDownmixesStereoWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	file, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(file, 16000, 16, 2, 1)
	require.NoError(t, encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 16000},
		Data:           []int{100, 300, -100, -300},
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())

	got, err := DecodeFile(context.Background(), path, 16000, nil)
	require.NoError(t, err)
	require.Equal(t, []int{200, -200}, pcmToInts(got))
}

func TestDecodeFileNeedsFFmpegForOtherRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hifi.wav")
	require.NoError(t, WriteWAVFile(path, intsToPCM([]int{1, 2}), 44100))

	_, err := DecodeFile(context.Background(), path, 16000, nil)
	require.ErrorContains(t, err, "audio.ffmpeg_cmd is empty")
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := DecodeFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), 16000, nil)
	require.ErrorContains(t, err, "audio file")
}

func TestDecodeWAVBytes(t *testing.T) {
	data, err := WAVBytes(intsToPCM([]int{5, -5, 7}), 8000)
	require.NoError(t, err)

	pcm, rate, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	require.Equal(t, 8000, rate)
	require.Equal(t, []int{5, -5, 7}, pcmToInts(pcm))

	_, _, err = DecodeWAVBytes([]byte("not a wav"))
	require.Error(t, err)
}
