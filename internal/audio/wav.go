package audio

import (
	"encoding/binary"
	"io"
	"os"
)

// WriteWAV wraps raw PCM16LE mono audio in a WAV container and writes it to
// out. Used by the session recorder so captured assistant audio is playable
// with ordinary tools.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	type field struct{ v any }
	fields := []field{
		{[]byte("RIFF")},
		{uint32(36) + dataSize},
		{[]byte("WAVE")},
		{[]byte("fmt ")},
		{uint32(16)},
		{uint16(audioFormat)},
		{uint16(numChannels)},
		{uint32(sampleRate)},
		{byteRate},
		{blockAlign},
		{uint16(bitsPerSample)},
		{[]byte("data")},
		{dataSize},
	}
	for _, f := range fields {
		if err := binary.Write(out, binary.LittleEndian, f.v); err != nil {
			return err
		}
	}
	_, err := out.Write(pcm)
	return err
}

// WriteWAVFile writes raw PCM16LE mono audio as a WAV file at path.
func WriteWAVFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, pcm, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
