package main

import (
	"bytes"
	"encoding/binary"
	"math"
)

// encodeWAV renders mono float32 PCM samples as a 16-bit little-endian WAV
// file at audioSampleRate, the format the remote transcription endpoint
// expects in its multipart upload.
func encodeWAV(samples []float32) []byte {
	const bitsPerSample = 16
	const byteRate = audioSampleRate * audioChannels * bitsPerSample / 8
	const blockAlign = audioChannels * bitsPerSample / 8

	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(fileSize)) //nolint:errcheck
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))            //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(1))              //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(audioChannels))  //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint32(audioSampleRate))//nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))       //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))     //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))  //nolint:errcheck

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize)) //nolint:errcheck
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, floatToPCM16(s)) //nolint:errcheck
	}

	return buf.Bytes()
}

func floatToPCM16(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}
