package metadata

import (
	"encoding/binary"
	"os"
	"time"
)

func box(boxType string, body []byte) []byte {
	out := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(out)))
	copy(out[4:8], boxType)
	copy(out[8:], body)
	return out
}

func ftypBox(brand string) []byte {
	body := []byte(brand + "\x00\x00\x00\x00" + brand)
	return box("ftyp", body)
}

// mvhdV0 builds a version 0 movie header with a millisecond timescale.
func mvhdV0(created time.Time, seconds uint32) []byte {
	body := make([]byte, 100)
	binary.BigEndian.PutUint32(body[4:8], uint32(created.Sub(macEpoch).Seconds()))
	binary.BigEndian.PutUint32(body[8:12], uint32(created.Sub(macEpoch).Seconds()))
	binary.BigEndian.PutUint32(body[12:16], 1000)
	binary.BigEndian.PutUint32(body[16:20], seconds*1000)
	binary.BigEndian.PutUint32(body[20:24], 0x00010000)
	return box("mvhd", body)
}

// mvhdV1 builds a version 1 movie header with a 44.1 kHz timescale.
func mvhdV1(created time.Time, seconds uint64) []byte {
	body := make([]byte, 112)
	body[0] = 1
	binary.BigEndian.PutUint64(body[4:12], uint64(created.Sub(macEpoch).Seconds()))
	binary.BigEndian.PutUint64(body[12:20], uint64(created.Sub(macEpoch).Seconds()))
	binary.BigEndian.PutUint32(body[20:24], 44100)
	binary.BigEndian.PutUint64(body[24:32], seconds*44100)
	return box("mvhd", body)
}

func writeM4A(path string, mvhd []byte) error {
	var data []byte
	data = append(data, ftypBox("M4A ")...)
	data = append(data, box("free", make([]byte, 16))...)
	moov := append(box("udta", []byte("meta")), mvhd...)
	data = append(data, box("moov", moov)...)
	return os.WriteFile(path, data, 0644)
}

// writeWAV writes a PCM header for 16 kHz mono 16-bit audio followed by
// seconds of silence. A LIST chunk precedes fmt to exercise chunk skipping.
func writeWAV(path string, seconds int) error {
	const byteRate = 16000 * 2
	dataSize := byteRate * seconds

	var b []byte
	le32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	le16 := func(v uint16) { b = binary.LittleEndian.AppendUint16(b, v) }

	b = append(b, "RIFF"...)
	le32(uint32(4 + 8 + 3 + 1 + 8 + 16 + 8 + dataSize))
	b = append(b, "WAVE"...)
	b = append(b, "LIST"...)
	le32(3)
	b = append(b, "abc"...)
	b = append(b, 0)
	b = append(b, "fmt "...)
	le32(16)
	le16(1)
	le16(1)
	le32(16000)
	le32(byteRate)
	le16(2)
	le16(16)
	b = append(b, "data"...)
	le32(uint32(dataSize))
	b = append(b, make([]byte, dataSize)...)
	return os.WriteFile(path, b, 0644)
}
