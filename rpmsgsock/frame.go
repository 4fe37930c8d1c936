package rpmsgsock

import "encoding/binary"

// Frame command discriminators. Every header word is encoded little-endian
// (encoding/binary.LittleEndian), whatever the host byte order.
const (
	cmdSync uint32 = 1
	cmdData uint32 = 2
)

// syncHeaderLen is the fixed 20-byte SYNC frame: cmd, size, pid, uid, gid,
// each a 32-bit word.
const syncHeaderLen = 20

// dataHeaderLen is the fixed 12-byte DATA frame header: cmd, pos, len.
const dataHeaderLen = 12

// datagramPrefixLen is the 4-byte datagram length prefix carried inside a
// SOCK_DGRAM DATA frame's payload.
const datagramPrefixLen = 4

type syncHeader struct {
	size uint32
	pid  uint32
	uid  uint32
	gid  uint32
}

func encodeSync(h syncHeader) []byte {
	b := make([]byte, syncHeaderLen)
	binary.LittleEndian.PutUint32(b[0:4], cmdSync)
	binary.LittleEndian.PutUint32(b[4:8], h.size)
	binary.LittleEndian.PutUint32(b[8:12], h.pid)
	binary.LittleEndian.PutUint32(b[12:16], h.uid)
	binary.LittleEndian.PutUint32(b[16:20], h.gid)
	return b
}

// decodeSync reports ok=false if data is not a well-formed SYNC frame.
func decodeSync(data []byte) (syncHeader, bool) {
	if len(data) < syncHeaderLen {
		return syncHeader{}, false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != cmdSync {
		return syncHeader{}, false
	}
	return syncHeader{
		size: binary.LittleEndian.Uint32(data[4:8]),
		pid:  binary.LittleEndian.Uint32(data[8:12]),
		uid:  binary.LittleEndian.Uint32(data[12:16]),
		gid:  binary.LittleEndian.Uint32(data[16:20]),
	}, true
}

type dataHeader struct {
	pos uint32
	len uint32
}

// encodeDataHeader writes a DATA header into the first dataHeaderLen bytes
// of buf, which must be at least that long.
func encodeDataHeader(buf []byte, h dataHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], cmdData)
	binary.LittleEndian.PutUint32(buf[4:8], h.pos)
	binary.LittleEndian.PutUint32(buf[8:12], h.len)
}

func decodeDataHeader(data []byte) (dataHeader, bool) {
	if len(data) < dataHeaderLen {
		return dataHeader{}, false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != cmdData {
		return dataHeader{}, false
	}
	return dataHeader{
		pos: binary.LittleEndian.Uint32(data[4:8]),
		len: binary.LittleEndian.Uint32(data[8:12]),
	}, true
}

// frameCmd peeks at the discriminator word without fully decoding.
func frameCmd(data []byte) (uint32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[0:4]), true
}
