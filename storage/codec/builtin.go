package codec

import (
	"encoding/binary"
	"io"
)

// Uint64 codes Go's uint64 as eight little-endian bytes, in the same
// byte order storage/page.page_format.go uses for its fixed-width
// fields.
var Uint64 Codec[uint64] = uint64Codec{}

type uint64Codec struct{}

func (uint64Codec) Encode(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func (uint64Codec) Decode(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// String codes a string as a little-endian uint64 length prefix
// followed by its raw bytes.
var String Codec[string] = stringCodec{}

type stringCodec struct{}

func (stringCodec) Encode(w io.Writer, v string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(v))); err != nil {
		return err
	}
	_, err := w.Write([]byte(v))
	return err
}

func (stringCodec) Decode(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}
