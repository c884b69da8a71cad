package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is a Marshaler and Unmarshaler pair that also names the
// websocket sub-protocol it speaks.
type Codec interface {
	Marshaler
	Unmarshaler
	Name() string
}

// Convert re-encodes a value decoded into a generic form (map, slice, scalar)
// and decodes it into dst.
//
// Frames are first decoded with their arguments left generic, because the
// target type of each argument is only known to the handler of the event.
func Convert(c Codec, v, dst any) error {
	data, err := c.Marshal(v)
	if err != nil {
		return err
	}
	return c.Unmarshal(data, dst)
}
