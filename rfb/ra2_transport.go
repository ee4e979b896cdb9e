package rfb

// ra2Transport wraps an underlying Transport once RA2ne authentication
// completes, framing every message as a 4-byte big-endian length prefix
// followed by an AES-EAX sealed blob (ciphertext + 16-byte tag). It
// maintains its own byte accumulator because sealed frames rarely align
// with the chunk boundaries the underlying Transport happens to deliver.
type ra2Transport struct {
	underlying Transport
	cipher     *ra2Cipher
	buf        []byte
}

func newRA2Transport(underlying Transport, cipher *ra2Cipher) Transport {
	return &ra2Transport{underlying: underlying, cipher: cipher}
}

func (t *ra2Transport) ReadMessage() ([]byte, error) {
	for {
		if frame, ok := t.tryExtractFrame(); ok {
			plaintext, err := t.cipher.openRead(frame)
			if err != nil {
				return nil, err
			}
			return plaintext, nil
		}
		chunk, err := t.underlying.ReadMessage()
		if len(chunk) > 0 {
			t.buf = append(t.buf, chunk...)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (t *ra2Transport) tryExtractFrame() ([]byte, bool) {
	if len(t.buf) < 4 {
		return nil, false
	}
	length := int(t.buf[0])<<24 | int(t.buf[1])<<16 | int(t.buf[2])<<8 | int(t.buf[3])
	if len(t.buf) < 4+length {
		return nil, false
	}
	frame := make([]byte, length)
	copy(frame, t.buf[4:4+length])
	t.buf = t.buf[4+length:]
	return frame, true
}

func (t *ra2Transport) Send(plaintext []byte) error {
	sealed := t.cipher.sealWrite(plaintext)
	frame := make([]byte, 4+len(sealed))
	frame[0] = byte(len(sealed) >> 24)
	frame[1] = byte(len(sealed) >> 16)
	frame[2] = byte(len(sealed) >> 8)
	frame[3] = byte(len(sealed))
	copy(frame[4:], sealed)
	return t.underlying.Send(frame)
}

func (t *ra2Transport) Close() error {
	return t.underlying.Close()
}
