package rfb

import "math/big"

// authARD implements Apple Remote Desktop authentication: Diffie-Hellman key
// agreement followed by AES-128-ECB-encrypted, null-padded username/password
// fields, with the AES key being the MD5 hash of the shared secret (spec.md
// §4.3). Grounded on legacycrypto.go's generic DH/AES-ECB/MD5 helpers.
func (c *Client) authARD() error {
	genLen, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	genBytes, err := c.bs.ShiftBytes(int(genLen), true)
	if err != nil {
		return err
	}
	keyLen, err := c.bs.Shift16()
	if err != nil {
		return err
	}
	modBytes, err := c.bs.ShiftBytes(int(keyLen), true)
	if err != nil {
		return err
	}
	serverPubBytes, err := c.bs.ShiftBytes(int(keyLen), true)
	if err != nil {
		return err
	}

	generator := new(big.Int).SetBytes(genBytes)
	modulus := new(big.Int).SetBytes(modBytes)
	serverPub := new(big.Int).SetBytes(serverPubBytes)

	kp, err := generateDHKeyPair(generator, modulus)
	if err != nil {
		return err
	}
	shared := kp.SharedSecret(serverPub, modulus)
	key := md5Key16(bigIntToFixedBytes(shared, int(keyLen)))

	if c.cfg.Credentials == nil {
		c.handler.OnCredentialsRequired([]string{"username", "password"})
		return protoErrf("ARD auth requires username and password")
	}
	creds := make([]byte, 128)
	copy(creds[0:64], nullPad(c.cfg.Credentials.Username, 64))
	copy(creds[64:128], nullPad(c.cfg.Credentials.Password, 64))

	ciphertext, err := aesECBEncrypt(key, creds)
	if err != nil {
		return err
	}

	clientPub := bigIntToFixedBytes(kp.Public, int(keyLen))
	if err := c.bs.pushBytes(ciphertext); err != nil {
		return err
	}
	if err := c.bs.pushBytes(clientPub); err != nil {
		return err
	}
	return c.bs.flush()
}

// nullPad truncates or zero-pads s to exactly n bytes.
func nullPad(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}
