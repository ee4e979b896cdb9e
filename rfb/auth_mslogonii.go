package rfb

import "math/big"

// authMSLogonII implements UltraVNC's MSLogonII: an 8-byte Diffie-Hellman
// exchange whose shared secret becomes a DES-CBC key for encrypting
// null-padded username (256 bytes) and password (64 bytes) fields (spec.md
// §4.3), grounded on legacycrypto.go's generic DH/DES-CBC helpers.
func (c *Client) authMSLogonII() error {
	genBytes, err := c.bs.ShiftBytes(8, true)
	if err != nil {
		return err
	}
	modBytes, err := c.bs.ShiftBytes(8, true)
	if err != nil {
		return err
	}
	serverPubBytes, err := c.bs.ShiftBytes(8, true)
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
	key := vncAuthKey(string(bigIntToFixedBytes(shared, 8)))

	if c.cfg.Credentials == nil {
		c.handler.OnCredentialsRequired([]string{"username", "password"})
		return protoErrf("MSLogonII auth requires username and password")
	}
	iv := make([]byte, 8)
	encUser, err := desCBCEncrypt(key, iv, nullPad(c.cfg.Credentials.Username, 256))
	if err != nil {
		return err
	}
	encPass, err := desCBCEncrypt(key, iv, nullPad(c.cfg.Credentials.Password, 64))
	if err != nil {
		return err
	}

	clientPub := bigIntToFixedBytes(kp.Public, 8)
	if err := c.bs.pushBytes(clientPub); err != nil {
		return err
	}
	if err := c.bs.pushBytes(encUser); err != nil {
		return err
	}
	if err := c.bs.pushBytes(encPass); err != nil {
		return err
	}
	return c.bs.flush()
}
