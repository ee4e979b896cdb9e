package rfb

// authVNC implements the classic VNC challenge/response (spec.md §4.3):
// the server sends a 16-byte challenge, the client DES-ECB-encrypts it with
// a key derived from the password (bit-reversed, zero-padded to 8 bytes),
// grounded on gorfb's fixDesKey/agreeSecurity.
func (c *Client) authVNC() error {
	challenge, err := c.bs.ShiftBytes(16, true)
	if err != nil {
		return err
	}
	if c.cfg.Credentials == nil {
		c.handler.OnCredentialsRequired([]string{"password"})
		return protoErrf("VNCAuth requires a password but none was configured")
	}

	key := vncAuthKey(c.cfg.Credentials.Password)
	response, err := desECBEncrypt(key, challenge)
	if err != nil {
		return err
	}
	if err := c.bs.pushBytes(response); err != nil {
		return err
	}
	return c.bs.flush()
}
