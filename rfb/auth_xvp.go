package rfb

// authXVP implements the XVP extension's authentication step: a plaintext,
// length-prefixed username/target exchange used ahead of the XVP power
// control messages (spec.md §4.3), followed by a regular VNCAuth
// challenge/response for the password. Unlike VeNCrypt Plain this has no
// preceding capability negotiation of its own — the security type selection
// already committed both sides to this exchange.
func (c *Client) authXVP() error {
	if c.cfg.Credentials == nil {
		c.handler.OnCredentialsRequired([]string{"username", "password", "target"})
		return protoErrf("XVP auth requires username, password and target")
	}
	user := []byte(c.cfg.Credentials.Username)
	target := []byte(c.cfg.Credentials.Target)
	if err := c.bs.push8(byte(len(user))); err != nil {
		return err
	}
	if err := c.bs.push8(byte(len(target))); err != nil {
		return err
	}
	if err := c.bs.pushBytes(user); err != nil {
		return err
	}
	if err := c.bs.pushBytes(target); err != nil {
		return err
	}
	if err := c.bs.flush(); err != nil {
		return err
	}
	return c.authVNC()
}
