package rfb

const (
	vencryptPlain = 256
)

// authVeNCrypt implements VeNCrypt's four-phase inner negotiation (spec.md
// §4.3): version exchange, subtype selection, subtype ack, then the chosen
// subtype's own handshake.
//
// Only the Plain subtype is implemented. The TLS-wrapped subtypes
// (TLSNone/TLSVnc/TLSPlain, X509*) would need to renegotiate the transport
// itself mid-stream, which the opaque Transport interface (spec.md §6) has
// no hook for; a real deployment should instead dial through a TLS listener
// and use security type None/VNCAuth over the already-encrypted channel.
func (c *Client) authVeNCrypt() error {
	major, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	minor, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	_ = major
	_ = minor

	if err := c.bs.push8(0); err != nil { // we speak VeNCrypt 0.2
		return err
	}
	if err := c.bs.push8(2); err != nil {
		return err
	}
	if err := c.bs.flush(); err != nil {
		return err
	}

	ack, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	if ack != 0 {
		return protoErrf("server rejected VeNCrypt version 0.2")
	}

	n, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	subtypes := make([]uint32, n)
	for i := range subtypes {
		subtypes[i], err = c.bs.Shift32()
		if err != nil {
			return err
		}
	}

	chosen := uint32(0)
	for _, s := range subtypes {
		if s == vencryptPlain {
			chosen = s
		}
	}
	if chosen == 0 {
		return protoErrf("no supported VeNCrypt subtype in %v", subtypes)
	}
	if err := c.bs.push32(chosen); err != nil {
		return err
	}
	if err := c.bs.flush(); err != nil {
		return err
	}

	subAck, err := c.bs.Shift8()
	if err != nil {
		return err
	}
	if subAck != 1 {
		return protoErrf("server rejected VeNCrypt subtype %d", chosen)
	}

	if c.cfg.Credentials == nil {
		c.handler.OnCredentialsRequired([]string{"username", "password"})
		return protoErrf("VeNCrypt Plain requires username and password")
	}
	user := []byte(c.cfg.Credentials.Username)
	pass := []byte(c.cfg.Credentials.Password)
	if err := c.bs.push32(uint32(len(user))); err != nil {
		return err
	}
	if err := c.bs.push32(uint32(len(pass))); err != nil {
		return err
	}
	if err := c.bs.pushBytes(user); err != nil {
		return err
	}
	if err := c.bs.pushBytes(pass); err != nil {
		return err
	}
	return c.bs.flush()
}
