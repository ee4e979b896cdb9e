package rfb

// authTight implements TightVNC's security-type-16 capability negotiation:
// a tunnel capability list (always accepting NOTUNNEL) followed by an
// authentication capability list, from which the client picks a sub-type and
// runs its handshake (grounded on the teacher's guacd capability-negotiation
// style in internal/guacamole/proxy.go, generalized from Guacamole's
// instruction exchange to Tight's binary capability records).
func (c *Client) authTight() error {
	numTunnels, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	if numTunnels > 0 {
		if _, err := c.bs.ShiftBytes(int(numTunnels)*16, false); err != nil {
			return err
		}
		if err := c.bs.push32(0); err != nil { // NOTUNNEL
			return err
		}
		if err := c.bs.flush(); err != nil {
			return err
		}
	}

	numAuths, err := c.bs.Shift32()
	if err != nil {
		return err
	}
	if numAuths == 0 {
		return nil // server already authenticated us via the tunnel choice
	}

	type authCap struct {
		code uint32
	}
	caps := make([]authCap, numAuths)
	for i := range caps {
		code, err := c.bs.Shift32()
		if err != nil {
			return err
		}
		if _, err := c.bs.ShiftBytes(12, false); err != nil { // vendor(4) + signature(8)
			return err
		}
		caps[i] = authCap{code: code}
	}

	chosen := uint32(secNone)
	for _, want := range []uint32{secVNCAuth, secNone} {
		for _, cap := range caps {
			if cap.code == want {
				chosen = want
			}
		}
	}
	if err := c.bs.push32(chosen); err != nil {
		return err
	}
	if err := c.bs.flush(); err != nil {
		return err
	}

	switch chosen {
	case secVNCAuth:
		return c.authVNC()
	default:
		return nil
	}
}
