package rfb

// EventHandler receives the core's outward-facing events (spec.md §6). Every
// method has a no-op default via EmptyEventHandler so embedders only
// override what they care about.
type EventHandler interface {
	OnConnect()
	OnDisconnect(clean bool)
	OnCredentialsRequired(types []string)
	OnServerVerification(kind string, publicKey []byte)
	OnSecurityFailure(status uint32, reason string)
	OnClipboard(text string)
	OnBell()
	OnDesktopName(name string)
	OnCapabilities(capabilities map[string]bool)
	OnClippingViewport(clipping bool)
}

// EmptyEventHandler is an embeddable no-op implementation of EventHandler.
type EmptyEventHandler struct{}

func (EmptyEventHandler) OnConnect()                                      {}
func (EmptyEventHandler) OnDisconnect(clean bool)                         {}
func (EmptyEventHandler) OnCredentialsRequired(types []string)            {}
func (EmptyEventHandler) OnServerVerification(kind string, pub []byte)    {}
func (EmptyEventHandler) OnSecurityFailure(status uint32, reason string)  {}
func (EmptyEventHandler) OnClipboard(text string)                        {}
func (EmptyEventHandler) OnBell()                                        {}
func (EmptyEventHandler) OnDesktopName(name string)                      {}
func (EmptyEventHandler) OnCapabilities(capabilities map[string]bool)     {}
func (EmptyEventHandler) OnClippingViewport(clipping bool)                {}
