package widget

// Widget pairs the SDK loader with the session hub. It is the payment
// widget the checkout service drives.
type Widget struct {
	*ScriptLoader
	*Hub
}

func New(loader *ScriptLoader, hub *Hub) *Widget {
	return &Widget{ScriptLoader: loader, Hub: hub}
}
