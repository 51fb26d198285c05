package session

import (
	"github.com/deepgtav/vpilot-collector/internal/dispatcher"
	"github.com/deepgtav/vpilot-collector/internal/storage"
)

// AttachBackend routes session, trip and tick events to b.
func AttachBackend(d *dispatcher.Dispatcher, name string, b storage.Backend, opts ...dispatcher.Option) {
	opts = append([]dispatcher.Option{dispatcher.Named(name)}, opts...)

	d.Register(dispatcher.KindSessionStart, func(e dispatcher.Event) error {
		return b.StartSession(e.Session)
	}, opts...)
	d.Register(dispatcher.KindTripStart, func(e dispatcher.Event) error {
		return b.StartTrip(e.Trip)
	}, opts...)
	d.Register(dispatcher.KindTripEnd, func(e dispatcher.Event) error {
		return b.EndTrip()
	}, opts...)
	d.Register(dispatcher.KindTick, func(e dispatcher.Event) error {
		return b.Append(e.Record)
	}, opts...)
}
