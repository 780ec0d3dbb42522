// Package celebration turns "deal won" notifications into exactly-once,
// one-at-a-time celebrations on the panel.
//
// Flow:
//
//	Poller -> Engine.Enqueue -> Presenter.Show (+ Sound)
//	       -> after AnimationDuration: Presenter.Hide
//	       -> after FadeOut: Presenter.Remove -> Acknowledger -> next item
//
// Each id moves Unseen -> Queued -> Presenting -> Acknowledged once per
// process. Locally generated test ids ("test-...") are presented but never
// acknowledged.
package celebration
