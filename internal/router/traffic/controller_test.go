package traffic

import (
	"testing"
)

type countingListener struct {
	primaryCalls int
	standbyCalls int
}

func (l *countingListener) OnBecomePrimary() { l.primaryCalls++ }
func (l *countingListener) OnBecomeStandby() { l.standbyCalls++ }

func newTestController() (*Controller, *MockStrategy) {
	svc := NewService(&Config{Enabled: true, Strategy: "noop"})
	strategy := &MockStrategy{}
	svc.SetStrategy(strategy)
	return NewController(svc), strategy
}

func TestControllerStartsStandby(t *testing.T) {
	ctrl, _ := newTestController()

	if ctrl.CurrentRole() != string(RoleStandby) {
		t.Errorf("initial role = %s, want STANDBY", ctrl.CurrentRole())
	}
	if ctrl.IsPrimary() {
		t.Error("controller must not start as PRIMARY")
	}
}

func TestBecomePrimaryRegistersAndNotifies(t *testing.T) {
	ctrl, strategy := newTestController()
	listener := &countingListener{}
	ctrl.AddListener(listener)

	ctrl.BecomePrimary()

	if !ctrl.IsPrimary() {
		t.Error("role should be PRIMARY")
	}
	if !strategy.registered {
		t.Error("instance should be registered with the load balancer")
	}
	if listener.primaryCalls != 1 {
		t.Errorf("primary notifications = %d, want 1", listener.primaryCalls)
	}
}

func TestBecomeStandbyDeregistersAndNotifies(t *testing.T) {
	ctrl, strategy := newTestController()
	listener := &countingListener{}
	ctrl.AddListener(listener)

	ctrl.BecomePrimary()
	ctrl.BecomeStandby()

	if ctrl.IsPrimary() {
		t.Error("role should be STANDBY")
	}
	if strategy.registered {
		t.Error("instance should be deregistered from the load balancer")
	}
	if listener.standbyCalls != 1 {
		t.Errorf("standby notifications = %d, want 1", listener.standbyCalls)
	}
}

func TestTransitionsAreIdempotent(t *testing.T) {
	ctrl, _ := newTestController()
	listener := &countingListener{}
	ctrl.AddListener(listener)

	ctrl.BecomePrimary()
	ctrl.BecomePrimary()
	ctrl.BecomeStandby()
	ctrl.BecomeStandby()

	if listener.primaryCalls != 1 {
		t.Errorf("primary notifications = %d, want 1", listener.primaryCalls)
	}
	if listener.standbyCalls != 1 {
		t.Errorf("standby notifications = %d, want 1", listener.standbyCalls)
	}
}

func TestListenerFuncsAdapter(t *testing.T) {
	ctrl, _ := newTestController()

	resumed := false
	paused := false
	ctrl.AddListener(ListenerFuncs{
		BecomePrimary: func() { resumed = true },
		BecomeStandby: func() { paused = true },
	})

	ctrl.BecomePrimary()
	ctrl.BecomeStandby()

	if !resumed || !paused {
		t.Errorf("adapter calls: resumed=%v paused=%v", resumed, paused)
	}

	// Nil funcs must not panic
	ctrl.AddListener(ListenerFuncs{})
	ctrl.BecomePrimary()
}

func TestControllerWithoutService(t *testing.T) {
	ctrl := NewController(nil)

	// Must not panic without a strategy service
	ctrl.BecomePrimary()
	ctrl.BecomeStandby()
}
