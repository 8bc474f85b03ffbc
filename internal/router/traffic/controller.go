package traffic

import (
	"log/slog"
	"sync"
)

// Role is the traffic role of this instance
type Role string

const (
	// RolePrimary accepts traffic; consumers run
	RolePrimary Role = "PRIMARY"

	// RoleStandby rejects traffic; consumers are paused
	RoleStandby Role = "STANDBY"
)

// RoleListener is notified of role transitions. Consumers subscribe to
// pause on standby and resume on primary.
type RoleListener interface {
	OnBecomePrimary()
	OnBecomeStandby()
}

// ListenerFuncs adapts two funcs to the RoleListener interface
type ListenerFuncs struct {
	BecomePrimary func()
	BecomeStandby func()
}

func (l ListenerFuncs) OnBecomePrimary() {
	if l.BecomePrimary != nil {
		l.BecomePrimary()
	}
}

func (l ListenerFuncs) OnBecomeStandby() {
	if l.BecomeStandby != nil {
		l.BecomeStandby()
	}
}

// Controller coordinates role transitions. BecomePrimary registers the
// instance with the load balancer and resumes listeners; BecomeStandby
// deregisters first, then pauses listeners, so in-flight traffic drains
// before consumers stop. Transitions are idempotent.
type Controller struct {
	mu        sync.Mutex
	role      Role
	service   *Service
	listeners []RoleListener
}

// NewController creates a traffic controller starting in STANDBY
func NewController(service *Service) *Controller {
	return &Controller{
		role:    RoleStandby,
		service: service,
	}
}

// AddListener registers a listener for role transitions
func (c *Controller) AddListener(listener RoleListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// CurrentRole returns the current traffic role
func (c *Controller) CurrentRole() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.role)
}

// IsPrimary returns true when this instance accepts traffic
func (c *Controller) IsPrimary() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role == RolePrimary
}

// BecomePrimary registers with the load balancer and resumes listeners
func (c *Controller) BecomePrimary() {
	c.mu.Lock()
	if c.role == RolePrimary {
		c.mu.Unlock()
		return
	}
	c.role = RolePrimary
	listeners := append([]RoleListener(nil), c.listeners...)
	c.mu.Unlock()

	slog.Info("Becoming PRIMARY - registering and resuming consumers")

	if c.service != nil {
		c.service.RegisterAsActive()
	}

	for _, listener := range listeners {
		listener.OnBecomePrimary()
	}
}

// BecomeStandby deregisters from the load balancer and pauses listeners
func (c *Controller) BecomeStandby() {
	c.mu.Lock()
	if c.role == RoleStandby {
		c.mu.Unlock()
		return
	}
	c.role = RoleStandby
	listeners := append([]RoleListener(nil), c.listeners...)
	c.mu.Unlock()

	slog.Info("Becoming STANDBY - deregistering and pausing consumers")

	if c.service != nil {
		c.service.DeregisterFromActive()
	}

	for _, listener := range listeners {
		listener.OnBecomeStandby()
	}
}
