package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	"github.com/drblury/localbroker/internal/runtime/eventbus"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
	"github.com/drblury/localbroker/internal/runtime/methods"
	"github.com/drblury/localbroker/internal/runtime/service"
)

// registration records what one live service installed, so destruction
// removes exactly that and nothing another service added since.
type registration struct {
	owner         *methods.Owner
	methods       []string
	subscriptions []subscriptionRef
	// installed is set once Created succeeded and everything is installed.
	installed bool
}

type subscriptionRef struct {
	event string
	id    eventbus.SubscriptionID
}

// addMethod records name and reports whether it was not recorded before.
func (r *registration) addMethod(name string) bool {
	for _, existing := range r.methods {
		if existing == name {
			return false
		}
	}
	r.methods = append(r.methods, name)
	return true
}

func (r *registration) removeMethod(name string) {
	for i, existing := range r.methods {
		if existing == name {
			r.methods = append(r.methods[:i], r.methods[i+1:]...)
			return
		}
	}
}

// CreateService registers svc: it joins the live set, its Created hook runs,
// then its methods and listeners are installed. When Created fails the
// service leaves the live set again and nothing is installed. When a listener
// cannot be subscribed, whatever this registration installed is removed again
// before the error is returned.
//
// On a broker that is already started, Started is triggered in the background
// and CreateService returns without waiting for it. Calls reaching the service
// before its Started hook finishes observe whatever state the hook has built
// so far.
//
// Registering the same instance again runs Created again and installs its
// methods and listeners a second time.
func (b *Broker) CreateService(ctx context.Context, svc service.Service) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	name := svc.Name()
	if name == "" {
		return errspkg.ErrServiceNameRequired
	}

	b.servicesMu.Lock()
	reg, existed := b.services.Get(svc)
	if !existed {
		reg = &registration{owner: methods.NewOwner(name)}
		b.services.Set(svc, reg)
	}
	b.servicesMu.Unlock()

	if err := svc.Created(ctx); err != nil {
		if !existed {
			b.servicesMu.Lock()
			b.services.Delete(svc)
			b.servicesMu.Unlock()
		}
		return err
	}

	b.servicesMu.Lock()
	firstSub := len(reg.subscriptions)
	b.servicesMu.Unlock()

	declared := svc.Methods()
	var added []string
	for methodName, fn := range declared {
		if fn == nil {
			continue
		}
		b.registry.Register(name, methodName, reg.owner, fn)
		key := methods.Key(name, methodName)
		b.stats.GetOrCompute(key, newMethodStats)
		b.servicesMu.Lock()
		if reg.addMethod(methodName) {
			added = append(added, methodName)
		}
		b.servicesMu.Unlock()
	}

	var subscribeErr error
	for _, sub := range svc.Events() {
		for _, listener := range sub.Listeners {
			id, err := b.bus.Subscribe(sub.EventName, listener)
			if err != nil {
				subscribeErr = fmt.Errorf("subscribe %s to %q: %w", name, sub.EventName, err)
				break
			}
			b.servicesMu.Lock()
			reg.subscriptions = append(reg.subscriptions, subscriptionRef{event: sub.EventName, id: id})
			b.servicesMu.Unlock()
		}
		if subscribeErr != nil {
			break
		}
	}
	if subscribeErr != nil {
		b.rollbackInstall(svc, reg, existed, firstSub, added)
		return subscribeErr
	}

	b.servicesMu.Lock()
	reg.installed = true
	live := b.services.Len()
	startNow := b.started.Load()
	b.servicesMu.Unlock()

	if b.metrics != nil {
		b.metrics.SetLiveServices(live)
	}
	b.Logger.Info("Service created", loggingpkg.LogFields{
		"service": name,
		"methods": len(declared),
	})

	if startNow {
		b.startInBackground(ctx, svc)
	}
	return nil
}

// rollbackInstall undoes what a failed CreateService installed: subscriptions
// from index firstSub on and the methods in added. A service that was not live
// before leaves the live set.
func (b *Broker) rollbackInstall(svc service.Service, reg *registration, existed bool, firstSub int, added []string) {
	b.servicesMu.Lock()
	subs := append([]subscriptionRef(nil), reg.subscriptions[firstSub:]...)
	reg.subscriptions = reg.subscriptions[:firstSub]
	for _, methodName := range added {
		reg.removeMethod(methodName)
	}
	if !existed {
		b.services.Delete(svc)
	}
	b.servicesMu.Unlock()

	for _, sub := range subs {
		b.bus.Unsubscribe(sub.event, sub.id)
	}
	for _, methodName := range added {
		b.registry.Unregister(svc.Name(), methodName, reg.owner)
	}
}

// DestroyService removes the listeners and methods svc installed, asks svc to
// drop its own listeners and waits for its Stopped hook, whose error is
// returned. Destroying a service that is not registered only runs the last two
// steps.
//
// Calls already resolved against the service may still complete after its
// methods are removed.
func (b *Broker) DestroyService(ctx context.Context, svc service.Service) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	b.servicesMu.Lock()
	reg, ok := b.services.Delete(svc)
	live := b.services.Len()
	b.servicesMu.Unlock()

	if ok {
		for _, sub := range reg.subscriptions {
			b.bus.Unsubscribe(sub.event, sub.id)
		}
		for _, methodName := range reg.methods {
			b.registry.Unregister(svc.Name(), methodName, reg.owner)
		}
		if b.metrics != nil {
			b.metrics.SetLiveServices(live)
		}
	}

	svc.RemoveAllListeners()

	if err := svc.Stopped(ctx); err != nil {
		return err
	}
	b.Logger.Info("Service destroyed", loggingpkg.LogFields{"service": svc.Name()})
	return nil
}

// Start waits for the Started hook of every service fully registered when
// Start is called, then marks the broker as started. The first failing hook is
// returned as a *StartupError; the context handed to the other hooks is
// cancelled at that point.
//
// Services registered while Start is waiting, including those whose Created
// hook was still running when Start was called, are started in the
// background after their Created hook, each exactly once, by whichever of
// Start and CreateService finishes last.
func (b *Broker) Start(ctx context.Context) error {
	b.servicesMu.Lock()
	snapshot := make(map[service.Service]struct{}, b.services.Len())
	pending := make([]service.Service, 0, b.services.Len())
	for pair := b.services.Oldest(); pair != nil; pair = pair.Next() {
		// Services still inside CreateService are picked up below once
		// they are installed.
		if !pair.Value.installed {
			continue
		}
		snapshot[pair.Key] = struct{}{}
		pending = append(pending, pair.Key)
	}
	b.servicesMu.Unlock()

	b.Logger.Info("Starting broker", loggingpkg.LogFields{"services": len(pending)})

	began := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range pending {
		g.Go(func() error {
			if err := svc.Started(gctx); err != nil {
				return &StartupError{Service: svc.Name(), Err: err}
			}
			return nil
		})
	}
	err := g.Wait()
	if b.metrics != nil {
		b.metrics.StartFinished(time.Since(began))
	}
	if err != nil {
		b.Logger.Error("Broker failed to start", err, nil)
		return err
	}

	b.servicesMu.Lock()
	b.started.Store(true)
	var late []service.Service
	for pair := b.services.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := snapshot[pair.Key]; !ok && pair.Value.installed {
			late = append(late, pair.Key)
		}
	}
	b.servicesMu.Unlock()

	for _, svc := range late {
		b.startInBackground(ctx, svc)
	}

	b.Logger.Info("Broker started", loggingpkg.LogFields{"duration_ms": time.Since(began).Milliseconds()})
	return nil
}

// Started reports whether Start has completed successfully.
func (b *Broker) Started() bool {
	return b.started.Load()
}

func (b *Broker) startInBackground(ctx context.Context, svc service.Service) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := svc.Started(ctx); err != nil {
			b.Logger.Error("Service failed to start", err, loggingpkg.LogFields{"service": svc.Name()})
		}
	}()
}
