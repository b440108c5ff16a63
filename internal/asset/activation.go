package asset

import (
	"context"

	sw "github.com/filanov/stateswitch"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

const (
	// asset status states
	StateActive    sw.State = "active"
	StateNonactive sw.State = "nonactive"
	StateUnknown   sw.State = "unknown"

	TransitionActivate   sw.TransitionType = "activate"
	TransitionDeactivate sw.TransitionType = "deactivate"
)

var (
	errInvalidTransitionArgs = errors.New("expected a statusArgs{} type")
	errInvalidStatusSwitch   = errors.New("expected a statusSwitch{} type")
	errInvalidState          = errors.New("invalid asset status state")
)

// statusSwitch exposes the asset status to the state machine.
type statusSwitch struct {
	asset *model.Asset
}

func (s *statusSwitch) State() sw.State {
	return sw.State(s.asset.Status.String())
}

func (s *statusSwitch) SetState(state sw.State) error {
	status := model.ParseStatus(string(state))
	if status == model.StatusUnknown {
		return errors.Wrap(errInvalidState, string(state))
	}

	s.asset.Status = status

	return nil
}

// statusArgs are passed to the status transition handlers.
type statusArgs struct {
	ctx context.Context
	// previous is the status before the transition.
	previous model.Status
	// external is set once the activation service accepted the change.
	external bool
}

func (e *Engine) newStatusStateMachine() sw.StateMachine {
	m := sw.NewStateMachine()

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionActivate,
		SourceStates:     sw.States{StateNonactive, StateUnknown},
		DestinationState: StateActive,
		// the licensing policy decides if the asset may be activated
		Condition:      e.activable,
		Transition:     e.externalActivate,
		PostTransition: e.persistStatus,
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionDeactivate,
		SourceStates:     sw.States{StateActive},
		DestinationState: StateNonactive,
		Transition:       e.externalDeactivate,
		PostTransition:   e.persistStatus,
	})

	m.DescribeState(StateActive, sw.StateDoc{
		Name:        string(StateActive),
		Description: "The asset is active, devices hold an activation with the activation service.",
	})

	m.DescribeState(StateNonactive, sw.StateDoc{
		Name:        string(StateNonactive),
		Description: "The asset is not active.",
	})

	m.DescribeState(StateUnknown, sw.StateDoc{
		Name:        string(StateUnknown),
		Description: "The stored status could not be parsed, the asset is treated as not active.",
	})

	m.DescribeTransitionType(TransitionActivate, sw.TransitionTypeDoc{
		Name:        string(TransitionActivate),
		Description: "Activate the asset when the licensing policy allows it, the status is persisted once the activation service accepts the request.",
	})

	m.DescribeTransitionType(TransitionDeactivate, sw.TransitionTypeDoc{
		Name:        string(TransitionDeactivate),
		Description: "Release the asset activation and persist the nonactive status.",
	})

	return m
}

// DescribeStatusStateMachine returns a JSON description of the asset status state machine.
func (e *Engine) DescribeStatusStateMachine() ([]byte, error) {
	return e.statusSM.AsJSON()
}

func transitionParams(s sw.StateSwitch, args sw.TransitionArgs) (*statusSwitch, *statusArgs, error) {
	ss, ok := s.(*statusSwitch)
	if !ok {
		return nil, nil, errInvalidStatusSwitch
	}

	sa, ok := args.(*statusArgs)
	if !ok {
		return nil, nil, errInvalidTransitionArgs
	}

	return ss, sa, nil
}

// usesActivationService returns true when status changes of the asset go through the activation service.
func (e *Engine) usesActivationService(asset *model.Asset) bool {
	return asset.Type == model.TypeDevice && !e.detached
}

// IsActivable returns true when the asset may be activated.
//
// Only devices are subject to the licensing policy, in detached mode every asset is activable.
func (e *Engine) IsActivable(ctx context.Context, asset *model.Asset) (bool, error) {
	if !e.usesActivationService(asset) {
		return true, nil
	}

	return e.activator.IsActivable(ctx, asset)
}

func (e *Engine) activable(s sw.StateSwitch, args sw.TransitionArgs) (bool, error) {
	ss, sa, err := transitionParams(s, args)
	if err != nil {
		return false, err
	}

	return e.IsActivable(sa.ctx, ss.asset)
}

func (e *Engine) externalActivate(s sw.StateSwitch, args sw.TransitionArgs) error {
	ss, sa, err := transitionParams(s, args)
	if err != nil {
		return err
	}

	if !e.usesActivationService(ss.asset) {
		return nil
	}

	if err := e.activator.Activate(sa.ctx, ss.asset); err != nil {
		return err
	}

	sa.external = true

	return nil
}

func (e *Engine) externalDeactivate(s sw.StateSwitch, args sw.TransitionArgs) error {
	ss, sa, err := transitionParams(s, args)
	if err != nil {
		return err
	}

	if !e.usesActivationService(ss.asset) {
		return nil
	}

	if err := e.activator.Deactivate(sa.ctx, ss.asset); err != nil {
		return err
	}

	sa.external = true

	return nil
}

// persistStatus stores the new status, other pending changes on the asset are not persisted.
func (e *Engine) persistStatus(s sw.StateSwitch, args sw.TransitionArgs) error {
	ss, sa, err := transitionParams(s, args)
	if err != nil {
		return err
	}

	return e.withTx(sa.ctx, func(tx store.Tx) error {
		stored, err := tx.AssetByName(sa.ctx, ss.asset.Name)
		if err != nil {
			return err
		}

		stored.Status = ss.asset.Status

		return tx.Update(sa.ctx, stored)
	})
}

// Activate activates the asset, activating an active asset is a no-op.
//
// Devices are activated with the activation service before the status is persisted,
// an error wrapping model.ErrActivationDenied is returned when the licensing policy refuses the activation.
func (e *Engine) Activate(ctx context.Context, asset *model.Asset) error {
	if asset.Status == model.StatusActive {
		return nil
	}

	return e.changeStatus(ctx, asset, TransitionActivate, model.OperationActivate)
}

// Deactivate deactivates the asset, deactivating an asset that is not active is a no-op.
func (e *Engine) Deactivate(ctx context.Context, asset *model.Asset) error {
	if asset.Status != model.StatusActive {
		return nil
	}

	return e.changeStatus(ctx, asset, TransitionDeactivate, model.OperationDeactivate)
}

func (e *Engine) changeStatus(ctx context.Context, asset *model.Asset, tt sw.TransitionType, op model.Operation) (err error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Engine."+string(tt))
	defer span.End()

	span.SetAttributes(attribute.String("asset", asset.Name))

	defer observe(string(op), &err)()

	args := &statusArgs{ctx: ctx, previous: asset.Status}

	err = e.statusSM.Run(tt, &statusSwitch{asset: asset}, args)
	if err == nil {
		e.logger.WithFields(
			logrus.Fields{
				"asset":  asset.Name,
				"status": asset.Status,
			}).Info("asset status changed")

		e.publish(ctx, op, asset)

		return nil
	}

	// the condition is the only check that refuses a transition from a valid source state
	if errors.Is(err, sw.NoConditionPassedToRunTransaction) {
		return errors.Wrap(model.ErrActivationDenied, asset.Name)
	}

	// the status was flipped before persisting failed
	if asset.Status != args.previous {
		asset.Status = args.previous

		if cerr := e.compensateExternal(ctx, asset, tt, args); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}

	e.logger.WithFields(
		logrus.Fields{
			"asset":      asset.Name,
			"transition": tt,
			"err":        err,
		}).Warn("asset status change failed")

	return err
}

// compensateExternal reverts a status change the activation service accepted but could not be persisted.
func (e *Engine) compensateExternal(ctx context.Context, asset *model.Asset, tt sw.TransitionType, args *statusArgs) error {
	if !args.external {
		return nil
	}

	var err error

	switch tt {
	case TransitionActivate:
		err = e.activator.Deactivate(ctx, asset)
	case TransitionDeactivate:
		err = e.activator.Activate(ctx, asset)
	}

	if err != nil {
		return errors.Wrap(err, "activation service compensation for "+string(tt))
	}

	return nil
}
