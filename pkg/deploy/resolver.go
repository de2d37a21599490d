package deploy

import (
	"context"
	"errors"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/engine"
	"github.com/openfroyo/froyo-deploy/pkg/operator"
)

// ConfirmFrontendQuestion is asked in auto mode when a frontend is detected.
const ConfirmFrontendQuestion = "A frontend was detected. Build it and serve it through nginx?"

// Resolver returns the decision resolver: detection on the working copy's frontend directory,
// then engine.Resolve with an operator confirmation for auto mode.
func (p *Pipeline) Resolver() engine.DecisionResolver {
	return func(ctx context.Context, rc *engine.RunContext) (engine.DecisionState, error) {
		s := config.From(rc.Config())
		mode := s.Mode()

		detected, err := p.c.Detect(s.FrontendPath())
		if err != nil {
			rc.Warn("frontend manifest unreadable, treating frontend as absent", err)
			detected = false
		}
		if mode == engine.ModeFrontendEnabled && !detected {
			rc.Note("frontend-enabled mode without a detected frontend in " + s.FrontendPath())
		}

		enabled := engine.Resolve(mode, detected, func() bool {
			yes, err := p.c.Operator.Confirm(ctx, ConfirmFrontendQuestion, false)
			if err != nil {
				if errors.Is(err, operator.ErrNoInput) {
					rc.Warn("no answer to the frontend confirmation, treating it as declined", nil)
				} else {
					rc.Warn("frontend confirmation failed, treating it as declined", err)
				}
				return false
			}
			return yes
		})

		return engine.DecisionState{FrontendDetected: detected, MernEnabled: enabled}, nil
	}
}
