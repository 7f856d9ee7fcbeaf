package pipeline

import (
	"context"

	"github.com/oloapinivad/CDS-retriever/internal/config"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/retrieve"
	"github.com/oloapinivad/CDS-retriever/internal/update"
	"github.com/oloapinivad/CDS-retriever/internal/verify"
)

// ChunkStatus is the verdict of one staged chunk.
type ChunkStatus struct {
	Variable string
	Year     int
	Path     string
	Result   verify.Result
}

// Inspect verifies the staged chunks of the configured years without
// fetching anything.
func Inspect(ctx context.Context, cfg config.Config, env Env) ([]ChunkStatus, error) {
	specs, _, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	verifier := &verify.Verifier{Codec: env.Codec}

	var out []ChunkStatus
	for _, spec := range specs {
		for _, y := range cfg.Years().Years() {
			path := retrieve.StagingPath(cfg.TmpDir, spec.Descriptor, y)
			res, err := verifier.Check(ctx, path, spec.Time.MinimumSteps)
			if err != nil {
				return out, err
			}
			out = append(out, ChunkStatus{
				Variable: spec.Descriptor.Variable,
				Year:     y,
				Path:     path,
				Result:   res,
			})
		}
	}
	return out, nil
}

// VariablePlan is the update proposal for one variable.
type VariablePlan struct {
	Variable   string
	Descriptor dataset.Descriptor
	Plan       update.Plan
}

// Plans runs the update planner for every configured variable.
func Plans(ctx context.Context, cfg config.Config, env Env) ([]VariablePlan, error) {
	specs, _, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	planner := &update.Planner{Store: env.Store, Now: env.now, Logger: env.logger()}

	var out []VariablePlan
	for _, spec := range specs {
		plan, err := planner.Plan(ctx, spec.Descriptor, cfg.Years())
		if err != nil {
			return out, err
		}
		out = append(out, VariablePlan{
			Variable:   spec.Descriptor.Variable,
			Descriptor: spec.Descriptor,
			Plan:       plan,
		})
	}
	return out, nil
}
