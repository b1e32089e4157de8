package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/weft-db/weft/internal/include"
)

// ControllerConfig selects the failure policy for include resolution
type ControllerConfig struct {
	// Strict makes any stitch failure a request-level failure with no data.
	// The default degrades: root rows come back with an explicit error
	// descriptor, never silently-partial data.
	Strict bool

	// Debug attaches full diagnostic detail to degrade descriptors
	Debug bool

	Logger *zap.Logger
}

// Controller wraps stitch invocations with the strict-vs-degrade policy
type Controller struct {
	stitcher *Stitcher
	strict   bool
	debug    bool
	logger   *zap.Logger
}

// NewController creates a controller over a stitcher
func NewController(stitcher *Stitcher, cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		stitcher: stitcher,
		strict:   cfg.Strict,
		debug:    cfg.Debug,
		logger:   logger,
	}
}

// IncludeError describes an include failure alongside partial data
type IncludeError struct {
	Message string              `json:"message"`
	Detail  *IncludeErrorDetail `json:"detail,omitempty"`
}

// IncludeErrorDetail carries the plan position and cause of the failure.
// Only attached in debug deployments.
type IncludeErrorDetail struct {
	Entity   string `json:"entity"`
	Relation string `json:"relation"`
	Depth    int    `json:"depth"`
	Cause    string `json:"cause"`
}

// Result is the outcome of include resolution. It marshals as a bare row
// array on full success and as a {data, includeError} envelope on degrade.
type Result struct {
	Data         []map[string]interface{}
	IncludeError *IncludeError
}

// MarshalJSON implements the response shape contract
func (r *Result) MarshalJSON() ([]byte, error) {
	data := r.Data
	if data == nil {
		data = []map[string]interface{}{}
	}
	if r.IncludeError == nil {
		return json.Marshal(data)
	}
	return json.Marshal(struct {
		Data         []map[string]interface{} `json:"data"`
		IncludeError *IncludeError            `json:"includeError"`
	}{data, r.IncludeError})
}

// Resolve stitches the plan into the rows and applies the failure policy
func (c *Controller) Resolve(ctx context.Context, rows []map[string]interface{}, plan *include.Plan) (*Result, error) {
	err := c.stitcher.Stitch(ctx, rows, plan)
	if err == nil {
		return &Result{Data: rows}, nil
	}

	if c.strict {
		return nil, err
	}

	c.logger.Warn("degrading to partial response", zap.Error(err))

	includeErr := &IncludeError{Message: "failed to resolve nested relations"}
	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		includeErr.Message = fmt.Sprintf("failed to resolve relation %q", queryErr.Relation)
		if c.debug {
			includeErr.Detail = &IncludeErrorDetail{
				Entity:   queryErr.Entity,
				Relation: queryErr.Relation,
				Depth:    queryErr.Depth,
				Cause:    queryErr.Err.Error(),
			}
		}
	}

	return &Result{Data: rows, IncludeError: includeErr}, nil
}
