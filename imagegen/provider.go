// Package imagegen generates multi-angle product views from a single image.
//
// provider.go adapts fal.Client to the Provider interface the Runner drives,
// translating a GenerationRequest into the endpoint's request body.
package imagegen

import (
	"context"
	"errors"
	"fmt"

	"multiangle/fal"
)

// Provider generates one view. Implementations apply their own throttle and
// retry policy; the Runner calls Generate exactly once per angle.
type Provider interface {
	Generate(ctx context.Context, req GenerationRequest) (*Generation, error)
}

// generator is the subset of fal.Client used by FalProvider.
type generator interface {
	Generate(ctx context.Context, args fal.EditArguments) (*fal.Result, error)
}

// FalProvider calls the FAL multiple-angles endpoint.
type FalProvider struct {
	client generator
}

// NewFalProvider wraps a FAL client.
func NewFalProvider(client *fal.Client) (*FalProvider, error) {
	if client == nil {
		return nil, errors.New("imagegen: fal client cannot be nil")
	}
	return &FalProvider{client: client}, nil
}

// Generate submits req and returns the first generated image.
func (p *FalProvider) Generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	res, err := p.client.Generate(ctx, EditArgumentsFor(req))
	if err != nil {
		return nil, err
	}
	if len(res.Images) == 0 {
		return nil, fal.ErrNoImages
	}

	img := res.Images[0]
	return &Generation{
		URL:         img.URL,
		ContentType: img.ContentType,
		Width:       img.Width,
		Height:      img.Height,
		Seed:        res.Seed,
		RequestID:   res.RequestID,
		Attempts:    res.Attempts,
	}, nil
}

// EditArgumentsFor maps a request onto the endpoint's body, adding the fixed
// extras every call carries.
func EditArgumentsFor(req GenerationRequest) fal.EditArguments {
	return fal.EditArguments{
		ImageURLs:           []string{req.SourceImage},
		GuidanceScale:       req.GuidanceScale,
		NumInferenceSteps:   req.NumInferenceSteps,
		Acceleration:        fal.DefaultAcceleration,
		NegativePrompt:      fal.DefaultNegativePrompt,
		EnableSafetyChecker: true,
		OutputFormat:        req.OutputFormat,
		NumImages:           1,
		RotateRightLeft:     float64(req.Angle),
		MoveForward:         req.MoveForward,
		VerticalAngle:       req.VerticalAngle,
		WideAngleLens:       req.WideAngleLens,
		LoraScale:           req.LoraScale,
	}
}

// attemptsFromError recovers the attempt count from a provider error.
func attemptsFromError(err error) int {
	var retryErr *fal.RetryError
	if errors.As(err, &retryErr) {
		return retryErr.Attempts
	}
	if err != nil {
		return 1
	}
	return 0
}

func describeFailure(err error) string {
	switch {
	case errors.Is(err, fal.ErrRateLimited):
		return fmt.Sprintf("rate limited: %v", err)
	case errors.Is(err, fal.ErrUnauthorized):
		return fmt.Sprintf("credentials rejected: %v", err)
	default:
		return err.Error()
	}
}
