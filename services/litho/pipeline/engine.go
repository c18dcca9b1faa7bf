// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "context"

// Engine computes stage results.
//
// # Description
//
// Engine is the boundary to the optics/resist numerics. Each method
// corresponds to one pipeline stage; inputs and outputs are opaque to the
// pipeline, which only moves them between stages and caches them. The
// reference implementation lives in services/litho/physics; tests use
// counting fakes.
//
// Implementations read the current Parameters values at call time, so a
// result is always computed against the inputs in effect when the stage was
// (re)calculated.
type Engine interface {
	// StandingWaves computes the intensity-versus-depth modulation in the
	// resist film. It has no predecessor and no successor.
	StandingWaves(ctx context.Context) (any, error)

	// Diffraction computes the mask's diffraction orders passed by the
	// projection lens. It is the root of the imaging chain.
	Diffraction(ctx context.Context) (any, error)

	// AerialImage computes the image intensity at the wafer plane from
	// the diffraction result.
	AerialImage(ctx context.Context, diffraction any) (any, error)

	// ImageInResist computes the image intensity volume inside the resist
	// film from the diffraction result.
	ImageInResist(ctx context.Context, diffraction any) (any, error)

	// LatentImage computes the exposed photoactive-compound volume from
	// the in-resist image.
	LatentImage(ctx context.Context, imageInResist any) (any, error)

	// PebLatentImage computes the post-exposure-bake diffused volume from
	// the latent image.
	PebLatentImage(ctx context.Context, latentImage any) (any, error)

	// DevelopContours computes time-to-clear development contours from
	// the diffused volume.
	DevelopContours(ctx context.Context, pebLatentImage any) (any, error)

	// ResistProfile extracts the developed resist profile from the
	// contours at the configured develop time.
	ResistProfile(ctx context.Context, contours any) (any, error)
}
