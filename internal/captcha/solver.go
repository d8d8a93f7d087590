package captcha

import (
	"context"

	"platewatch/internal/components/assert"
)

// Solver runs an image through OCR and the acceptance policy. Retrying with a
// fresh challenge is up to the caller since only it can refresh the page.
type Solver struct {
	ocr       OCR
	policy    Policy
	artifacts *Artifacts
}

func NewSolver(ocr OCR, policy Policy, artifacts *Artifacts) Solver {
	assert.NotNil(ocr)
	return Solver{ocr: ocr, policy: policy, artifacts: artifacts}
}

func (s Solver) Solve(ctx context.Context, image []byte) (string, error) {
	if s.artifacts != nil {
		s.artifacts.Save(image)
	}
	res, err := s.ocr.Recognize(ctx, image)
	if err != nil {
		return "", err
	}
	return s.policy.Accept(res)
}
