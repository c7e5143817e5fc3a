package domain

import "context"

const tokensToPerK = 1000.0

// StandardCostCalculator prices usage with the per-1K token rates carried
// on the model descriptor.
type StandardCostCalculator struct{}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator() *StandardCostCalculator {
	return &StandardCostCalculator{}
}

// Calculate computes the total cost based on token usage and descriptor pricing.
func (c *StandardCostCalculator) Calculate(
	_ context.Context,
	model ModelDescriptor,
	usage Usage,
) (float64, error) {
	inputCost := float64(usage.InputTokens) / tokensToPerK * model.InputCostPer1K
	outputCost := float64(usage.OutputTokens) / tokensToPerK * model.OutputCostPer1K

	return inputCost + outputCost, nil
}
