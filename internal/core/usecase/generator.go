package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

const defaultGenerationTimeout = 60 * time.Second

// Generation is a validated estimate plus what the model reported about the
// call that produced it.
type Generation struct {
	Estimate         domain.Estimate
	Raw              string
	Model            string
	Attempts         int
	PromptTokens     int
	CompletionTokens int
}

type GenerateUseCase struct {
	model         ports.CompletionModel
	schema        ports.EstimateSchema
	timeout       time.Duration
	schemaRetries int
}

func NewGenerateUseCase(
	model ports.CompletionModel,
	schema ports.EstimateSchema,
	timeout time.Duration,
	schemaRetries int,
) *GenerateUseCase {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	if schemaRetries < 0 {
		schemaRetries = 0
	}
	return &GenerateUseCase{
		model:         model,
		schema:        schema,
		timeout:       timeout,
		schemaRetries: schemaRetries,
	}
}

// Generate asks the model for an estimate and validates the reply. Failures
// are *domain.GenerationError: ProviderFailure for the call itself,
// SchemaViolation (with the last raw reply) when no attempt produced a valid
// estimate.
func (uc *GenerateUseCase) Generate(ctx context.Context, instruction, userText string) (*Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var (
		lastViolation *domain.GenerationError
		promptTokens  int
		outputTokens  int
	)
	for attempt := 1; attempt <= uc.schemaRetries+1; attempt++ {
		user := userText
		if lastViolation != nil {
			user = correctiveTask(userText, lastViolation)
		}

		resp, err := uc.model.Complete(ctx, ports.CompletionRequest{
			System:   instruction,
			User:     user,
			JSONMode: true,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("model call exceeded %s: %w", uc.timeout, err)
			}
			return nil, domain.NewProviderFailure(fmt.Errorf("complete with %s: %w", uc.model.Name(), err))
		}
		promptTokens += resp.PromptTokens
		outputTokens += resp.CompletionTokens

		estimate, err := uc.schema.Parse(resp.Content).Get()
		if err == nil {
			model := resp.Model
			if model == "" {
				model = uc.model.Name()
			}
			return &Generation{
				Estimate:         estimate,
				Raw:              resp.Content,
				Model:            model,
				Attempts:         attempt,
				PromptTokens:     promptTokens,
				CompletionTokens: outputTokens,
			}, nil
		}

		violation, ok := domain.AsGenerationError(err)
		if !ok {
			violation = domain.NewSchemaViolation(resp.Content, err)
		}
		lastViolation = violation
	}
	return nil, lastViolation
}

func correctiveTask(userText string, violation *domain.GenerationError) string {
	return fmt.Sprintf("%s\n\nYOUR PREVIOUS REPLY WAS REJECTED: %v. Reply again with a single JSON object "+
		"that satisfies every required field and type of the schema.", userText, violation.Err)
}
