package repository

import (
	"context"

	"coachhire-ai/internal/domain/model"
)

type DecisionLogRepository interface {
	// Append inserts e unless an entry for (pipeline, step, action) exists.
	// Returns false when nothing was written.
	Append(ctx context.Context, tx Tx, e *model.AiDecisionLog) (bool, error)
	Find(ctx context.Context, tx Tx, pipelineID, step string, action model.DecisionAction) (*model.AiDecisionLog, error)
	ListByPipeline(ctx context.Context, tx Tx, pipelineID string) ([]*model.AiDecisionLog, error)
}
