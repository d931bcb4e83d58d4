package analysis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tickrify1/tickrify.com-sub000/app/events"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

const signalSource = "Tickrify AI"

// SignalGenerator derives the feed entry of an analysis, stores it and announces it.
type SignalGenerator struct {
	history History
	events  events.Publisher
	now     func() time.Time
}

func NewSignalGenerator(history History, pub events.Publisher) *SignalGenerator {
	if pub == nil {
		pub = events.Discard{}
	}
	return &SignalGenerator{history: history, events: pub, now: time.Now}
}

// Derive builds the Signal of a.
func Derive(a models.Analysis, at time.Time) models.Signal {
	return models.Signal{
		ID:          uuid.NewString(),
		AnalysisID:  a.ID,
		Symbol:      a.Symbol,
		Type:        a.Recommendation,
		Confidence:  a.Confidence,
		Price:       a.TargetPrice,
		Timestamp:   at.UTC(),
		Source:      signalSource,
		Description: fmt.Sprintf("Sinal de %s para %s com %d%% de confiança", actionLabel(a.Recommendation), a.Symbol, a.Confidence),
	}
}

func (g *SignalGenerator) Process(ctx context.Context, job models.SignalJob) (models.Signal, error) {
	sig := Derive(job.Analysis, g.now())
	if err := g.history.AddSignal(ctx, job.UserID, sig); err != nil {
		return models.Signal{}, fmt.Errorf("save signal: %w", err)
	}
	g.events.Publish(ctx, events.Event{
		Kind:    events.KindSignalGenerated,
		UserID:  job.UserID,
		Email:   job.Email,
		Payload: sig,
	})
	log.Printf("signal generated user=%s analysis=%s type=%s", job.UserID, sig.AnalysisID, sig.Type)
	return sig, nil
}
