package analysis

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

// PostgresHistory stores feeds in the analyses and signals tables.
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (p *PostgresHistory) AddAnalysis(ctx context.Context, userID string, a models.Analysis) error {
	indicators, err := json.Marshal(a.TechnicalIndicators)
	if err != nil {
		return err
	}
	var risk, decision []byte
	if a.RiskManagement != nil {
		if risk, err = json.Marshal(a.RiskManagement); err != nil {
			return err
		}
	}
	if a.AIDecision != nil {
		if decision, err = json.Marshal(a.AIDecision); err != nil {
			return err
		}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO analyses (
			id, user_id, symbol, recommendation, confidence, target_price, stop_loss,
			timeframe, created_at, reasoning, image_data, technical_indicators, risk_management, ai_decision
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`,
		a.ID, userID, a.Symbol, a.Recommendation, a.Confidence, a.TargetPrice, a.StopLoss,
		a.Timeframe, a.Timestamp, a.Reasoning, a.ImageData, indicators, nullJSON(risk), nullJSON(decision),
	)
	return err
}

func (p *PostgresHistory) Analyses(ctx context.Context, userID string) ([]models.Analysis, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, symbol, recommendation, confidence, target_price, stop_loss, timeframe,
			created_at, reasoning, image_data, technical_indicators, risk_management, ai_decision
		FROM analyses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, userID, store.HistoryLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Analysis{}
	for rows.Next() {
		var (
			a                          models.Analysis
			indicators, risk, decision []byte
		)
		if err := rows.Scan(
			&a.ID, &a.Symbol, &a.Recommendation, &a.Confidence, &a.TargetPrice, &a.StopLoss, &a.Timeframe,
			&a.Timestamp, &a.Reasoning, &a.ImageData, &indicators, &risk, &decision,
		); err != nil {
			return nil, err
		}
		if len(indicators) > 0 {
			_ = json.Unmarshal(indicators, &a.TechnicalIndicators)
		}
		if len(risk) > 0 {
			a.RiskManagement = &models.RiskManagement{}
			_ = json.Unmarshal(risk, a.RiskManagement)
		}
		if len(decision) > 0 {
			a.AIDecision = &models.AIDecision{}
			_ = json.Unmarshal(decision, a.AIDecision)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresHistory) AddSignal(ctx context.Context, userID string, s models.Signal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO signals (id, user_id, analysis_id, symbol, type, confidence, price, created_at, source, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING;
	`, s.ID, userID, s.AnalysisID, s.Symbol, s.Type, s.Confidence, s.Price, s.Timestamp, s.Source, s.Description)
	return err
}

func (p *PostgresHistory) Signals(ctx context.Context, userID string) ([]models.Signal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, analysis_id, symbol, type, confidence, price, created_at, source, description
		FROM signals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, userID, store.HistoryLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Signal{}
	for rows.Next() {
		var s models.Signal
		if err := rows.Scan(&s.ID, &s.AnalysisID, &s.Symbol, &s.Type, &s.Confidence, &s.Price, &s.Timestamp, &s.Source, &s.Description); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
