// Package app wires configuration into a ready-to-use scan session. Both
// the CLI and the HTTP server build their sessions here so strategy
// selection lives in one place.
package app

import (
	"go.uber.org/zap"

	"github.com/stylescout/stylescout-backend/internal/config"
	"github.com/stylescout/stylescout-backend/internal/detector"
	"github.com/stylescout/stylescout-backend/internal/embed"
	"github.com/stylescout/stylescout-backend/internal/scoring"
	"github.com/stylescout/stylescout-backend/internal/session"
)

// BuildSession assembles the detector, scoring strategy, and session from
// cfg. The semantic and image strategies share one embedding client; the
// model is loaded once by the backend and treated as a shared, read-only
// resource across concurrent scoring calls.
func BuildSession(cfg *config.Config, log *zap.Logger) *session.Session {
	det := detector.New(detector.Config{
		MinWidth:  cfg.Detector.MinWidth,
		MinHeight: cfg.Detector.MinHeight,
		MaxWidth:  cfg.Detector.MaxWidth,
		MaxHeight: cfg.Detector.MaxHeight,
	})

	var strategy scoring.Strategy
	switch cfg.ScoringStrategy {
	case "semantic":
		strategy = scoring.NewSemantic(newEmbedder(cfg, log), log)
	case "image":
		strategy = scoring.NewImageOnly(newEmbedder(cfg, log), log)
	default:
		strategy = scoring.NewLexical()
	}

	opts := session.Options{
		BatchSize:           cfg.BatchSize,
		MaxConcurrent:       cfg.MaxConcurrent,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxResults:          cfg.MaxResults,
		Timeout:             cfg.Timeout(),
	}
	return session.New(det, strategy, opts, log)
}

func newEmbedder(cfg *config.Config, log *zap.Logger) embed.Embedder {
	return embed.NewClient(embed.Options{
		BaseURL:           cfg.Embed.BaseURL,
		Model:             cfg.Embed.Model,
		RequestsPerSecond: cfg.Embed.RequestsPerSecond,
	}, log)
}
