package jobs

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/property"
)

// Request is the snapshot a strategy works on. It shares nothing with the
// editing session.
type Request struct {
	Strategy string
	Network  *network.Sequential
	InputDim network.Shape
	Pre      *property.Container
	Post     *property.Container
}

// Verdict is the outcome of a verification.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Detail string `json:"detail,omitempty"`
}

// Verifier checks a network against its properties. Progress goes to log.
type Verifier interface {
	Verify(ctx context.Context, req *Request, log *slog.Logger) (*Verdict, error)
}

// Trainer returns a trained copy of the request network. Progress goes to log.
type Trainer interface {
	Train(ctx context.Context, req *Request, log *slog.Logger) (*network.Sequential, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req *Request, log *slog.Logger) (*Verdict, error)

func (f VerifierFunc) Verify(ctx context.Context, req *Request, log *slog.Logger) (*Verdict, error) {
	return f(ctx, req, log)
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context, req *Request, log *slog.Logger) (*network.Sequential, error)

func (f TrainerFunc) Train(ctx context.Context, req *Request, log *slog.Logger) (*network.Sequential, error) {
	return f(ctx, req, log)
}
