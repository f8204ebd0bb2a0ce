package app

import (
	"context"
	"errors"
	"fmt"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/ledger"
)

var _ ledger.Verifier = (*CatalogVerifier)(nil)

// CatalogVerifier rejects completions that claim more correct answers than
// the catalog quiz has questions. Quizzes unknown to the catalog pass.
type CatalogVerifier struct {
	quizzes QuizRepository
}

func NewCatalogVerifier(quizzes QuizRepository) *CatalogVerifier {
	return &CatalogVerifier{quizzes: quizzes}
}

func (v *CatalogVerifier) VerifyCompletion(ctx context.Context, _ domain.Address, rec domain.QuizRecord, score, _ uint64) error {
	quiz, err := v.quizzes.GetQuiz(ctx, rec.ID)
	if errors.Is(err, domain.ErrQuizNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify completion: %w", err)
	}
	if score > quiz.TotalQuestions() {
		return fmt.Errorf("%w: score %d exceeds %d questions", domain.ErrInvalidInput, score, quiz.TotalQuestions())
	}
	return nil
}
