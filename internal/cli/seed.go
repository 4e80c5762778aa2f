package cli

import (
	"context"
	"fmt"
	"os"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML fixture layout:
//
//	quizzes:
//	  - quizName: Capitals
//	    quizType: Q&A
//	    questions:
//	      - questionText: Capital of France?
//	        options: [{text: Paris}, {text: Rome}]
//	        correctAnswer: 0
type seedFile struct {
	Quizzes []domain.QuizDraft `yaml:"quizzes"`
}

// NewSeedCmd loads quizzes from a YAML fixture into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		file   string
		userID string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file, userID)
		},
	}
	cmd.Flags().StringVar(&file, "file", "quizzes.yaml", "YAML fixture to load")
	cmd.Flags().StringVar(&userID, "user", "", "owner user ID (24-hex ObjectID)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runSeed(ctx context.Context, configPath, file, userID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	drafts, err := parseSeed(data)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	cache, feeds, closeCache := openCache(cfg, store)
	defer closeCache()

	ids, err := seedQuizzes(ctx, app.NewQuizService(store, cache, feeds), userID, drafts)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "quizzes": len(ids)}).Info("seed complete")
	return nil
}

func parseSeed(data []byte) ([]domain.QuizDraft, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Quizzes) == 0 {
		return nil, fmt.Errorf("seed file has no quizzes")
	}
	return f.Quizzes, nil
}

func seedQuizzes(ctx context.Context, service *app.QuizService, userID string, drafts []domain.QuizDraft) ([]string, error) {
	ids := make([]string, 0, len(drafts))
	for i, draft := range drafts {
		quiz, err := service.CreateQuiz(ctx, userID, draft)
		if err != nil {
			return ids, fmt.Errorf("seed quiz %d (%s): %w", i, draft.QuizName, err)
		}
		ids = append(ids, quiz.ID)
	}
	return ids, nil
}
