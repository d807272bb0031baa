package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"buzzroom/internal/config"
	"buzzroom/internal/model"
	"buzzroom/internal/repository"
	"buzzroom/internal/repository/mongodb"
)

func newSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample quiz content into MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	source := mongodb.NewQuestionSource(client)

	inserted := 0
	for _, q := range sampleQuestions() {
		if err := q.Validate(); err != nil {
			return err
		}
		if err := source.Insert(ctx, q); err != nil {
			// Re-running the seed skips questions that already exist.
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return err
		}
		inserted++
	}

	fmt.Printf("seeded %d questions\n", inserted)
	return nil
}

func sampleQuestions() []*model.Question {
	return []*model.Question{
		{
			ID:     "geo-capitals-001",
			Genre:  "geography",
			UnitID: "capitals",
			Kind:   model.QuestionKindMultipleChoice,
			Text:   "What is the capital of Australia?",
			Choices: []string{
				"Sydney", "Melbourne", "Canberra", "Perth",
			},
			CorrectAnswer: "Canberra",
			Explanation:   "Canberra was purpose-built as the capital to settle the Sydney-Melbourne rivalry.",
		},
		{
			ID:     "geo-capitals-002",
			Genre:  "geography",
			UnitID: "capitals",
			Kind:   model.QuestionKindMultipleChoice,
			Text:   "What is the capital of Canada?",
			Choices: []string{
				"Toronto", "Ottawa", "Vancouver", "Montreal",
			},
			CorrectAnswer: "Ottawa",
		},
		{
			ID:                "geo-capitals-003",
			Genre:             "geography",
			UnitID:            "capitals",
			Kind:              model.QuestionKindInput,
			Text:              "Name the capital of Japan.",
			CorrectAnswer:     "Tokyo",
			AcceptableAnswers: []string{"tokyo", "東京"},
		},
		{
			ID:     "sci-elements-001",
			Genre:  "science",
			UnitID: "elements",
			Kind:   model.QuestionKindMultipleChoice,
			Text:   "Which element has the chemical symbol Fe?",
			Choices: []string{
				"Fluorine", "Iron", "Lead", "Francium",
			},
			CorrectAnswer: "Iron",
			Explanation:   "Fe comes from the Latin ferrum.",
		},
		{
			ID:                "sci-elements-002",
			Genre:             "science",
			UnitID:            "elements",
			Kind:              model.QuestionKindInput,
			Text:              "What is the lightest element?",
			CorrectAnswer:     "Hydrogen",
			AcceptableAnswers: []string{"hydrogen", "H"},
		},
		{
			ID:     "hist-world-001",
			Genre:  "history",
			UnitID: "world",
			Kind:   model.QuestionKindMultipleChoice,
			Text:   "In which year did the Berlin Wall fall?",
			Choices: []string{
				"1987", "1989", "1991", "1993",
			},
			CorrectAnswer: "1989",
		},
		{
			ID:                "hist-world-002",
			Genre:             "history",
			UnitID:            "world",
			Kind:              model.QuestionKindInput,
			Text:              "Which ancient wonder stood in Alexandria?",
			CorrectAnswer:     "The Lighthouse",
			AcceptableAnswers: []string{"the lighthouse", "lighthouse", "pharos", "the pharos"},
		},
	}
}
