package quiz

import (
	"fmt"
	"testing"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *model.RequestTemplate, []model.QuizQuestion) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.RequestTemplate{}, &model.ApprovalStepTemplate{}, &model.QuizQuestion{}))

	template := &model.RequestTemplate{
		Name:          "设备借用",
		Kind:          model.TemplateKindGeneral,
		QuizPassScore: 75,
		Enabled:       true,
	}
	require.NoError(t, db.Create(template).Error)

	options := datatypes.JSON([]byte(`["选项A","选项B","选项C"]`))
	questions := []model.QuizQuestion{
		{TemplateID: template.ID, Question: "问题一", Options: options, CorrectOption: 0},
		{TemplateID: template.ID, Question: "问题二", Options: options, CorrectOption: 1},
		{TemplateID: template.ID, Question: "问题三", Options: options, CorrectOption: 2},
		{TemplateID: template.ID, Question: "问题四", Options: options, CorrectOption: 0},
	}
	for i := range questions {
		require.NoError(t, db.Create(&questions[i]).Error)
	}

	return NewEvaluator(repository.NewTemplateRepository(db)), template, questions
}

// TestEvaluate 测验评分
func TestEvaluate(t *testing.T) {
	evaluator, template, questions := newTestEvaluator(t)

	tests := []struct {
		name       string
		answers    func() []Answer
		wantScore  int
		wantPassed bool
	}{
		{"全对", func() []Answer {
			return []Answer{
				{QuestionID: questions[0].ID, SelectedOption: 0},
				{QuestionID: questions[1].ID, SelectedOption: 1},
				{QuestionID: questions[2].ID, SelectedOption: 2},
				{QuestionID: questions[3].ID, SelectedOption: 0},
			}
		}, 100, true},
		{"刚好过线", func() []Answer {
			return []Answer{
				{QuestionID: questions[0].ID, SelectedOption: 0},
				{QuestionID: questions[1].ID, SelectedOption: 1},
				{QuestionID: questions[2].ID, SelectedOption: 2},
				{QuestionID: questions[3].ID, SelectedOption: 1},
			}
		}, 75, true},
		{"一半错误不过线", func() []Answer {
			return []Answer{
				{QuestionID: questions[0].ID, SelectedOption: 0},
				{QuestionID: questions[1].ID, SelectedOption: 1},
				{QuestionID: questions[2].ID, SelectedOption: 0},
				{QuestionID: questions[3].ID, SelectedOption: 1},
			}
		}, 50, false},
		{"漏答按答错计", func() []Answer {
			return []Answer{
				{QuestionID: questions[0].ID, SelectedOption: 0},
			}
		}, 25, false},
		{"空答卷零分", func() []Answer { return nil }, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(template.ID, template.QuizPassScore, tt.answers())
			require.NoError(t, err)
			require.Equal(t, tt.wantScore, result.Score)
			require.Equal(t, tt.wantPassed, result.Passed)
			require.Equal(t, 4, result.Total)
		})
	}
}

// TestEvaluateInvalidAnswers 非法答卷
func TestEvaluateInvalidAnswers(t *testing.T) {
	evaluator, template, questions := newTestEvaluator(t)

	_, err := evaluator.Evaluate(template.ID, template.QuizPassScore, []Answer{
		{QuestionID: 99999, SelectedOption: 0},
	})
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)

	_, err = evaluator.Evaluate(template.ID, template.QuizPassScore, []Answer{
		{QuestionID: questions[0].ID, SelectedOption: 0},
		{QuestionID: questions[0].ID, SelectedOption: 1},
	})
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)
}

// TestEvaluateEmptyBank 题库为空视为通过
func TestEvaluateEmptyBank(t *testing.T) {
	evaluator, _, _ := newTestEvaluator(t)

	result, err := evaluator.Evaluate(99999, 80, nil)
	require.NoError(t, err)
	require.True(t, result.Passed)
	require.Equal(t, 100, result.Score)
	require.Equal(t, 0, result.Total)
}
