package quiz

import (
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/vesperino/portalforge-backend/pkg/metrics"
)

// Answer 审批人提交的单题答案
type Answer struct {
	QuestionID     uint `json:"question_id" binding:"required"`
	SelectedOption int  `json:"selected_option"`
}

// Result 测验评估结果
type Result struct {
	Score   int  `json:"score"` // 百分比得分，向下取整
	Passed  bool `json:"passed"`
	Total   int  `json:"total"`
	Correct int  `json:"correct"`
}

// Evaluator 审批测验评估器
// 审批步骤要求测验时，审批人必须先达到模板的分数线才能通过该步骤
type Evaluator struct {
	templateRepo *repository.TemplateRepository
}

func NewEvaluator(templateRepo *repository.TemplateRepository) *Evaluator {
	return &Evaluator{templateRepo: templateRepo}
}

// Evaluate 对照模板题库给答卷打分
// 没有答案的题目按答错计算，未知题目ID视为非法输入
func (e *Evaluator) Evaluate(templateID uint, passScore int, answers []Answer) (*Result, error) {
	questions, err := e.templateRepo.FindQuestionsByTemplateID(templateID)
	if err != nil {
		return nil, err
	}

	// 题库为空时测验视为直接通过
	if len(questions) == 0 {
		logger.Warnf("Quiz required but template %d has no questions, treating as passed", templateID)
		return &Result{Score: 100, Passed: true, Total: 0, Correct: 0}, nil
	}

	known := make(map[uint]model.QuizQuestion, len(questions))
	for _, q := range questions {
		known[q.ID] = q
	}

	answered := make(map[uint]int, len(answers))
	for _, a := range answers {
		if _, ok := known[a.QuestionID]; !ok {
			return nil, errs.Validation("unknown quiz question id: %d", a.QuestionID)
		}
		if _, dup := answered[a.QuestionID]; dup {
			return nil, errs.Validation("duplicate answer for question %d", a.QuestionID)
		}
		answered[a.QuestionID] = a.SelectedOption
	}

	correct := 0
	for _, q := range questions {
		if selected, ok := answered[q.ID]; ok && selected == q.CorrectOption {
			correct++
		}
	}

	score := correct * 100 / len(questions)
	passed := score >= passScore

	result := "failed"
	if passed {
		result = "passed"
	}
	metrics.QuizEvaluationsTotal.WithLabelValues(result).Inc()

	return &Result{
		Score:   score,
		Passed:  passed,
		Total:   len(questions),
		Correct: correct,
	}, nil
}
