package service

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"skillset_backend/internal/model"

	"gorm.io/datatypes"
)

// GradedItem 单题判分结果
type GradedItem struct {
	Question model.Question
	Given    []string
	Correct  bool
	Graded   bool // 没有标准答案的题目不计分
}

type GradeResult struct {
	Items   []GradedItem
	Answers model.AnswerSet // 只保留本次题目集合内的作答
	Correct int
	Total   int
	Score   int
}

// Grade 按题型判分；不属于 questions 的作答会被丢弃
func Grade(questions []model.Question, raw model.AnswerSet) GradeResult {
	res := GradeResult{
		Items:   make([]GradedItem, 0, len(questions)),
		Answers: make(model.AnswerSet, len(questions)),
		Total:   len(questions),
	}
	for _, q := range questions {
		key := strconv.FormatUint(uint64(q.ID), 10)
		given := raw[key]
		if given != nil {
			res.Answers[key] = given
		}
		item := GradedItem{Question: q, Given: given}
		correct := q.CorrectAnswers()
		if len(correct) > 0 {
			item.Graded = true
			item.Correct = gradeOne(q.Type, given, correct)
		}
		if item.Correct {
			res.Correct++
		}
		res.Items = append(res.Items, item)
	}
	res.Score = Score(res.Correct, res.Total)
	return res
}

// Snapshot 把判分结果固化为可持久化的快照
func (r GradeResult) Snapshot() []model.GradedQuestion {
	out := make([]model.GradedQuestion, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, model.GradedQuestion{
			QuestionID: item.Question.ID,
			Type:       item.Question.Type,
			PromptAr:   item.Question.PromptAr,
			PromptEn:   item.Question.PromptEn,
			Expected:   item.Question.CorrectAnswers(),
			Given:      item.Given,
			Correct:    item.Correct,
			Graded:     item.Graded,
		})
	}
	return out
}

// ItemsFromSnapshot 用提交时的快照还原判分条目
func ItemsFromSnapshot(snap []model.GradedQuestion) []GradedItem {
	items := make([]GradedItem, 0, len(snap))
	for _, g := range snap {
		q := model.Question{
			Type:     g.Type,
			PromptAr: g.PromptAr,
			PromptEn: g.PromptEn,
			Correct:  datatypes.NewJSONType(g.Expected),
		}
		q.ID = g.QuestionID
		items = append(items, GradedItem{Question: q, Given: g.Given, Correct: g.Correct, Graded: g.Graded})
	}
	return items
}

// Score = round(100 * correct / max(total, 1))
func Score(correct, total int) int {
	if total < 1 {
		total = 1
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

func gradeOne(t model.QuestionType, given, correct []string) bool {
	switch t {
	case model.QuestionSingleChoice, model.QuestionTrueFalse, model.QuestionCheckpointVideo, model.QuestionImageSingleChoice:
		return len(given) == 1 && given[0] == correct[0]
	case model.QuestionMultiChoice:
		return sameSet(given, correct)
	case model.QuestionFreeText, model.QuestionNumeric:
		return len(given) >= 1 && strings.TrimSpace(given[0]) == strings.TrimSpace(correct[0])
	}
	return false
}

func sameSet(a, b []string) bool {
	x := dedupSorted(a)
	y := dedupSorted(b)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func dedupSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// ClampElapsed 超过限时加宽限窗口时截断为限时本身
func ClampElapsed(elapsed, limit, grace int) int {
	if elapsed < 0 {
		return 0
	}
	if elapsed > limit+grace {
		return limit
	}
	return elapsed
}
